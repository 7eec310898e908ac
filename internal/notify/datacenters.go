package notify

import "strings"

// datacenterNames maps datacenter codes to the full display names used in
// notification bodies.
var datacenterNames = map[string]string{
	"gra": "🇫🇷 法国·格拉沃利讷",
	"rbx": "🇫🇷 法国·鲁贝",
	"sbg": "🇫🇷 法国·斯特拉斯堡",
	"bhs": "🇨🇦 加拿大·博舍维尔",
	"syd": "🇦🇺 澳大利亚·悉尼",
	"sgp": "🇸🇬 新加坡",
	"ynm": "🇮🇳 印度·孟买",
	"waw": "🇵🇱 波兰·华沙",
	"fra": "🇩🇪 德国·法兰克福",
	"lon": "🇬🇧 英国·伦敦",
	"par": "🇫🇷 法国·巴黎",
	"eri": "🇮🇹 意大利·埃里切",
	"lim": "🇵🇱 波兰·利马诺瓦",
	"vin": "🇺🇸 美国·弗吉尼亚",
	"hil": "🇺🇸 美国·俄勒冈",
}

// datacenterShortNames maps datacenter codes to the compact labels used on
// interactive buttons, where the 64-byte callback limit leaves little room.
var datacenterShortNames = map[string]string{
	"gra": "🇫🇷 Gra",
	"rbx": "🇫🇷 Rbx",
	"sbg": "🇫🇷 Sbg",
	"bhs": "🇨🇦 Bhs",
	"syd": "🇦🇺 Syd",
	"sgp": "🇸🇬 Sgp",
	"ynm": "🇮🇳 Mum",
	"waw": "🇵🇱 Waw",
	"fra": "🇩🇪 Fra",
	"lon": "🇬🇧 Lon",
	"par": "🇫🇷 Par",
	"eri": "🇮🇹 Eri",
	"lim": "🇵🇱 Lim",
	"vin": "🇺🇸 Vin",
	"hil": "🇺🇸 Hil",
}

// DatacenterDisplay returns the full display name for a datacenter code,
// falling back to the uppercased code for unknown sites.
func DatacenterDisplay(dc string) string {
	if name, ok := datacenterNames[strings.ToLower(dc)]; ok {
		return name
	}
	return strings.ToUpper(dc)
}

// DatacenterShort returns the compact button label for a datacenter code,
// falling back to the uppercased code for unknown sites.
func DatacenterShort(dc string) string {
	if name, ok := datacenterShortNames[strings.ToLower(dc)]; ok {
		return name
	}
	return strings.ToUpper(dc)
}
