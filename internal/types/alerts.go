package types

// AvailabilityAlert describes a single-datacenter restock notification.
type AvailabilityAlert struct {
	PlanCode   string
	ServerName string
	Datacenter string
	Status     string // raw status observed this cycle
	Config     *ConfigInfo
	Price      string // resolved price text, "" when unavailable
}

// DatacenterStock pairs a datacenter code with the raw status observed there.
type DatacenterStock struct {
	Datacenter string
	Status     string
}

// GroupedAvailabilityAlert merges every newly available datacenter of one
// configuration into a single notification carrying order buttons.
type GroupedAvailabilityAlert struct {
	PlanCode    string
	ServerName  string
	Config      *ConfigInfo // CachedPrice carries the price resolved this cycle
	Datacenters []DatacenterStock
}

// UnavailabilityAlert describes a single-datacenter out-of-stock notification.
type UnavailabilityAlert struct {
	PlanCode   string
	ServerName string
	Datacenter string
	Config     *ConfigInfo
	Duration   string // elapsed stock window ("1分5秒"), "" when unknown
}

// ReplyMarkup is the inline keyboard attached to a grouped availability
// notification. The field layout matches the Telegram Bot API.
type ReplyMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// InlineKeyboardButton is one tappable order button.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// CallbackPayload is the compact JSON carried in a button's callback data.
// Keys are single letters to stay well under the 64-byte transport ceiling.
// Freshly minted buttons carry only a token; the plan/datacenter fields are
// accepted for older buttons whose payloads predate the token mechanism.
type CallbackPayload struct {
	Action     CallbackAction `json:"a"`
	Token      string         `json:"u,omitempty"`
	PlanCode   string         `json:"p,omitempty"`
	Datacenter string         `json:"d,omitempty"`
}

// PriceQuote is the tax-inclusive monthly price for one configuration.
type PriceQuote struct {
	WithTax      float64
	CurrencyCode string
}
