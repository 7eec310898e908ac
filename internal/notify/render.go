// Package notify renders availability alerts into their message bodies and
// dispatches them through a pluggable send primitive.
package notify

import (
	"fmt"
	"strings"
	"time"

	"stockwatch/internal/types"
)

// timeLayout is the wall-clock format stamped into every notification.
const timeLayout = "2006-01-02 15:04:05"

// RenderAvailable builds the single-datacenter restock message.
func RenderAvailable(alert types.AvailabilityAlert, now time.Time) string {
	var b strings.Builder
	b.WriteString("🎉 服务器上架通知！\n\n")
	if alert.ServerName != "" {
		fmt.Fprintf(&b, "服务器: %s\n", alert.ServerName)
	}
	fmt.Fprintf(&b, "型号: %s\n", alert.PlanCode)
	fmt.Fprintf(&b, "数据中心: %s\n", alert.Datacenter)
	writeConfigTree(&b, alert.Config)
	if alert.Price != "" {
		fmt.Fprintf(&b, "\n💰 价格: %s\n", alert.Price)
	}
	fmt.Fprintf(&b, "状态: %s\n", alert.Status)
	fmt.Fprintf(&b, "时间: %s\n\n", now.Format(timeLayout))
	b.WriteString("💡 快去抢购吧！")
	return b.String()
}

// RenderAvailableGroup builds the multi-datacenter restock message. The
// price, when resolved, rides in on the config's CachedPrice.
func RenderAvailableGroup(alert types.GroupedAvailabilityAlert, now time.Time) string {
	var b strings.Builder
	b.WriteString("🎉 服务器上架通知！\n\n")
	if alert.ServerName != "" {
		fmt.Fprintf(&b, "服务器: %s\n", alert.ServerName)
	}
	fmt.Fprintf(&b, "型号: %s\n", alert.PlanCode)
	writeConfigTree(&b, alert.Config)
	if alert.Config != nil && alert.Config.CachedPrice != "" {
		fmt.Fprintf(&b, "\n💰 价格: %s\n", alert.Config.CachedPrice)
	}
	fmt.Fprintf(&b, "\n✅ 有货的机房 (%d个):\n", len(alert.Datacenters))
	for _, dc := range alert.Datacenters {
		fmt.Fprintf(&b, "  • %s (%s)\n", DatacenterDisplay(dc.Datacenter), strings.ToUpper(dc.Datacenter))
	}
	fmt.Fprintf(&b, "\n⏰ 时间: %s", now.Format(timeLayout))
	b.WriteString("\n\n💡 点击下方按钮可直接下单对应机房！")
	return b.String()
}

// RenderUnavailable builds the sellout message, appending the stock window
// when one was computed.
func RenderUnavailable(alert types.UnavailabilityAlert, now time.Time) string {
	var b strings.Builder
	b.WriteString("📦 服务器下架通知\n\n")
	if alert.ServerName != "" {
		fmt.Fprintf(&b, "服务器: %s\n", alert.ServerName)
	}
	fmt.Fprintf(&b, "型号: %s\n", alert.PlanCode)
	writeConfigTree(&b, alert.Config)
	fmt.Fprintf(&b, "\n数据中心: %s\n", alert.Datacenter)
	b.WriteString("状态: 已无货\n")
	fmt.Fprintf(&b, "⏰ 时间: %s", now.Format(timeLayout))
	if alert.Duration != "" {
		fmt.Fprintf(&b, "\n⏱️ 历时: %s", alert.Duration)
	}
	return b.String()
}

// RenderNewServer builds the catalog discovery message. Missing hardware
// fields render as N/A.
func RenderNewServer(server types.ServerInfo, now time.Time) string {
	var b strings.Builder
	b.WriteString("🆕 新服务器上架通知！\n\n")
	fmt.Fprintf(&b, "型号: %s\n", orNA(server.PlanCode))
	fmt.Fprintf(&b, "名称: %s\n", orNA(server.Name))
	fmt.Fprintf(&b, "CPU: %s\n", orNA(server.CPU))
	fmt.Fprintf(&b, "内存: %s\n", orNA(server.Memory))
	fmt.Fprintf(&b, "存储: %s\n", orNA(server.Storage))
	fmt.Fprintf(&b, "带宽: %s\n", orNA(server.Bandwidth))
	fmt.Fprintf(&b, "时间: %s\n\n", now.Format(timeLayout))
	b.WriteString("💡 快去查看详情！")
	return b.String()
}

// RenderOrderResult builds the follow-up message after a button-triggered
// order attempt.
func RenderOrderResult(params types.OrderParams, placed bool, now time.Time) string {
	var b strings.Builder
	if placed {
		b.WriteString("🛒 订单请求已提交！\n\n")
	} else {
		b.WriteString("❌ 下单失败\n\n")
	}
	fmt.Fprintf(&b, "型号: %s\n", params.PlanCode)
	fmt.Fprintf(&b, "数据中心: %s\n", DatacenterDisplay(params.Datacenter))
	writeConfigTree(&b, params.Config)
	fmt.Fprintf(&b, "时间: %s", now.Format(timeLayout))
	if !placed {
		b.WriteString("\n\n💡 请稍后重试或手动下单。")
	}
	return b.String()
}

// RenderCallbackExpired builds the notice sent when a pressed button's
// order token has aged out of the cache.
func RenderCallbackExpired(now time.Time) string {
	var b strings.Builder
	b.WriteString("⚠️ 下单按钮已过期\n\n")
	b.WriteString("该消息的下单信息已超出保留时限，无法直接下单。\n")
	fmt.Fprintf(&b, "时间: %s\n\n", now.Format(timeLayout))
	b.WriteString("💡 请等待下一次有货通知后再试。")
	return b.String()
}

func writeConfigTree(b *strings.Builder, cfg *types.ConfigInfo) {
	if cfg == nil {
		return
	}
	fmt.Fprintf(b, "配置: %s\n", cfg.Display)
	fmt.Fprintf(b, "├─ 内存: %s\n", cfg.Memory)
	fmt.Fprintf(b, "└─ 存储: %s\n", cfg.Storage)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
