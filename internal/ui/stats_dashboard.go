package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
	"github.com/wadatrip/farewatch/internal/metrics"
	"github.com/wadatrip/farewatch/internal/store"
)

// StatsDashboardView displays system health and monitor counters.
type StatsDashboardView struct {
	textView *tview.TextView
}

// NewStatsDashboardView creates a new stats dashboard view.
func NewStatsDashboardView() *StatsDashboardView {
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)

	textView.SetTitle(" Stats Dashboard ").SetBorder(true)

	return &StatsDashboardView{
		textView: textView,
	}
}

// Widget returns the tview primitive.
func (v *StatsDashboardView) Widget() tview.Primitive {
	return v.textView
}

// Update refreshes the stats display.
func (v *StatsDashboardView) Update(snapshot metrics.MetricsSnapshot) {
	v.textView.Clear()
	fmt.Fprint(v.textView, formatStats(snapshot))
}

func formatStats(snapshot metrics.MetricsSnapshot) string {
	wsStatus := snapshot.WebSocketStatus
	wsColor := "red"
	if wsStatus == "connected" {
		wsColor = "green"
	}

	bufferPct := 0.0
	if snapshot.ChannelBufferCap > 0 {
		bufferPct = (float64(snapshot.ChannelBufferUsed) / float64(snapshot.ChannelBufferCap)) * 100
	}

	return fmt.Sprintf(`[yellow]System Status[-]
Uptime: %s
Quote Feed: [%s]%s[-]
Provider Poll: %s

[yellow]Monitors[-]
Active: %d
Checks: %d
Completed: %d
Expired: %d
Cancelled: %d

[yellow]Quotes & Signals[-]
Quotes: %d (%.1f/min)
Price Drops: %d
Price Spikes: %d

[yellow]Failures[-]
Notify: %d
Persist: %d
Quote Buffer: %d/%d (%.1f%%)
`,
		formatDuration(snapshot.Uptime),
		wsColor, wsStatus,
		formatTimeAgo(snapshot.LastProviderPoll),
		snapshot.ActiveMonitors,
		snapshot.ChecksTotal,
		snapshot.TransitionsByState[store.StatusCompleted],
		snapshot.TransitionsByState[store.StatusExpired],
		snapshot.TransitionsByState[store.StatusCancelled],
		snapshot.QuotesTotal,
		snapshot.QuoteRate,
		snapshot.SignalsByType[store.SignalPriceDrop],
		snapshot.SignalsByType[store.SignalPriceSpike],
		snapshot.SideEffectFailures["notify"],
		snapshot.SideEffectFailures["persist"],
		snapshot.ChannelBufferUsed,
		snapshot.ChannelBufferCap,
		bufferPct,
	)
}

// formatDuration formats a duration in human-readable form.
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// formatTimeAgo formats a time as "X ago".
func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	elapsed := time.Since(t)

	if elapsed < time.Minute {
		return fmt.Sprintf("%.0fs ago", elapsed.Seconds())
	}
	if elapsed < time.Hour {
		return fmt.Sprintf("%.0fm ago", elapsed.Minutes())
	}
	if elapsed < 24*time.Hour {
		return fmt.Sprintf("%.0fh ago", elapsed.Hours())
	}
	return fmt.Sprintf("%.0fd ago", elapsed.Hours()/24)
}
