package ui

import (
	"fmt"

	"github.com/rivo/tview"
	"github.com/wadatrip/farewatch/internal/store"
)

// AlertFeedView displays notifications sent to monitor contacts.
type AlertFeedView struct {
	list     *tview.List
	alerts   []store.Alert
	maxItems int
}

// NewAlertFeedView creates a new alert feed view.
func NewAlertFeedView() *AlertFeedView {
	list := tview.NewList().
		ShowSecondaryText(true)

	list.SetTitle(" Alerts ").SetBorder(true)

	v := &AlertFeedView{
		list:     list,
		alerts:   make([]store.Alert, 0, 50),
		maxItems: 50,
	}
	v.rebuildList()
	return v
}

// Widget returns the tview primitive.
func (v *AlertFeedView) Widget() tview.Primitive {
	return v.list
}

// AddAlert adds an alert to the top of the feed.
func (v *AlertFeedView) AddAlert(alert store.Alert) {
	v.alerts = append([]store.Alert{alert}, v.alerts...)
	if len(v.alerts) > v.maxItems {
		v.alerts = v.alerts[:v.maxItems]
	}
	v.rebuildList()
}

// Refresh redraws the list.
func (v *AlertFeedView) Refresh() {
	v.rebuildList()
}

func (v *AlertFeedView) rebuildList() {
	v.list.Clear()

	if len(v.alerts) == 0 {
		v.list.AddItem("No alerts sent yet", "", 0, nil)
		return
	}

	for _, alert := range v.alerts {
		mainText, secondaryText := formatAlert(alert)
		v.list.AddItem(mainText, secondaryText, 0, nil)
	}

	v.list.SetTitle(fmt.Sprintf(" Alerts (%d) ", len(v.alerts)))
}

func formatAlert(alert store.Alert) (string, string) {
	color := "green"
	if alert.Kind == store.AlertExpired {
		color = "gray"
	}
	mainText := fmt.Sprintf("%s [%s]%s[-] %s", alert.SentAt.Format("15:04:05"), color, alert.Title, alert.Route.String())
	return mainText, fmt.Sprintf("%s | %s", shortID(alert.MonitorID), alert.Body)
}
