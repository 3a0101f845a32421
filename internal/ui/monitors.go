package ui

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/wadatrip/farewatch/internal/store"
)

var monitorHeaders = []string{"Monitor", "Route", "Budget", "Best", "Advice", "Checks", "Expires"}

// MonitorsView lists active monitors.
type MonitorsView struct {
	table *tview.Table
	now   func() time.Time
}

// NewMonitorsView creates a new monitors view.
func NewMonitorsView() *MonitorsView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Active Monitors ").SetBorder(true)
	setHeaders(table, monitorHeaders)

	return &MonitorsView{table: table, now: time.Now}
}

// Widget returns the tview primitive.
func (v *MonitorsView) Widget() tview.Primitive {
	return v.table
}

// Update redraws the table from the given monitors, in creation order.
func (v *MonitorsView) Update(monitors []store.Monitor) {
	v.table.Clear()
	setHeaders(v.table, monitorHeaders)

	now := v.now()
	for i, m := range monitors {
		row := i + 1

		best := "-"
		bestColor := tcell.ColorWhite
		if m.BestPriceSeen != nil {
			best = fmt.Sprintf("$%d", *m.BestPriceSeen)
			if float64(*m.BestPriceSeen) <= m.Budget*1.1 {
				bestColor = tcell.ColorYellow
			}
		}
		advice := "-"
		if m.LastAdvice != nil {
			advice = string(m.LastAdvice.Recommendation)
		}

		cells := []*tview.TableCell{
			tview.NewTableCell(shortID(m.ID)),
			tview.NewTableCell(m.Route.String()),
			tview.NewTableCell(fmt.Sprintf("$%.0f", m.Budget)).SetAlign(tview.AlignRight),
			tview.NewTableCell(best).SetAlign(tview.AlignRight).SetTextColor(bestColor),
			tview.NewTableCell(advice),
			tview.NewTableCell(fmt.Sprintf("%d", m.ChecksCount)).SetAlign(tview.AlignRight),
			tview.NewTableCell(formatDuration(m.ExpiresAt.Sub(now))),
		}
		for col, cell := range cells {
			v.table.SetCell(row, col, cell.SetExpansion(1))
		}
	}

	v.table.SetTitle(fmt.Sprintf(" Active Monitors (%d) ", len(monitors)))
}

// shortID keeps the first uuid group.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func setHeaders(table *tview.Table, headers []string) {
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetAlign(tview.AlignLeft).
			SetSelectable(false)
		table.SetCell(0, col, cell)
	}
}
