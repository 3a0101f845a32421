package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/wadatrip/farewatch/internal/metrics"
)

var moverHeaders = []string{"Route", "Change", "Price", "Checks", "Quotes"}

// RouteMoversView displays routes with the largest recent price changes.
type RouteMoversView struct {
	table *tview.Table
}

// NewRouteMoversView creates a new route movers view.
func NewRouteMoversView() *RouteMoversView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Route Movers ").SetBorder(true)
	setHeaders(table, moverHeaders)

	return &RouteMoversView{table: table}
}

// Widget returns the tview primitive.
func (v *RouteMoversView) Widget() tview.Primitive {
	return v.table
}

// Update redraws the table. Movers arrive sorted by magnitude.
func (v *RouteMoversView) Update(snapshot metrics.MetricsSnapshot) {
	v.table.Clear()
	setHeaders(v.table, moverHeaders)

	movers := snapshot.TopMovers
	if len(movers) > 10 {
		movers = movers[:10]
	}

	if len(movers) == 0 {
		cell := tview.NewTableCell("No data yet...").
			SetAlign(tview.AlignCenter).
			SetExpansion(1)
		v.table.SetCell(1, 0, cell)
		return
	}

	for i, mover := range movers {
		row := i + 1

		// Falling fares are good news here.
		changeColor := tcell.ColorWhite
		if mover.PriceChange < 0 {
			changeColor = tcell.ColorGreen
		} else if mover.PriceChange > 0 {
			changeColor = tcell.ColorRed
		}

		v.table.SetCell(row, 0, tview.NewTableCell(mover.Route.String()).SetAlign(tview.AlignLeft))
		v.table.SetCell(row, 1, tview.NewTableCell(fmt.Sprintf("%+.2f%%", mover.PriceChange)).
			SetAlign(tview.AlignRight).
			SetTextColor(changeColor))
		v.table.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf("$%d", mover.CurrentPrice)).SetAlign(tview.AlignRight))
		v.table.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%d", mover.CheckCount)).SetAlign(tview.AlignRight))
		v.table.SetCell(row, 4, tview.NewTableCell(fmt.Sprintf("%d", mover.QuoteCount)).SetAlign(tview.AlignRight))
	}
}
