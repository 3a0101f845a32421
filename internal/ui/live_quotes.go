package ui

import (
	"fmt"

	"github.com/rivo/tview"
	"github.com/wadatrip/farewatch/internal/store"
)

var quoteHeaders = []string{"Time", "Route", "Date", "Price", "Provider"}

// LiveQuotesView displays a scrolling feed of observed fares.
type LiveQuotesView struct {
	table   *tview.Table
	quotes  []store.Quote
	maxRows int
}

// NewLiveQuotesView creates a new live quotes view.
func NewLiveQuotesView() *LiveQuotesView {
	table := tview.NewTable().
		SetBorders(false).
		SetFixed(1, 0)

	table.SetTitle(" Live Quotes ").SetBorder(true)
	setHeaders(table, quoteHeaders)

	return &LiveQuotesView{
		table:   table,
		quotes:  make([]store.Quote, 0, 100),
		maxRows: 100,
	}
}

// Widget returns the tview primitive.
func (v *LiveQuotesView) Widget() tview.Primitive {
	return v.table
}

// AddQuote adds a quote to the top of the feed.
func (v *LiveQuotesView) AddQuote(q store.Quote) {
	v.quotes = append([]store.Quote{q}, v.quotes...)
	if len(v.quotes) > v.maxRows {
		v.quotes = v.quotes[:v.maxRows]
	}
	v.updateTable()
}

// SetQuotes replaces the feed with quotes, most recent first.
func (v *LiveQuotesView) SetQuotes(quotes []store.Quote) {
	if len(quotes) > v.maxRows {
		quotes = quotes[:v.maxRows]
	}
	v.quotes = append(v.quotes[:0], quotes...)
	v.updateTable()
}

func (v *LiveQuotesView) updateTable() {
	v.table.Clear()
	setHeaders(v.table, quoteHeaders)

	for i, q := range v.quotes {
		date := q.DepartureDate
		if date == "" {
			date = "any"
		}
		cells := []string{
			q.CollectedAt.Format("15:04:05"),
			q.Route().String(),
			date,
			fmt.Sprintf("%d %s", q.Price, q.Currency),
			q.Provider,
		}
		for col, text := range cells {
			v.table.SetCell(i+1, col, tview.NewTableCell(text).SetAlign(tview.AlignLeft))
		}
	}

	v.table.SetTitle(fmt.Sprintf(" Live Quotes (%d) ", len(v.quotes)))
}
