// Package ui provides terminal user interface components.
package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/wadatrip/farewatch/internal/metrics"
	"github.com/wadatrip/farewatch/internal/store"
)

// MonitorLister supplies the active monitors to display.
type MonitorLister interface {
	ListActiveMonitors() []store.Monitor
}

// QuoteSource supplies the currently fresh quotes, most recent first.
type QuoteSource interface {
	Snapshot() []store.Quote
}

// App is the main TUI application.
type App struct {
	app    *tview.Application
	layout *tview.Flex

	// Views
	monitors       *MonitorsView
	alertFeed      *AlertFeedView
	liveQuotes     *LiveQuotesView
	statsDashboard *StatsDashboardView
	routeMovers    *RouteMoversView

	// Data sources
	alertChan      <-chan store.Alert
	quoteChan      <-chan store.Quote
	metricsTracker *metrics.MetricsTracker
	monitorLister  MonitorLister
	quoteSource    QuoteSource
	refreshRate    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates a new TUI application.
func NewApp(alertChan <-chan store.Alert, quoteChan <-chan store.Quote, quotes QuoteSource, tracker *metrics.MetricsTracker, lister MonitorLister, refreshRate time.Duration) *App {
	ctx, cancel := context.WithCancel(context.Background())
	if refreshRate <= 0 {
		refreshRate = 500 * time.Millisecond
	}

	app := &App{
		app:            tview.NewApplication(),
		alertChan:      alertChan,
		quoteChan:      quoteChan,
		metricsTracker: tracker,
		monitorLister:  lister,
		quoteSource:    quotes,
		refreshRate:    refreshRate,
		ctx:            ctx,
		cancel:         cancel,
	}

	app.monitors = NewMonitorsView()
	app.alertFeed = NewAlertFeedView()
	app.liveQuotes = NewLiveQuotesView()
	app.statsDashboard = NewStatsDashboardView()
	app.routeMovers = NewRouteMoversView()
	app.liveQuotes.SetQuotes(quotes.Snapshot())

	app.setupLayout()
	app.setupKeyboard()

	return app
}

// setupLayout creates the 5-panel layout.
func (a *App) setupLayout() {
	// Top row: Active Monitors (left) | Alerts (right)
	topRow := tview.NewFlex().
		AddItem(a.monitors.Widget(), 0, 2, false).
		AddItem(a.alertFeed.Widget(), 0, 1, false)

	middleRow := a.liveQuotes.Widget()

	// Bottom row: Stats Dashboard (left) | Route Movers (right)
	bottomRow := tview.NewFlex().
		AddItem(a.statsDashboard.Widget(), 0, 1, false).
		AddItem(a.routeMovers.Widget(), 0, 1, false)

	a.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(topRow, 0, 3, false).
		AddItem(middleRow, 0, 2, false).
		AddItem(bottomRow, 0, 3, false)

	a.app.SetRoot(a.layout, true)
}

// setupKeyboard configures keyboard shortcuts.
func (a *App) setupKeyboard() {
	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			a.Stop()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q', 'Q':
				a.Stop()
				return nil
			case 'r', 'R':
				a.refresh()
				return nil
			}
		}
		return event
	})
}

// Run starts the TUI application (blocking).
func (a *App) Run() error {
	go a.processAlerts()
	go a.processQuotes()
	go a.updateLoop()

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("app run failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the application.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

// processAlerts reads from the alert channel and updates the feed.
func (a *App) processAlerts() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case alert, ok := <-a.alertChan:
			if !ok {
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.alertFeed.AddAlert(alert)
			})
		}
	}
}

// processQuotes reads from the quote channel and updates the quote feed.
func (a *App) processQuotes() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case q, ok := <-a.quoteChan:
			if !ok {
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.liveQuotes.AddQuote(q)
			})
		}
	}
}

// updateLoop periodically refreshes views with metrics and monitor data.
func (a *App) updateLoop() {
	ticker := time.NewTicker(a.refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.redraw()
		}
	}
}

// refresh manually refreshes all views. The quote feed is rebuilt from the
// fresh quotes, dropping expired ones.
func (a *App) refresh() {
	fresh := a.quoteSource.Snapshot()
	a.app.QueueUpdateDraw(func() {
		a.alertFeed.Refresh()
		a.liveQuotes.SetQuotes(fresh)
	})
	a.redraw()
}

func (a *App) redraw() {
	snapshot := a.metricsTracker.Snapshot()
	active := a.monitorLister.ListActiveMonitors()

	a.app.QueueUpdateDraw(func() {
		a.monitors.Update(active)
		a.statsDashboard.Update(snapshot)
		a.routeMovers.Update(snapshot)
	})
}
