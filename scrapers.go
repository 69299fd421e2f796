package main

import (
	"log"
	"os"
	"time"

	"github.com/underlx/disturbancesvie/compute"
	"github.com/underlx/disturbancesvie/scraper"
	"github.com/underlx/disturbancesvie/scraper/wlscraper"
)

var (
	wlscr *wlscraper.Scraper

	scrapers = make(map[string]scraper.Scraper)
)

var _ scraper.FeedScraper = (*wlscraper.Scraper)(nil)

// SetUpScrapers initializes and starts the scrapers used to obtain network information
func SetUpScrapers(config *Config) error {
	wlscr = &wlscraper.Scraper{
		URL:          config.FeedURL,
		Period:       config.UpdatePeriod,
		FeedCallback: handleFeed,
		OnCycleEnd:   recordCycle,
	}
	err := wlscr.Init(log.New(os.Stdout, "wlscraper", log.Ldate|log.Ltime))
	if err != nil {
		return err
	}
	wlscr.Begin()
	scrapers[wlscr.ID()] = wlscr
	return nil
}

// handledReport is set by handleFeed and consumed by recordCycle. Both run on
// the scraper goroutine, one after the other.
var handledReport *compute.CycleReport

func handleFeed(entries []*wlscraper.Entry) error {
	report, err := disturbanceHandler.HandleEntries(entries)
	handledReport = report
	return err
}

// recordCycle registers the outcome of every cycle, including the ones that
// failed before the feed reached the handler
func recordCycle(err error) {
	report := handledReport
	handledReport = nil
	cycleStatus.Record(report, err)

	select {
	case CycleTelemetry <- cycleOutcome{Report: report, Err: err}:
	default:
	}

	if err == nil {
		mainLog.Println("Database updated successfully at", time.Now().Format(time.RFC3339))
	}
}

// TearDownScrapers terminates and cleans up the scrapers used to obtain network information
func TearDownScrapers() {
	for _, s := range scrapers {
		if s.Running() {
			s.End()
		}
	}
}
