package scraper

import (
	"time"
)

// Scraper is something that runs in the background retrieving information
// about a transit network
type Scraper interface {
	ID() string
	Begin()
	End()
	Running() bool
}

// FeedScraper is a Scraper that periodically pulls a feed
type FeedScraper interface {
	Scraper
	LastUpdate() time.Time
}
