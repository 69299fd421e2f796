package wlscraper

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

// maxFeedSize is the largest feed body that will be read
const maxFeedSize = 8 << 20

// FetchError is returned when the feed can't be retrieved
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetch retrieves the raw feed body at url
func Fetch(client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	response, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, &FetchError{URL: url, StatusCode: response.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxFeedSize+1))
	if err != nil {
		return nil, &FetchError{URL: url, StatusCode: response.StatusCode, Err: err}
	}
	if len(body) > maxFeedSize {
		return nil, &FetchError{URL: url, StatusCode: response.StatusCode,
			Err: fmt.Errorf("body exceeds %d bytes", maxFeedSize)}
	}
	return body, nil
}

// Scraper is a scraper for the Wiener Linien traffic info feed
type Scraper struct {
	running    bool
	ticker     *time.Ticker
	stopChan   chan struct{}
	doneChan   chan struct{}
	log        *log.Logger
	mu         sync.Mutex
	lastUpdate time.Time

	URL        string
	HTTPClient *http.Client
	// Location is used for feed timestamps that carry no zone
	Location     *time.Location
	Period       time.Duration
	FeedCallback func(entries []*Entry) error
	// OnCycleEnd, when set, is called after every cycle with its outcome,
	// including fetch, parse and callback errors and recovered panics
	OnCycleEnd func(err error)
}

// ID returns the ID of this scraper
func (sc *Scraper) ID() string {
	return "sc-at-wl-trafficinfo"
}

// Init initializes the scraper
func (sc *Scraper) Init(log *log.Logger) error {
	sc.log = log

	if sc.HTTPClient == nil {
		sc.HTTPClient = &http.Client{
			Timeout: 10 * time.Second,
		}
	}
	if sc.Location == nil {
		loc, err := time.LoadLocation("Europe/Vienna")
		if err != nil {
			return err
		}
		sc.Location = loc
	}
	if sc.Period <= 0 {
		sc.Period = time.Minute
	}
	if sc.FeedCallback == nil {
		return fmt.Errorf("Init: FeedCallback not set")
	}
	return nil
}

// Begin starts the scraper. The first cycle runs immediately.
func (sc *Scraper) Begin() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.stopChan = make(chan struct{})
	sc.doneChan = make(chan struct{})
	sc.ticker = time.NewTicker(sc.Period)
	sc.running = true
	go sc.mainLoop(sc.ticker, sc.stopChan, sc.doneChan)
}

// End stops the scraper, waiting for the cycle in progress, if any, to finish
func (sc *Scraper) End() {
	sc.mu.Lock()
	if !sc.running {
		sc.mu.Unlock()
		return
	}
	sc.ticker.Stop()
	close(sc.stopChan)
	doneChan := sc.doneChan
	sc.running = false
	sc.mu.Unlock()
	<-doneChan
}

// Running returns whether the scraper is running
func (sc *Scraper) Running() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.running
}

// LastUpdate returns when the feed was last fetched and parsed successfully
func (sc *Scraper) LastUpdate() time.Time {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.lastUpdate
}

func (sc *Scraper) mainLoop(ticker *time.Ticker, stopChan, doneChan chan struct{}) {
	defer close(doneChan)
	sc.cycle()
	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			select {
			case <-stopChan:
				return
			default:
			}
			sc.cycle()
		}
	}
}

func (sc *Scraper) cycle() {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
		}
		if err != nil {
			sc.log.Printf("Cycle at %s failed: %v", time.Now().Format(time.RFC3339), err)
		}
		if sc.OnCycleEnd != nil {
			sc.OnCycleEnd(err)
		}
	}()
	err = sc.Update()
}

// Update fetches and parses the feed once and passes the entries to FeedCallback
func (sc *Scraper) Update() error {
	data, err := Fetch(sc.HTTPClient, sc.URL)
	if err != nil {
		return err
	}
	entries, err := ParseFeed(data, sc.Location)
	if err != nil {
		return err
	}

	sc.mu.Lock()
	sc.lastUpdate = time.Now()
	sc.mu.Unlock()

	return sc.FeedCallback(entries)
}
