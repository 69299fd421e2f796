package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	movingaverage "github.com/RobinUS2/golang-moving-average"
	"github.com/goodsign/monday"
	"github.com/gorilla/feeds"
	"github.com/gorilla/mux"
	"github.com/hako/durafmt"
	"github.com/underlx/disturbancesvie/compute"
	"github.com/underlx/disturbancesvie/mqttgateway"
	"github.com/underlx/disturbancesvie/types"
)

const websiteURL = "https://www.wienerlinien.at/"

// cycleStatusTracker keeps the outcome of recent cycles for the status page
type cycleStatusTracker struct {
	sync.Mutex
	lastCycle  time.Time
	lastReport *compute.CycleReport
	lastError  string
	cycles     int
	failures   int
	durations  *movingaverage.MovingAverage
}

var cycleStatus = newCycleStatusTracker()

func newCycleStatusTracker() *cycleStatusTracker {
	return &cycleStatusTracker{
		durations: movingaverage.New(60),
	}
}

// Record registers the outcome of a cycle
func (s *cycleStatusTracker) Record(report *compute.CycleReport, err error) {
	s.Lock()
	defer s.Unlock()
	s.cycles++
	s.lastCycle = time.Now()
	s.lastError = ""
	if err != nil {
		s.failures++
		s.lastError = err.Error()
	}
	if report != nil {
		s.lastReport = report
		s.durations.Add(float64(report.Duration))
	}
}

type statusResponse struct {
	GitCommit         string                  `json:"gitCommit"`
	BuildDate         string                  `json:"buildDate"`
	ScraperRunning    bool                    `json:"scraperRunning"`
	LastFeedUpdate    *time.Time              `json:"lastFeedUpdate,omitempty"`
	LastCycle         *time.Time              `json:"lastCycle,omitempty"`
	LastCycleID       string                  `json:"lastCycleId,omitempty"`
	LastCycleDuration string                  `json:"lastCycleDuration,omitempty"`
	LastEvents        map[types.EventKind]int `json:"lastEvents,omitempty"`
	LastError         string                  `json:"lastError,omitempty"`
	AvgCycleMillis    float64                 `json:"avgCycleMillis"`
	Cycles            int                     `json:"cycles"`
	FailedCycles      int                     `json:"failedCycles"`

	MQTT *mqttgateway.MQTTGatewayStats `json:"mqtt,omitempty"`
}

// Status returns a summary of the recorded cycles
func (s *cycleStatusTracker) Status() statusResponse {
	s.Lock()
	defer s.Unlock()
	response := statusResponse{
		GitCommit:    GitCommit,
		BuildDate:    BuildDate,
		LastError:    s.lastError,
		Cycles:       s.cycles,
		FailedCycles: s.failures,
	}
	if s.cycles > 0 {
		t := s.lastCycle
		response.LastCycle = &t
	}
	if s.lastReport != nil {
		response.LastCycleID = s.lastReport.ID.String()
		response.LastCycleDuration = durafmt.Parse(s.lastReport.Duration.Truncate(time.Millisecond)).String()
		response.LastEvents = s.lastReport.Events
		response.AvgCycleMillis = s.durations.Avg() / float64(time.Millisecond)
	}
	return response
}

// WebServer starts the web server
func WebServer(config *Config) {
	router := mux.NewRouter().StrictSlash(true)

	webLog.Println("Starting Web server...")

	router.HandleFunc("/status", StatusPage).Methods(http.MethodGet)
	router.HandleFunc("/disturbances.rss", RSSFeed).Methods(http.MethodGet)

	server := http.Server{
		Addr:    config.WebListenAddr,
		Handler: router,
	}

	err := server.ListenAndServe()
	if err != nil {
		webLog.Println(err)
	}
	webLog.Println("Web server terminated")
}

// StatusPage serves a JSON summary of the reconciliation cycles
func StatusPage(w http.ResponseWriter, r *http.Request) {
	status := cycleStatus.Status()
	if wlscr != nil {
		status.ScraperRunning = wlscr.Running()
		if lastUpdate := wlscr.LastUpdate(); !lastUpdate.IsZero() {
			status.LastFeedUpdate = &lastUpdate
		}
	}
	if mqttGateway != nil {
		status.MQTT = mqttGateway.Stats()
	}
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(status)
	if err != nil {
		webLog.Println(err)
	}
}

// RSSFeed serves the ongoing disturbances as a RSS feed
func RSSFeed(w http.ResponseWriter, r *http.Request) {
	disturbances, err := types.GetOngoingDisturbances(rootSqalxNode)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		webLog.Println(err)
		return
	}

	loc, err := time.LoadLocation("Europe/Vienna")
	if err != nil {
		loc = time.UTC
	}
	rss, err := buildDisturbanceFeed(disturbances, loc, time.Now()).ToRss()
	if err != nil {
		webLog.Println(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Write([]byte(rss))
}

func buildDisturbanceFeed(disturbances []*types.Disturbance, loc *time.Location, now time.Time) *feeds.Feed {
	feed := &feeds.Feed{
		Title:       "Störungen bei den Wiener Linien",
		Link:        &feeds.Link{Href: websiteURL},
		Description: "Aktuelle Betriebsstörungen der Wiener Linien",
		Author:      &feeds.Author{Name: "UnderLX"},
		Updated:     now,
	}

	feed.Items = []*feeds.Item{}
	for _, d := range disturbances {
		names := make([]string, len(d.Lines))
		for i, line := range d.Lines {
			names[i] = line.Name
		}

		description := "Seit " + monday.Format(d.StartTime.In(loc), "Monday, 2. January 2006 15:04", monday.LocaleDeDE)
		if latest := d.LatestDescription(); latest != nil {
			description += " - " + latest.Text
		}

		title := d.Title
		if len(names) > 0 {
			title = strings.Join(names, ", ") + ": " + d.Title
		}
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          d.ID,
			Title:       title,
			Link:        &feeds.Link{Href: websiteURL},
			Description: description,
			Created:     d.StartTime,
		})
	}
	return feed
}
