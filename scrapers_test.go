package main

import (
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/underlx/disturbancesvie/compute"
	"github.com/underlx/disturbancesvie/scraper/wlscraper"
)

func drainTelemetry() {
	for {
		select {
		case <-CycleTelemetry:
		default:
			return
		}
	}
}

func TestFailedFetchIsRecorded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cycleStatus = newCycleStatusTracker()
	drainTelemetry()
	defer drainTelemetry()

	sc := &wlscraper.Scraper{
		URL:          server.URL,
		HTTPClient:   server.Client(),
		Location:     time.UTC,
		Period:       time.Hour,
		FeedCallback: handleFeed,
		OnCycleEnd:   recordCycle,
	}
	require.NoError(t, sc.Init(log.New(io.Discard, "", 0)))
	sc.Begin()

	var outcome cycleOutcome
	select {
	case outcome = <-CycleTelemetry:
	case <-time.After(5 * time.Second):
		t.Fatal("failed cycle did not reach telemetry")
	}
	sc.End()

	var fetchErr *wlscraper.FetchError
	require.True(t, errors.As(outcome.Err, &fetchErr))
	assert.Equal(t, http.StatusServiceUnavailable, fetchErr.StatusCode)
	assert.Nil(t, outcome.Report)

	status := cycleStatus.Status()
	assert.Equal(t, 1, status.Cycles)
	assert.Equal(t, 1, status.FailedCycles)
	assert.Contains(t, status.LastError, "503")
}

func TestRecordCycleUsesHandledReport(t *testing.T) {
	cycleStatus = newCycleStatusTracker()
	drainTelemetry()
	defer drainTelemetry()

	handledReport = &compute.CycleReport{Duration: time.Second, Entries: 3}
	recordCycle(nil)
	assert.Nil(t, handledReport)

	outcome := <-CycleTelemetry
	require.NotNil(t, outcome.Report)
	assert.Equal(t, 3, outcome.Report.Entries)
	assert.NoError(t, outcome.Err)

	status := cycleStatus.Status()
	assert.Equal(t, 1, status.Cycles)
	assert.Equal(t, 0, status.FailedCycles)
}
