package main

import (
	"time"

	"github.com/underlx/disturbancesvie/compute"
	"github.com/underlx/disturbancesvie/types"
	statsd "gopkg.in/alexcesaro/statsd.v2"
)

type cycleOutcome struct {
	Report *compute.CycleReport
	Err    error
}

// CycleTelemetry is a channel where the outcome of each reconciliation cycle
// is sent. Sends must not block.
var CycleTelemetry = make(chan cycleOutcome, 10)

// statsClient is the subset of *statsd.Client used to report cycles
type statsClient interface {
	Count(bucket string, n interface{})
	Increment(bucket string)
	Timing(bucket string, value interface{})
}

// StatsSender is meant to be called as a goroutine that handles sending telemetry
// to a statsd (or compatible) server
func StatsSender(config *Config) {
	if config.StatsdAddress == "" || config.StatsdPrefix == "" {
		return
	}

	c, err := statsd.New(statsd.Address(config.StatsdAddress), statsd.Prefix(config.StatsdPrefix))
	if err != nil {
		// If nothing is listening on the target port, an error is returned and
		// the returned client does nothing but is still usable. So we can
		// just log the error and go on.
		mainLog.Println(err)
	}
	defer c.Close()

	for outcome := range CycleTelemetry {
		sendCycleStats(c, outcome)
	}
}

func sendCycleStats(c statsClient, outcome cycleOutcome) {
	c.Increment("cycles")
	if outcome.Err != nil {
		c.Increment("cycle_errors")
	}
	r := outcome.Report
	if r == nil {
		return
	}
	c.Timing("cycle_duration", int(r.Duration/time.Millisecond))
	c.Count("feed_entries", r.Entries)
	c.Count("events_new", r.Events[types.NewEvent])
	c.Count("events_reopened", r.Events[types.ReopenedEvent])
	c.Count("events_updated", r.Events[types.UpdatedEvent])
	c.Count("events_resolved", r.Events[types.ResolvedEvent])
	if r.Push != nil {
		c.Count("pushes", r.Push.Pushes)
		c.Count("push_delivered", r.Push.Sent)
		c.Count("push_failed", r.Push.Failed)
		c.Count("devices_pruned", r.Push.Pruned)
	}
}
