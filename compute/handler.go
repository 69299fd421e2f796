package compute

import (
	"io"
	"log"
	"time"

	"github.com/gbl08ma/sqalx"
	"github.com/hako/durafmt"
	cache "github.com/patrickmn/go-cache"
	uuid "github.com/satori/go.uuid"
	"github.com/underlx/disturbancesvie/notifs"
	"github.com/underlx/disturbancesvie/scraper/wlscraper"
	"github.com/underlx/disturbancesvie/types"
)

// EventDispatcher delivers the events of a cycle
type EventDispatcher interface {
	Dispatch(events []*types.DisturbanceEvent) (*notifs.Report, error)
}

// EventPublisher is notified of the events of every committed cycle, before
// they are dispatched
type EventPublisher interface {
	PublishEvents(events []*types.DisturbanceEvent)
}

// CycleReport summarizes one reconciliation cycle
type CycleReport struct {
	ID       uuid.UUID
	Start    time.Time
	Duration time.Duration
	Entries  int
	// Events holds the number of events emitted per kind
	Events map[types.EventKind]int
	// Push is nil when fanout didn't run
	Push *notifs.Report
}

// DisturbanceHandler runs the body of a cycle: it reconciles the feed entries
// against the stored disturbances, commits the result and dispatches the
// resulting events
type DisturbanceHandler struct {
	node       sqalx.Node
	lineCache  *cache.Cache
	dispatcher EventDispatcher
	publishers []EventPublisher
	log        *log.Logger
	now        func() time.Time
}

// NewDisturbanceHandler returns a new, initialized DisturbanceHandler
func NewDisturbanceHandler(node sqalx.Node, dispatcher EventDispatcher, log *log.Logger) *DisturbanceHandler {
	return &DisturbanceHandler{
		node:       node,
		lineCache:  NewLineCache(),
		dispatcher: dispatcher,
		log:        log,
		now:        time.Now,
	}
}

// AddPublisher registers a publisher for the events of future cycles
func (h *DisturbanceHandler) AddPublisher(publisher EventPublisher) {
	h.publishers = append(h.publishers, publisher)
}

// HandleEntries reconciles a feed snapshot. Events are only dispatched once the
// reconciliation has been committed.
func (h *DisturbanceHandler) HandleEntries(entries []*wlscraper.Entry) (*CycleReport, error) {
	report := &CycleReport{
		Start:   h.now(),
		Entries: len(entries),
		Events:  make(map[types.EventKind]int),
	}
	id, err := uuid.NewV4()
	if err == nil {
		report.ID = id
	}
	defer func() {
		report.Duration = time.Since(report.Start)
	}()

	tx, err := h.node.Beginx()
	if err != nil {
		return report, &StorageError{Op: "begin", Err: err}
	}
	defer tx.Rollback()

	registry := NewLineRegistry(NodeLineStore{tx}, h.lineCache)
	open, err := types.GetOngoingDisturbances(tx)
	if err != nil {
		return report, &StorageError{Op: "load open disturbances", Err: err}
	}

	cs, err := ReconcileEntries(entries, registry, open, NodeDisturbanceLookup{tx}, report.Start)
	if err != nil {
		return report, err
	}

	err = cs.Persist(tx)
	if err != nil {
		return report, err
	}
	err = tx.Commit()
	if err != nil {
		return report, &StorageError{Op: "commit", Err: err}
	}
	registry.Commit()

	for _, e := range cs.Events {
		report.Events[e.Kind]++
	}
	h.logger().Printf("Cycle %s: %d entries, %d new, %d reopened, %d updated, %d resolved", report.ID, len(entries),
		report.Events[types.NewEvent], report.Events[types.ReopenedEvent],
		report.Events[types.UpdatedEvent], report.Events[types.ResolvedEvent])

	if len(cs.Events) == 0 {
		return report, nil
	}
	for _, publisher := range h.publishers {
		publisher.PublishEvents(cs.Events)
	}

	if h.dispatcher == nil {
		return report, nil
	}
	report.Push, err = h.dispatcher.Dispatch(cs.Events)
	if report.Push != nil {
		h.logger().Printf("Cycle %s: %d pushes, %d delivered, %d failed, %d devices pruned, took %s", report.ID,
			report.Push.Pushes, report.Push.Sent, report.Push.Failed, report.Push.Pruned,
			durafmt.Parse(time.Since(report.Start)).String())
	}
	return report, err
}

// ReconcileEntries normalizes and merges feed entries into candidates and
// reconciles them against the open disturbances
func ReconcileEntries(entries []*wlscraper.Entry, resolver wlscraper.LineResolver, open []*types.Disturbance, lookup DisturbanceLookup, now time.Time) (*Changeset, error) {
	candidates, err := wlscraper.BuildCandidates(entries, resolver)
	if err != nil {
		return nil, err
	}
	return Reconcile(wlscraper.MergeDuplicates(candidates), open, lookup, now)
}

func (h *DisturbanceHandler) logger() *log.Logger {
	if h.log == nil {
		h.log = log.New(io.Discard, "", 0)
	}
	return h.log
}
