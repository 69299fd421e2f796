package compute

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/underlx/disturbancesvie/scraper/wlscraper"
	"github.com/underlx/disturbancesvie/types"
)

// memoryDisturbances keeps disturbances the way the database would, handing
// out copies so that reconciliation can't reach into stored state
type memoryDisturbances struct {
	byID    map[string]*types.Disturbance
	order   []string
	findErr error
}

func newMemoryDisturbances() *memoryDisturbances {
	return &memoryDisturbances{byID: make(map[string]*types.Disturbance)}
}

func (m *memoryDisturbances) FindDisturbance(id string) (*types.Disturbance, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	d, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	return d.Snapshot(), nil
}

func (m *memoryDisturbances) open() []*types.Disturbance {
	open := []*types.Disturbance{}
	for _, id := range m.order {
		if d := m.byID[id]; !d.Ended {
			open = append(open, d.Snapshot())
		}
	}
	return open
}

func (m *memoryDisturbances) apply(cs *Changeset) {
	for _, d := range append(append([]*types.Disturbance{}, cs.Created...), cs.Modified...) {
		if _, ok := m.byID[d.ID]; !ok {
			m.order = append(m.order, d.ID)
		}
		m.byID[d.ID] = d.Snapshot()
	}
}

func eventKinds(cs *Changeset) []types.EventKind {
	kinds := []types.EventKind{}
	for _, e := range cs.Events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func entry(name, title, description string, lines ...string) *wlscraper.Entry {
	e := &wlscraper.Entry{
		Name:        name,
		Title:       title,
		Description: description,
		StartTime:   time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC),
	}
	for _, line := range lines {
		e.Lines = append(e.Lines, wlscraper.LineReference{Code: line, Type: "ptMetro"})
	}
	return e
}

type runner struct {
	t      *testing.T
	store  *memoryDisturbances
	lines  *memoryLines
	cycles int
}

func newRunner(t *testing.T) *runner {
	return &runner{t: t, store: newMemoryDisturbances(), lines: newMemoryLines()}
}

func (r *runner) cycle(entries ...*wlscraper.Entry) *Changeset {
	r.cycles++
	now := time.Date(2024, 3, 1, 8, r.cycles, 0, 0, time.UTC)
	registry := NewLineRegistry(r.lines, nil)
	cs, err := ReconcileEntries(entries, registry, r.store.open(), r.store, now)
	require.NoError(r.t, err)
	r.store.apply(cs)
	return cs
}

func TestReconcileThreeCycles(t *testing.T) {
	r := newRunner(t)

	cs := r.cycle(entry("U1", "U1 Störung", "Signal fault", "U1"))
	assert.Equal(t, []types.EventKind{types.NewEvent}, eventKinds(cs))
	require.Len(t, cs.Created, 1)
	assert.Equal(t, []string{"U1"}, cs.Created[0].LineIDs())
	assert.False(t, r.store.byID["U1"].Ended)

	cs = r.cycle()
	assert.Equal(t, []types.EventKind{types.ResolvedEvent}, eventKinds(cs))
	assert.True(t, r.store.byID["U1"].Ended)
	assert.Equal(t, time.Date(2024, 3, 1, 8, 2, 0, 0, time.UTC), r.store.byID["U1"].EndTime)
	assert.True(t, cs.Events[0].Disturbance.Ended)

	cs = r.cycle(entry("U1", "U1 Störung", "Signal fault", "U1"))
	assert.Equal(t, []types.EventKind{types.ReopenedEvent}, eventKinds(cs))
	assert.Empty(t, cs.Created)
	stored := r.store.byID["U1"]
	assert.False(t, stored.Ended)
	assert.True(t, stored.EndTime.IsZero())
	assert.Len(t, stored.Descriptions, 1)
	assert.Len(t, r.store.order, 1)
}

func TestReconcileReopenAndUpdate(t *testing.T) {
	r := newRunner(t)
	r.cycle(entry("U2", "U2 Störung", "Signal fault", "U2"))
	r.cycle()

	cs := r.cycle(entry("U2", "U2 Störung", "Rettungseinsatz", "U2"))
	assert.Equal(t, []types.EventKind{types.ReopenedEvent, types.UpdatedEvent}, eventKinds(cs))
	assert.Equal(t, "Rettungseinsatz", cs.Events[1].UpdateText)

	// both snapshots reflect the state after the whole cycle
	for _, e := range cs.Events {
		assert.False(t, e.Disturbance.Ended)
		assert.Equal(t, "Rettungseinsatz", e.Disturbance.LatestDescription().Text)
	}

	stored := r.store.byID["U2"]
	require.Len(t, stored.Descriptions, 2)
	assert.Equal(t, time.Date(2024, 3, 1, 8, 3, 0, 0, time.UTC), stored.Descriptions[1].CreatedAt)
}

func TestReconcileNoChanges(t *testing.T) {
	r := newRunner(t)
	r.cycle(entry("ma_1", "U1 Störung", "Signal fault", "U1"))

	cs := r.cycle(entry("ma_1", "U1 Störung", "Signal fault", "U1"))
	assert.Empty(t, cs.Events)
	assert.Empty(t, cs.Created)
	assert.Empty(t, cs.Modified)
}

func TestReconcileTitleChangeReclassifies(t *testing.T) {
	r := newRunner(t)
	r.cycle(entry("ma_1", "U1 Störung", "Signal fault", "U1"))

	cs := r.cycle(entry("ma_1", "U1 Verspätung", "Signal fault", "U1"))
	assert.Empty(t, cs.Events)
	require.Len(t, cs.Modified, 1)
	assert.Equal(t, "U1 Verspätung", r.store.byID["ma_1"].Title)
	assert.Equal(t, types.DelayDisturbance, r.store.byID["ma_1"].Type)
}

func TestReconcileLinesOnlyGrow(t *testing.T) {
	r := newRunner(t)
	r.cycle(entry("ma_1", "Störung", "Text", "U1", "U2"))

	r.cycle(entry("ma_1", "Störung", "Text", "U3", "U4", "U6"))
	assert.Equal(t, []string{"U3", "U4", "U6"}, r.store.byID["ma_1"].LineIDs())

	cs := r.cycle(entry("ma_1", "Störung", "Text", "U1"))
	assert.Empty(t, cs.Modified)
	assert.Equal(t, []string{"U3", "U4", "U6"}, r.store.byID["ma_1"].LineIDs())

	cs = r.cycle(entry("ma_1", "Störung", "Text", "U1", "U2", "U3"))
	assert.Empty(t, cs.Modified)
}

func TestReconcileMergedSegments(t *testing.T) {
	r := newRunner(t)
	cs := r.cycle(
		entry("U1-1-A", "U1 Störung", "Signal fault", "U1"),
		entry("U1-1-B", "U1 Störung", "Delay", "U1", "U2"),
		entry("U1-2", "U1 Störung", "Elsewhere", "U1"),
	)
	assert.Equal(t, []types.EventKind{types.NewEvent, types.NewEvent}, eventKinds(cs))
	merged := r.store.byID["U1-1"]
	require.NotNil(t, merged)
	assert.Equal(t, "Signal fault / Delay", merged.LatestDescription().Text)
	assert.Equal(t, []string{"U1", "U2"}, merged.LineIDs())
	assert.NotNil(t, r.store.byID["U1-2"])

	// dropping a segment changes the merged text
	cs = r.cycle(
		entry("U1-1-A", "U1 Störung", "Signal fault", "U1"),
		entry("U1-2", "U1 Störung", "Elsewhere", "U1"),
	)
	assert.Equal(t, []types.EventKind{types.UpdatedEvent}, eventKinds(cs))
	assert.Equal(t, "Signal fault", cs.Events[0].UpdateText)
}

func TestReconcileCompleteness(t *testing.T) {
	r := newRunner(t)
	r.cycle(
		entry("a", "A", "a", "U1"),
		entry("b", "B", "b", "U2"),
		entry("c", "C", "c", "U3"),
	)

	cs := r.cycle(
		entry("b", "B", "b", "U2"),
		entry("d", "D", "d", "U4"),
	)
	assert.Equal(t, []types.EventKind{types.NewEvent, types.ResolvedEvent, types.ResolvedEvent}, eventKinds(cs))
	assert.Equal(t, "d", cs.Events[0].Disturbance.ID)
	assert.Equal(t, "a", cs.Events[1].Disturbance.ID)
	assert.Equal(t, "c", cs.Events[2].Disturbance.ID)

	open := []string{}
	for _, d := range r.store.open() {
		open = append(open, d.ID)
	}
	assert.ElementsMatch(t, []string{"b", "d"}, open)
	assert.Equal(t, 1, cs.Count(types.NewEvent))
	assert.Equal(t, 2, cs.Count(types.ResolvedEvent))
}

func TestReconcileLookupFailure(t *testing.T) {
	store := newMemoryDisturbances()
	store.findErr = errors.New("connection reset")

	candidates, err := wlscraper.BuildCandidates([]*wlscraper.Entry{entry("x", "X", "x", "U1")}, NewLineRegistry(newMemoryLines(), nil))
	require.NoError(t, err)

	_, err = Reconcile(candidates, nil, store, time.Now())
	var storageErr *StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, store.findErr, storageErr.Err)
}

func TestReconcileDuplicateCandidatesProcessedOnce(t *testing.T) {
	d := &types.Disturbance{ID: "x", Title: "X", Descriptions: []*types.Description{{DisturbanceID: "x", Text: "x"}}}
	cs, err := Reconcile([]*types.Disturbance{d, d.Snapshot()}, nil, newMemoryDisturbances(), time.Now())
	require.NoError(t, err)
	assert.Len(t, cs.Created, 1)
	assert.Len(t, cs.Events, 1)
}
