package compute

import (
	"errors"
	"time"

	"github.com/gbl08ma/sqalx"
	"github.com/underlx/disturbancesvie/types"
)

// DisturbanceLookup finds a disturbance by ID, be it open or closed. A
// disturbance that doesn't exist is reported as nil with no error.
type DisturbanceLookup interface {
	FindDisturbance(id string) (*types.Disturbance, error)
}

// NodeDisturbanceLookup is a DisturbanceLookup backed by a sqalx node
type NodeDisturbanceLookup struct {
	Node sqalx.Node
}

// FindDisturbance implements DisturbanceLookup
func (l NodeDisturbanceLookup) FindDisturbance(id string) (*types.Disturbance, error) {
	d, err := types.GetDisturbance(l.Node, id)
	if errors.Is(err, types.ErrNotFound) {
		return nil, nil
	}
	return d, err
}

// Changeset is the outcome of reconciling one feed snapshot against the
// stored disturbances
type Changeset struct {
	Created  []*types.Disturbance
	Modified []*types.Disturbance
	Events   []*types.DisturbanceEvent
}

type pendingEvent struct {
	kind        types.EventKind
	disturbance *types.Disturbance
	text        string
}

// Reconcile diffs the merged candidates of a cycle against the open
// disturbances. Stored records in open, or returned by lookup, are mutated in
// place; the events carry snapshots taken once all mutations are done.
func Reconcile(candidates, open []*types.Disturbance, lookup DisturbanceLookup, now time.Time) (*Changeset, error) {
	cs := &Changeset{}
	events := []pendingEvent{}

	openByID := make(map[string]*types.Disturbance, len(open))
	for _, d := range open {
		openByID[d.ID] = d
	}

	modified := make(map[string]bool)
	markModified := func(d *types.Disturbance) {
		if !modified[d.ID] {
			modified[d.ID] = true
			cs.Modified = append(cs.Modified, d)
		}
	}

	seen := make(map[string]bool)
	for _, candidate := range candidates {
		if seen[candidate.ID] {
			continue
		}
		seen[candidate.ID] = true

		current, isOpen := openByID[candidate.ID]
		if !isOpen {
			found, err := lookup.FindDisturbance(candidate.ID)
			if err != nil {
				return nil, &StorageError{Op: "find disturbance " + candidate.ID, Err: err}
			}
			if found == nil {
				d := candidate.Snapshot()
				d.Ended = false
				d.EndTime = time.Time{}
				for _, description := range d.Descriptions {
					description.DisturbanceID = d.ID
				}
				cs.Created = append(cs.Created, d)
				events = append(events, pendingEvent{kind: types.NewEvent, disturbance: d})
				continue
			}
			current = found
			if current.Ended {
				current.Ended = false
				current.EndTime = time.Time{}
				markModified(current)
				events = append(events, pendingEvent{kind: types.ReopenedEvent, disturbance: current})
			}
		}

		if current.Title != candidate.Title {
			current.Title = candidate.Title
			current.Type = types.ClassifyDisturbance(candidate.Title)
			markModified(current)
		}

		// lines only ever grow, a narrower candidate line set is ignored
		if len(candidate.Lines) > len(current.Lines) {
			current.Lines = make([]*types.Line, len(candidate.Lines))
			for i, line := range candidate.Lines {
				l := *line
				current.Lines[i] = &l
			}
			markModified(current)
		}

		candidateDescription := candidate.LatestDescription()
		if candidateDescription == nil {
			continue
		}
		storedText := ""
		if stored := current.LatestDescription(); stored != nil {
			storedText = stored.Text
		}
		if storedText != candidateDescription.Text {
			current.Descriptions = append(current.Descriptions, &types.Description{
				DisturbanceID: current.ID,
				Text:          candidateDescription.Text,
				CreatedAt:     now,
			})
			markModified(current)
			events = append(events, pendingEvent{
				kind:        types.UpdatedEvent,
				disturbance: current,
				text:        candidateDescription.Text,
			})
		}
	}

	for _, d := range open {
		if seen[d.ID] {
			continue
		}
		d.Ended = true
		d.EndTime = now
		markModified(d)
		events = append(events, pendingEvent{kind: types.ResolvedEvent, disturbance: d})
	}

	cs.Events = make([]*types.DisturbanceEvent, len(events))
	for i, e := range events {
		cs.Events[i] = &types.DisturbanceEvent{
			Kind:        e.kind,
			Disturbance: e.disturbance.Snapshot(),
			UpdateText:  e.text,
		}
	}
	return cs, nil
}

// Persist stores all created and modified disturbances in a single transaction
// on node. Nothing is stored if any of them fails.
func (cs *Changeset) Persist(node sqalx.Node) error {
	tx, err := node.Beginx()
	if err != nil {
		return &StorageError{Op: "begin", Err: err}
	}
	defer tx.Rollback()

	for _, d := range cs.Created {
		if err := d.Update(tx); err != nil {
			return &StorageError{Op: "create disturbance " + d.ID, Err: err}
		}
	}
	for _, d := range cs.Modified {
		if err := d.Update(tx); err != nil {
			return &StorageError{Op: "update disturbance " + d.ID, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "commit", Err: err}
	}
	return nil
}

// Count returns how many events of the given kind the changeset holds
func (cs *Changeset) Count(kind types.EventKind) int {
	n := 0
	for _, e := range cs.Events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
