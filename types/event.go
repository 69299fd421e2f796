package types

// EventKind is the kind of lifecycle transition detected for a disturbance
type EventKind string

const (
	// NewEvent is issued when a disturbance is seen for the first time
	NewEvent EventKind = "NEW"
	// ReopenedEvent is issued when a previously resolved disturbance reappears
	ReopenedEvent EventKind = "REOPENED"
	// UpdatedEvent is issued when the description of an open disturbance changes
	UpdatedEvent EventKind = "UPDATED"
	// ResolvedEvent is issued when an open disturbance disappears from the feed
	ResolvedEvent EventKind = "RESOLVED"
)

// DisturbanceEvent is a lifecycle transition detected during one reconciliation
// cycle. Events are not persisted.
type DisturbanceEvent struct {
	Kind        EventKind
	Disturbance *Disturbance
	// UpdateText is only set for UpdatedEvent
	UpdateText string
}
