// Package incident implements the incident lifecycle state machine.
//
// Incidents are created from anomaly events or concerning forecasts and
// move through a fixed transition table: active → investigating →
// {resolved, dismissed}, with reopen returning a closed incident to
// active. The manager is the only component that transitions status.
package incident

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when an incident id does not exist.
	ErrNotFound = errors.New("incident not found")
	// ErrInvalidTransition indicates an action that is illegal in the
	// incident's current state. State is left unchanged.
	ErrInvalidTransition = errors.New("invalid incident transition")
)

// Status is the lifecycle state of an incident.
type Status string

const (
	StatusActive        Status = "active"
	StatusInvestigating Status = "investigating"
	StatusResolved      Status = "resolved"
	StatusDismissed     Status = "dismissed"
)

// Severity grades incident impact.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// MaxSeverity returns the higher-ranked of two severities.
func MaxSeverity(a, b Severity) Severity {
	if severityRank[a] >= severityRank[b] {
		return a
	}
	return b
}

// Action is a requested state change.
type Action string

const (
	ActionAcknowledge Action = "acknowledge"
	ActionResolve     Action = "resolve"
	ActionDismiss     Action = "dismiss"
	ActionReopen      Action = "reopen"
)

// transitions is the full legal state table. Anything absent is an
// InvalidTransition.
var transitions = map[Status]map[Action]Status{
	StatusActive: {
		ActionAcknowledge: StatusInvestigating,
		ActionResolve:     StatusResolved,
		ActionDismiss:     StatusDismissed,
	},
	StatusInvestigating: {
		ActionResolve: StatusResolved,
		ActionDismiss: StatusDismissed,
	},
	StatusResolved: {
		ActionReopen: StatusActive,
	},
	StatusDismissed: {
		ActionReopen: StatusActive,
	},
}

// TransitionRecord is one applied state change, kept on the incident for
// timeline rendering.
type TransitionRecord struct {
	Action Action    `json:"action"`
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	At     time.Time `json:"at"`
}

// Incident is a tracked unit of operational response.
type Incident struct {
	ID                  string             `json:"id"`
	Title               string             `json:"title"`
	Description         string             `json:"description"`
	Severity            Severity           `json:"severity"`
	Status              Status             `json:"status"`
	StartTime           time.Time          `json:"startTime"`
	EndTime             *time.Time         `json:"endTime,omitempty"`
	RelatedSignalIDs    []string           `json:"relatedSignalIds"`
	RootCauseHypothesis string             `json:"rootCauseHypothesis,omitempty"`
	RecommendedActions  string             `json:"recommendedActions,omitempty"`
	History             []TransitionRecord `json:"history,omitempty"`
	CreatedAt           time.Time          `json:"createdAt"`
}

// Open reports whether the incident is still being worked.
func (i *Incident) Open() bool {
	return i.Status == StatusActive || i.Status == StatusInvestigating
}

// ApplyTransition performs the action against the state table, mutating
// status, end_time, and history. Illegal actions return
// ErrInvalidTransition and leave the incident untouched.
func (i *Incident) ApplyTransition(action Action, at time.Time) error {
	next, ok := transitions[i.Status][action]
	if !ok {
		return fmt.Errorf("%w: %s not allowed in state %s", ErrInvalidTransition, action, i.Status)
	}

	record := TransitionRecord{Action: action, From: i.Status, To: next, At: at}
	i.Status = next
	switch next {
	case StatusResolved, StatusDismissed:
		i.EndTime = &record.At
	case StatusActive:
		i.EndTime = nil
	}
	i.History = append(i.History, record)
	return nil
}

// ListQuery filters incident listings.
type ListQuery struct {
	Status   string
	Severity string
	Limit    int
}

// Store persists incidents.
type Store interface {
	Create(ctx context.Context, inc *Incident) error
	Get(ctx context.Context, id string) (*Incident, error)
	// Update overwrites the stored incident.
	Update(ctx context.Context, inc *Incident) error
	// List returns incidents newest first, filtered by q.
	List(ctx context.Context, q ListQuery) ([]*Incident, error)
	// ListOpen returns active and investigating incidents, newest first.
	ListOpen(ctx context.Context) ([]*Incident, error)
}

// Note is an append-only observation attached to an incident.
type Note struct {
	ID         string    `json:"id"`
	IncidentID string    `json:"incidentId"`
	Content    string    `json:"content"`
	Author     string    `json:"author"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NoteStore persists notes.
type NoteStore interface {
	CreateNote(ctx context.Context, note *Note) error
	// ListNotes returns an incident's notes oldest first.
	ListNotes(ctx context.Context, incidentID string) ([]*Note, error)
}
