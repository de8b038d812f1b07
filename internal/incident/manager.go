package incident

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/riskpulse/riskpulse/internal/anomaly"
	"github.com/riskpulse/riskpulse/internal/forecast"
	"github.com/riskpulse/riskpulse/internal/idgen"
	"github.com/riskpulse/riskpulse/internal/metrics"
	"github.com/riskpulse/riskpulse/internal/signal"
	"github.com/riskpulse/riskpulse/internal/syncutil"
	"github.com/riskpulse/riskpulse/internal/traces"
)

// Title prefixes distinguish auto-created incidents for stale reconciliation.
const (
	anomalyTitlePrefix  = "[Anomaly] "
	forecastTitlePrefix = "[Forecast] "
)

// maxRelatedSignals caps the evidence set on one incident.
const maxRelatedSignals = 200

// Manager owns incident creation, deduplication, and transitions. It is
// the only writer of incident status.
type Manager struct {
	store   Store
	notes   NoteStore
	signals signal.Store

	// overlapRatio is the share of a new event's signal ids that must
	// already be tracked by an open incident to attach instead of create.
	overlapRatio float64

	anomalyGrace  time.Duration
	forecastGrace time.Duration

	// createMu serializes create-or-attach so concurrent callers (the
	// background cycle racing a manual anomaly run) cannot both miss the
	// dedup lookup and create duplicate incidents.
	createMu sync.Mutex

	locks  *syncutil.ShardedMutex
	now    func() time.Time
	logger *slog.Logger
}

// NewManager creates an incident manager.
func NewManager(store Store, notes NoteStore, signals signal.Store) *Manager {
	return &Manager{
		store:         store,
		notes:         notes,
		signals:       signals,
		overlapRatio:  0.5,
		anomalyGrace:  90 * time.Minute,
		forecastGrace: 3 * time.Hour,
		locks:         &syncutil.ShardedMutex{},
		now:           func() time.Time { return time.Now().UTC() },
		logger:        slog.Default(),
	}
}

// WithOverlapRatio overrides the dedup attach threshold.
func (m *Manager) WithOverlapRatio(ratio float64) *Manager {
	m.overlapRatio = ratio
	return m
}

// WithGracePeriods overrides the stale-reconciliation grace periods.
func (m *Manager) WithGracePeriods(anomalyGrace, forecastGrace time.Duration) *Manager {
	m.anomalyGrace = anomalyGrace
	m.forecastGrace = forecastGrace
	return m
}

// WithClock injects a deterministic clock for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// WithLogger sets the logger.
func (m *Manager) WithLogger(logger *slog.Logger) *Manager {
	m.logger = logger
	return m
}

// CreateFromAnomaly creates an incident for the event, or attaches its
// evidence to an open incident whose tracked signals materially overlap.
// Returns the incident and whether it was newly created.
func (m *Manager) CreateFromAnomaly(ctx context.Context, event *anomaly.Event) (*Incident, bool, error) {
	ctx, span := traces.StartSpan(ctx, "incident.CreateFromAnomaly", traces.AnomalyType(string(event.Type)))
	defer span.End()

	title := anomalyTitlePrefix + event.Title
	description := fmt.Sprintf("%s. Observed value %.3f exceeded threshold %.3f.",
		event.Description, event.MetricValue, event.Threshold)

	return m.createOrAttach(ctx, createSpec{
		title:       title,
		description: description,
		severity:    mapAnomalySeverity(event.Severity),
		startTime:   event.DetectedAt,
		relatedIDs:  event.AffectedSignalIDs,
		hypothesis:  anomalyHypothesis(event.Type),
		actions:     anomalyActions(event.AffectedSource),
	})
}

// CreateFromForecast creates or refreshes an incident for a concerning
// forecast. Related signals are the metric's recent samples.
func (m *Manager) CreateFromForecast(ctx context.Context, concern *forecast.Concern) (*Incident, bool, error) {
	ctx, span := traces.StartSpan(ctx, "incident.CreateFromForecast")
	defer span.End()

	relatedIDs, err := m.metricSignalIDs(ctx, concern.Metric)
	if err != nil {
		return nil, false, fmt.Errorf("find metric signals: %w", err)
	}

	return m.createOrAttach(ctx, createSpec{
		title:       concern.Title,
		description: concern.Description,
		severity:    Severity(concern.Severity),
		startTime:   concern.GeneratedAt,
		relatedIDs:  relatedIDs,
		hypothesis:  concern.Hypothesis,
		actions:     concern.Actions,
	})
}

type createSpec struct {
	title       string
	description string
	severity    Severity
	startTime   time.Time
	relatedIDs  []string
	hypothesis  string
	actions     string
}

func (m *Manager) createOrAttach(ctx context.Context, spec createSpec) (*Incident, bool, error) {
	m.createMu.Lock()
	defer m.createMu.Unlock()

	open, err := m.store.ListOpen(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("list open incidents: %w", err)
	}

	if existing := m.findMatch(open, spec.title, spec.relatedIDs); existing != nil {
		unlock := m.locks.Lock(existing.ID)
		defer unlock()

		// Reload under the lock: another attach may have run.
		existing, err = m.store.Get(ctx, existing.ID)
		if err != nil {
			return nil, false, err
		}
		existing.Severity = MaxSeverity(existing.Severity, spec.severity)
		existing.Description = spec.description
		existing.RootCauseHypothesis = spec.hypothesis
		existing.RecommendedActions = spec.actions
		existing.RelatedSignalIDs = mergeIDs(existing.RelatedSignalIDs, spec.relatedIDs)
		if err := m.store.Update(ctx, existing); err != nil {
			return nil, false, fmt.Errorf("attach to incident %s: %w", existing.ID, err)
		}
		m.logger.Info("evidence attached to incident",
			"incident_id", existing.ID,
			"title", existing.Title,
			"related_signals", len(existing.RelatedSignalIDs),
		)
		return existing, false, nil
	}

	inc := &Incident{
		ID:                  idgen.WithPrefix("inc_"),
		Title:               spec.title,
		Description:         spec.description,
		Severity:            spec.severity,
		Status:              StatusActive,
		StartTime:           spec.startTime,
		RelatedSignalIDs:    mergeIDs(nil, spec.relatedIDs),
		RootCauseHypothesis: spec.hypothesis,
		RecommendedActions:  spec.actions,
		CreatedAt:           m.now(),
	}
	if err := m.store.Create(ctx, inc); err != nil {
		return nil, false, fmt.Errorf("create incident: %w", err)
	}

	metrics.IncidentsCreatedTotal.WithLabelValues(string(inc.Severity)).Inc()
	m.logger.Info("incident created",
		"incident_id", inc.ID,
		"title", inc.Title,
		"severity", inc.Severity,
	)
	return inc, true, nil
}

// findMatch returns the open incident the new evidence belongs to: same
// title, or related ids overlapping at or above the configured ratio.
func (m *Manager) findMatch(open []*Incident, title string, newIDs []string) *Incident {
	for _, inc := range open {
		if inc.Title == title {
			return inc
		}
	}
	if len(newIDs) == 0 {
		return nil
	}
	for _, inc := range open {
		tracked := make(map[string]struct{}, len(inc.RelatedSignalIDs))
		for _, id := range inc.RelatedSignalIDs {
			tracked[id] = struct{}{}
		}
		var shared int
		for _, id := range newIDs {
			if _, ok := tracked[id]; ok {
				shared++
			}
		}
		if float64(shared)/float64(len(newIDs)) >= m.overlapRatio {
			return inc
		}
	}
	return nil
}

// Transition applies an action to an incident under a per-id lock.
func (m *Manager) Transition(ctx context.Context, id string, action Action) (*Incident, error) {
	ctx, span := traces.StartSpan(ctx, "incident.Transition", traces.IncidentID(id))
	defer span.End()

	unlock := m.locks.Lock(id)
	defer unlock()

	inc, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := inc.ApplyTransition(action, m.now()); err != nil {
		return nil, err
	}
	if err := m.store.Update(ctx, inc); err != nil {
		return nil, fmt.Errorf("persist transition: %w", err)
	}

	metrics.IncidentTransitionsTotal.WithLabelValues(string(action)).Inc()
	m.logger.Info("incident transitioned",
		"incident_id", inc.ID,
		"action", action,
		"status", inc.Status,
	)
	return inc, nil
}

// Get returns an incident by id.
func (m *Manager) Get(ctx context.Context, id string) (*Incident, error) {
	return m.store.Get(ctx, id)
}

// ListOpen returns active and investigating incidents, newest first.
func (m *Manager) ListOpen(ctx context.Context) ([]*Incident, error) {
	return m.store.ListOpen(ctx)
}

// List returns incidents matching the query.
func (m *Manager) List(ctx context.Context, q ListQuery) ([]*Incident, error) {
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 50
	}
	return m.store.List(ctx, q)
}

// AddNote appends a note to an incident. Notes are observational and legal
// in every state.
func (m *Manager) AddNote(ctx context.Context, incidentID, content, author string) (*Note, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("note content is required")
	}
	if _, err := m.store.Get(ctx, incidentID); err != nil {
		return nil, err
	}

	note := &Note{
		ID:         idgen.WithPrefix("note_"),
		IncidentID: incidentID,
		Content:    content,
		Author:     author,
		CreatedAt:  m.now(),
	}
	if err := m.notes.CreateNote(ctx, note); err != nil {
		return nil, fmt.Errorf("store note: %w", err)
	}
	return note, nil
}

// ListNotes returns an incident's notes oldest first.
func (m *Manager) ListNotes(ctx context.Context, incidentID string) ([]*Note, error) {
	if _, err := m.store.Get(ctx, incidentID); err != nil {
		return nil, err
	}
	return m.notes.ListNotes(ctx, incidentID)
}

// TimelineEntry is one item in the merged incident history.
type TimelineEntry struct {
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"` // created | transition | signal | note
	Detail string    `json:"detail"`
}

// Timeline merges incident creation, transitions, related signal arrivals,
// and notes into one time-ordered sequence. Pure read, no mutation.
func (m *Manager) Timeline(ctx context.Context, incidentID string) ([]TimelineEntry, error) {
	inc, err := m.store.Get(ctx, incidentID)
	if err != nil {
		return nil, err
	}

	entries := []TimelineEntry{{
		At:     inc.CreatedAt,
		Kind:   "created",
		Detail: fmt.Sprintf("Incident created with severity %s: %s", inc.Severity, inc.Title),
	}}

	for _, rec := range inc.History {
		entries = append(entries, TimelineEntry{
			At:     rec.At,
			Kind:   "transition",
			Detail: fmt.Sprintf("%s: %s → %s", rec.Action, rec.From, rec.To),
		})
	}

	for _, sigID := range inc.RelatedSignalIDs {
		sig, err := m.signals.Get(ctx, sigID)
		if err != nil {
			continue // evidence may have been retired by retention
		}
		title := sig.Title
		if title == "" {
			title = string(sig.Source) + " signal"
		}
		entries = append(entries, TimelineEntry{
			At:     sig.Timestamp,
			Kind:   "signal",
			Detail: fmt.Sprintf("Related signal %s: %s", sig.ID, title),
		})
	}

	notes, err := m.notes.ListNotes(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	for _, note := range notes {
		entries = append(entries, TimelineEntry{
			At:     note.CreatedAt,
			Kind:   "note",
			Detail: fmt.Sprintf("%s: %s", note.Author, note.Content),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].At.Before(entries[j].At) })
	return entries, nil
}

// ReconcileStale auto-resolves open auto-created incidents whose source
// anomaly or forecast titles have stopped firing past the grace period.
func (m *Manager) ReconcileStale(ctx context.Context, activeAnomalyTitles, activeForecastTitles map[string]bool) ([]*Incident, error) {
	open, err := m.store.ListOpen(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	var resolved []*Incident
	for _, inc := range open {
		var stale bool
		switch {
		case strings.HasPrefix(inc.Title, anomalyTitlePrefix):
			stale = !activeAnomalyTitles[inc.Title] && now.Sub(inc.StartTime) >= m.anomalyGrace
		case strings.HasPrefix(inc.Title, forecastTitlePrefix):
			stale = !activeForecastTitles[inc.Title] && now.Sub(inc.StartTime) >= m.forecastGrace
		}
		if !stale {
			continue
		}

		resolvedInc, err := m.Transition(ctx, inc.ID, ActionResolve)
		if err != nil {
			m.logger.Warn("stale reconcile failed", "incident_id", inc.ID, "error", err)
			continue
		}
		if _, err := m.AddNote(ctx, inc.ID, "Auto-resolved after normalization window.", "system"); err != nil {
			m.logger.Warn("auto-resolve note failed", "incident_id", inc.ID, "error", err)
		}
		resolved = append(resolved, resolvedInc)
	}
	return resolved, nil
}

// metricSignalIDs collects recent signal ids carrying the named metric.
func (m *Manager) metricSignalIDs(ctx context.Context, metric string) ([]string, error) {
	now := m.now()
	signals, err := m.signals.ListWindow(ctx, now.Add(-48*time.Hour), now, 2500)
	if err != nil {
		return nil, err
	}
	var ids []string
	for i := len(signals) - 1; i >= 0 && len(ids) < 20; i-- {
		if signals[i].Metric != nil && signals[i].Metric.Name == metric {
			ids = append(ids, signals[i].ID)
		}
	}
	return ids, nil
}

func mergeIDs(existing, incoming []string) []string {
	set := make(map[string]struct{}, len(existing)+len(incoming))
	for _, id := range existing {
		set[id] = struct{}{}
	}
	for _, id := range incoming {
		set[id] = struct{}{}
	}
	merged := make([]string, 0, len(set))
	for id := range set {
		merged = append(merged, id)
	}
	sort.Strings(merged)
	if len(merged) > maxRelatedSignals {
		merged = merged[:maxRelatedSignals]
	}
	return merged
}

func mapAnomalySeverity(s anomaly.Severity) Severity {
	switch s {
	case anomaly.SeverityCritical:
		return SeverityCritical
	case anomaly.SeverityHigh:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

func anomalyHypothesis(t anomaly.Type) string {
	switch t {
	case anomaly.TypeVolumeSpike:
		return "Cross-channel event volume spike suggests emerging operational incident."
	case anomaly.TypeRiskSpike:
		return "Composite risk acceleration indicates correlated high-impact signals."
	default:
		return "Sentiment drift indicates growing user/customer impact perception."
	}
}

func anomalyActions(source string) string {
	if source == "" {
		source = "cross-source"
	}
	return strings.Join([]string{
		"1. Correlate top affected signals with recent deployments/incidents.",
		"2. Assign an incident owner and triage impacted components.",
		"3. Increase monitoring frequency until anomaly metrics normalize.",
		fmt.Sprintf("4. Review source %s for root-cause evidence.", source),
	}, "\n")
}
