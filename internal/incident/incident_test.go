package incident

import (
	"testing"
	"time"
)

var transitionTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newIncident(status Status) *Incident {
	return &Incident{
		ID:        "inc_test",
		Title:     "Test incident",
		Severity:  SeverityHigh,
		Status:    status,
		StartTime: transitionTime.Add(-time.Hour),
		CreatedAt: transitionTime.Add(-time.Hour),
	}
}

func TestApplyTransition_FullTable(t *testing.T) {
	tests := []struct {
		from    Status
		action  Action
		want    Status
		wantErr bool
	}{
		{StatusActive, ActionAcknowledge, StatusInvestigating, false},
		{StatusActive, ActionResolve, StatusResolved, false},
		{StatusActive, ActionDismiss, StatusDismissed, false},
		{StatusActive, ActionReopen, "", true},
		{StatusInvestigating, ActionResolve, StatusResolved, false},
		{StatusInvestigating, ActionDismiss, StatusDismissed, false},
		{StatusInvestigating, ActionAcknowledge, "", true},
		{StatusInvestigating, ActionReopen, "", true},
		{StatusResolved, ActionReopen, StatusActive, false},
		{StatusResolved, ActionResolve, "", true},
		{StatusResolved, ActionAcknowledge, "", true},
		{StatusResolved, ActionDismiss, "", true},
		{StatusDismissed, ActionReopen, StatusActive, false},
		{StatusDismissed, ActionResolve, "", true},
		{StatusDismissed, ActionAcknowledge, "", true},
		{StatusDismissed, ActionDismiss, "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_"+string(tt.action), func(t *testing.T) {
			inc := newIncident(tt.from)
			err := inc.ApplyTransition(tt.action, transitionTime)

			if tt.wantErr {
				if err == nil {
					t.Fatalf("%s on %s: expected InvalidTransition", tt.action, tt.from)
				}
				if inc.Status != tt.from {
					t.Errorf("failed transition mutated status to %s", inc.Status)
				}
				if len(inc.History) != 0 {
					t.Error("failed transition appended history")
				}
				return
			}

			if err != nil {
				t.Fatalf("%s on %s: %v", tt.action, tt.from, err)
			}
			if inc.Status != tt.want {
				t.Errorf("status = %s, want %s", inc.Status, tt.want)
			}
			if len(inc.History) != 1 || inc.History[0].From != tt.from || inc.History[0].To != tt.want {
				t.Errorf("history = %+v, want one %s→%s record", inc.History, tt.from, tt.want)
			}
		})
	}
}

func TestApplyTransition_EndTimeLifecycle(t *testing.T) {
	inc := newIncident(StatusActive)

	if err := inc.ApplyTransition(ActionAcknowledge, transitionTime); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if inc.EndTime != nil {
		t.Error("acknowledge must not set end_time")
	}

	if err := inc.ApplyTransition(ActionResolve, transitionTime.Add(time.Minute)); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if inc.EndTime == nil || !inc.EndTime.Equal(transitionTime.Add(time.Minute)) {
		t.Errorf("resolve must set end_time to the transition time, got %v", inc.EndTime)
	}

	if err := inc.ApplyTransition(ActionReopen, transitionTime.Add(2*time.Minute)); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if inc.Status != StatusActive {
		t.Errorf("reopen → %s, want active", inc.Status)
	}
	if inc.EndTime != nil {
		t.Error("reopen must clear end_time")
	}

	// active → resolved is legal again after reopen.
	if err := inc.ApplyTransition(ActionResolve, transitionTime.Add(3*time.Minute)); err != nil {
		t.Fatalf("resolve after reopen: %v", err)
	}
}

func TestApplyTransition_InvalidLeavesEndTimeUnchanged(t *testing.T) {
	inc := newIncident(StatusResolved)
	end := transitionTime.Add(-30 * time.Minute)
	inc.EndTime = &end

	if err := inc.ApplyTransition(ActionResolve, transitionTime); err == nil {
		t.Fatal("expected InvalidTransition")
	}
	if inc.EndTime == nil || !inc.EndTime.Equal(end) {
		t.Errorf("end_time changed on failed transition: %v", inc.EndTime)
	}
}

func TestMaxSeverity(t *testing.T) {
	if got := MaxSeverity(SeverityMedium, SeverityCritical); got != SeverityCritical {
		t.Errorf("MaxSeverity = %s, want critical", got)
	}
	if got := MaxSeverity(SeverityHigh, SeverityLow); got != SeverityHigh {
		t.Errorf("MaxSeverity = %s, want high", got)
	}
}
