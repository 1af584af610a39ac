package store

import (
	"testing"

	"github.com/angiediaz0209/artistline/internal/models"
)

func TestValidTransition(t *testing.T) {
	tests := []struct {
		action string
		from   string
		want   bool
	}{
		{"call_next", models.StatusWaiting, true},
		{"call_next", models.StatusCalled, false},
		{"confirm", models.StatusCalled, true},
		{"confirm", models.StatusWaiting, false},
		{"decline", models.StatusCalled, true},
		{"decline", models.StatusComing, false},
		{"remove", models.StatusWaiting, true},
		{"remove", models.StatusCalled, true},
		{"remove", models.StatusComing, true},
		{"remove", models.StatusRemoved, false},
		{"unknown", models.StatusWaiting, false},
	}
	for _, tt := range tests {
		if got := ValidTransition(tt.action, tt.from); got != tt.want {
			t.Errorf("ValidTransition(%q, %q) = %v, want %v", tt.action, tt.from, got, tt.want)
		}
	}
}

func TestTransitionSourcesAgreeWithValidTransition(t *testing.T) {
	actions := []string{ActionCallNext, ActionConfirm, ActionDecline, ActionRemove}
	statuses := []string{models.StatusWaiting, models.StatusCalled, models.StatusComing, models.StatusRemoved}
	for _, action := range actions {
		sources := TransitionSources(action)
		if len(sources) == 0 {
			t.Errorf("TransitionSources(%q) is empty", action)
		}
		for _, status := range statuses {
			inSources := false
			for _, source := range sources {
				if source == status {
					inSources = true
				}
			}
			if inSources != ValidTransition(action, status) {
				t.Errorf("%q from %q: sources and ValidTransition disagree", action, status)
			}
		}
	}
	if got := TransitionSources("unknown"); got != nil {
		t.Errorf("TransitionSources(unknown) = %v, want nil", got)
	}
}
