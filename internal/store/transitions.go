package store

import "github.com/angiediaz0209/artistline/internal/models"

const (
	ActionCallNext = "call_next"
	ActionConfirm  = "confirm"
	ActionDecline  = "decline"
	ActionRemove   = "remove"
)

// transitionMap is the single source of truth for which statuses each
// customer action may move from. Both store backends consult it.
var transitionMap = map[string][]string{
	ActionCallNext: {models.StatusWaiting},
	ActionConfirm:  {models.StatusCalled},
	ActionDecline:  {models.StatusCalled},
	ActionRemove:   {models.StatusWaiting, models.StatusCalled, models.StatusComing},
}

func ValidTransition(action, fromStatus string) bool {
	for _, status := range transitionMap[action] {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// TransitionSources lists the statuses an action may move a customer from,
// for use in status-guarded updates.
func TransitionSources(action string) []string {
	return transitionMap[action]
}
