package auction

import (
	"fmt"

	"auction-lifecycle-service/internal/domain/shared"
)

var transitions = map[Status][]Status{
	StatusScheduled: {StatusActive, StatusDeleted},
	StatusActive:    {StatusClosed, StatusDeleted},
}

// CheckTransition is the single guard every lifecycle change goes through.
// It returns nil when from -> to is allowed, ErrPrematureEvent when the
// auction has not reached the state the transition starts from yet
// (a close arriving before the start), and ErrStaleEvent otherwise.
func CheckTransition(from, to Status) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	if from == StatusScheduled && to == StatusClosed {
		return fmt.Errorf("%w: cannot close a scheduled auction", shared.ErrPrematureEvent)
	}
	return fmt.Errorf("%w: %s -> %s", shared.ErrStaleEvent, from, to)
}
