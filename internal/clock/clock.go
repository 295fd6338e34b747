package clock

import (
	"time"

	"go.uber.org/fx"
)

var Module = fx.Module("clock", fx.Provide(New))

// Clock abstracts wall time so date-driven rules can be tested.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// Today truncates t to midnight UTC.
func Today(c Clock) time.Time {
	now := c.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
