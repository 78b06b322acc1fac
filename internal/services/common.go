package services

import (
	"time"

	"meetmap-backend/internal/models"

	"github.com/google/uuid"
)

// newID returns a fresh entity id.
func newID() models.ID {
	return models.ID(uuid.New().String())
}

// clock is embedded by services that need an injectable time source.
type clock struct {
	now func() time.Time
}

func (c *clock) Now() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

// SetClock replaces the time source. Used by tests.
func (c *clock) SetClock(now func() time.Time) {
	c.now = now
}
