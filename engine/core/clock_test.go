package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockElapsed(t *testing.T) {
	base := time.Unix(1000, 0)
	current := base
	c := &Clock{now: func() time.Time { return current }}

	c.Update()
	assert.Zero(t, c.Elapsed(), "a stopped clock does not advance")

	c.Start()
	current = base.Add(1500 * time.Millisecond)
	c.Update()
	assert.InDelta(t, 1.5, c.Elapsed(), 1e-9)

	c.Stop()
	current = base.Add(10 * time.Second)
	c.Update()
	assert.InDelta(t, 1.5, c.Elapsed(), 1e-9)
	assert.False(t, c.IsRunning())
}
