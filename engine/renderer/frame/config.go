package frame

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/anima-frame/engine/core"
)

type Config struct {
	/** @brief Number of frames that may be in flight on the GPU at once (2 or 3 usually). */
	FramesInFlight uint32
	/** @brief Delay between two polls of a window reporting a zero extent. */
	PollInterval time.Duration
	/** @brief Number of degenerate polls after which a warning is logged once. 0 warns on the first. */
	StallThreshold int
	/** @brief Maximum time spent waiting for a usable extent. 0 waits forever. */
	RecreateTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		FramesInFlight:  2,
		PollInterval:    10 * time.Millisecond,
		StallThreshold:  100,
		RecreateTimeout: 0,
	}
}

func (c Config) Validate() error {
	if c.FramesInFlight == 0 {
		return fmt.Errorf("%w: frames in flight must be > 0", core.ErrInvalidConfig)
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("%w: poll interval must not be negative", core.ErrInvalidConfig)
	}
	if c.StallThreshold < 0 {
		return fmt.Errorf("%w: stall threshold must not be negative", core.ErrInvalidConfig)
	}
	if c.RecreateTimeout < 0 {
		return fmt.Errorf("%w: recreate timeout must not be negative", core.ErrInvalidConfig)
	}
	return nil
}
