package core

import (
	"errors"
)

// Fatal conditions. Any of these ends the frame loop; the device state is
// assumed to be corrupted or lost and no retry is attempted.
var (
	ErrSurfaceFormatChanged = errors.New("swapchain format changed across recreation")
	ErrSubmitFailed         = errors.New("queue submission failed")
	ErrPresentFailed        = errors.New("presentation failed")
	ErrAcquireFailed        = errors.New("swapchain image acquisition failed")
	ErrDeviceLost           = errors.New("device lost")
	ErrRecreateTimeout      = errors.New("timed out waiting for a presentable surface")
)

// ErrWindowClosed is returned when the window is closed while the frame
// pipeline waits on it. It ends the loop without being a failure.
var ErrWindowClosed = errors.New("window closed")

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrUnknown       = errors.New("unknown")
)
