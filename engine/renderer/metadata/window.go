package metadata

// Window is the windowing collaborator: it reports the presentation
// target's size and resize notifications.
type Window interface {
	// CurrentExtent returns the framebuffer size in pixels. A minimized
	// window reports a zero extent.
	CurrentExtent() Extent
	WasResized() bool
	ResetResizedFlag()
	// PumpEvents processes pending window events and returns false once
	// the window has been asked to close.
	PumpEvents() bool
}
