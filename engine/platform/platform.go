package platform

import (
	"runtime"
	"sync/atomic"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/anima-frame/engine/core"
	"github.com/spaghettifunk/anima-frame/engine/renderer/metadata"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Platform is the glfw window the frames are presented to. It implements
// metadata.Window.
type Platform struct {
	Window *glfw.Window

	resized atomic.Bool
}

func New() (*Platform, error) {
	return &Platform{
		Window: nil,
	}, nil
}

func (p *Platform) Startup(applicationName string, x uint32, y uint32, width uint32, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		return err
	}
	p.Window = window

	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// PumpEvents processes pending window events. It returns false once the
// user asked to close the window.
func (p *Platform) PumpEvents() bool {
	glfw.PollEvents()
	return !p.Window.ShouldClose()
}

// CurrentExtent returns the framebuffer size; zero while minimized.
func (p *Platform) CurrentExtent() metadata.Extent {
	width, height := p.Window.GetFramebufferSize()
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return metadata.Extent{Width: uint32(width), Height: uint32(height)}
}

func (p *Platform) WasResized() bool {
	return p.resized.Load()
}

func (p *Platform) ResetResizedFlag() {
	p.resized.Store(false)
}

// RequiredInstanceExtensions lists the Vulkan instance extensions glfw needs
// to create a surface.
func (p *Platform) RequiredInstanceExtensions() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

// CreateSurface creates a Vulkan surface for the window. instance is the
// raw VkInstance handle.
func (p *Platform) CreateSurface(instance interface{}) (uintptr, error) {
	return p.Window.CreateWindowSurface(instance, nil)
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	core.LogDebug("framebuffer resized to %dx%d", width, height)
	p.resized.Store(true)
}
