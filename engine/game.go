package engine

import (
	"github.com/spaghettifunk/anima-frame/engine/renderer/metadata"
)

// Game is the application driven by the engine. Every hook receives the
// engine context; only FnRender is required.
type Game struct {
	Name         string
	State        interface{}
	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

type Initialize func(ctx *Context) error
type Update func(ctx *Context, deltaTime float64) error

// Render records the frame into cb, the frame's primary command buffer.
// Work recorded on other goroutines goes through ctx.Commands.
type Render func(ctx *Context, cb metadata.CommandBuffer, deltaTime float64) error
type OnResize func(ctx *Context, extent metadata.Extent) error
type Shutdown func(ctx *Context) error
