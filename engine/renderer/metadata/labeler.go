package metadata

import "github.com/spaghettifunk/anima-frame/engine/core"

// Labeler attaches human-readable names to GPU work for debugging tools.
// It is purely observational.
type Labeler interface {
	BeginLabel(cb CommandBuffer, name string)
	EndLabel(cb CommandBuffer)
	SetObjectName(object interface{}, name string)
}

// NopLabeler discards every label.
type NopLabeler struct{}

func (NopLabeler) BeginLabel(CommandBuffer, string)  {}
func (NopLabeler) EndLabel(CommandBuffer)            {}
func (NopLabeler) SetObjectName(interface{}, string) {}

// LogLabeler writes labels to the debug log instead of a graphics debugger.
type LogLabeler struct {
	depth int
}

func (l *LogLabeler) BeginLabel(cb CommandBuffer, name string) {
	l.depth++
	core.LogDebug("%*s> %s", l.depth*2, "", name)
}

func (l *LogLabeler) EndLabel(cb CommandBuffer) {
	if l.depth > 0 {
		l.depth--
	}
}

func (l *LogLabeler) SetObjectName(object interface{}, name string) {
	core.LogDebug("object %v named %q", object, name)
}
