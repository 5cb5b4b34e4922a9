// Package command collects command buffers recorded on worker goroutines
// into the batch submitted with the next frame.
package command

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-frame/engine/core"
	"github.com/spaghettifunk/anima-frame/engine/renderer/metadata"
)

// Dependencies are the resources a command buffer needs alive until the GPU
// has finished executing it.
type Dependencies struct {
	StagingBuffers []metadata.Buffer
	Images         []metadata.Image
	Barriers       []metadata.ImageBarrier
}

func (d Dependencies) isEmpty() bool {
	return len(d.StagingBuffers) == 0 && len(d.Images) == 0 && len(d.Barriers) == 0
}

// Entry is one contribution: a closed command buffer and exactly the
// resources attributed to it.
type Entry struct {
	ID            uuid.UUID
	CommandBuffer metadata.CommandBuffer
	Dependencies
}

type span struct {
	start int
	end   int
}

// collections stores every entry in flat slices so a batch can be handed to
// the queue without regrouping. spans[i] indexes entry i's resources.
type collections struct {
	ids      []uuid.UUID
	commands []metadata.CommandBuffer

	staging      []metadata.Buffer
	stagingSpans []span
	images       []metadata.Image
	imageSpans   []span
	barriers     []metadata.ImageBarrier
	barrierSpans []span
}

func (c *collections) len() int {
	return len(c.commands)
}

func (c *collections) entry(i int) Entry {
	s, im, b := c.stagingSpans[i], c.imageSpans[i], c.barrierSpans[i]
	return Entry{
		ID:            c.ids[i],
		CommandBuffer: c.commands[i],
		Dependencies: Dependencies{
			StagingBuffers: c.staging[s.start:s.end:s.end],
			Images:         c.images[im.start:im.end:im.end],
			Barriers:       c.barriers[b.start:b.end:b.end],
		},
	}
}

func (c *collections) clone() collections {
	return collections{
		ids:          append([]uuid.UUID(nil), c.ids...),
		commands:     append([]metadata.CommandBuffer(nil), c.commands...),
		staging:      append([]metadata.Buffer(nil), c.staging...),
		stagingSpans: append([]span(nil), c.stagingSpans...),
		images:       append([]metadata.Image(nil), c.images...),
		imageSpans:   append([]span(nil), c.imageSpans...),
		barriers:     append([]metadata.ImageBarrier(nil), c.barriers...),
		barrierSpans: append([]span(nil), c.barrierSpans...),
	}
}

func (c *collections) truncate(n int) {
	if n >= c.len() {
		return
	}
	c.staging = c.staging[:c.stagingSpans[n].start]
	c.images = c.images[:c.imageSpans[n].start]
	c.barriers = c.barriers[:c.barrierSpans[n].start]
	c.ids = c.ids[:n]
	c.commands = c.commands[:n]
	c.stagingSpans = c.stagingSpans[:n]
	c.imageSpans = c.imageSpans[:n]
	c.barrierSpans = c.barrierSpans[:n]
}

// dropPrefix removes the first n entries and rebases the remaining spans.
func (c *collections) dropPrefix(n int) {
	if n == 0 {
		return
	}
	cutStaging := c.stagingSpans[n-1].end
	cutImages := c.imageSpans[n-1].end
	cutBarriers := c.barrierSpans[n-1].end

	c.ids = append(c.ids[:0], c.ids[n:]...)
	c.commands = append(c.commands[:0], c.commands[n:]...)
	c.staging = append(c.staging[:0], c.staging[cutStaging:]...)
	c.images = append(c.images[:0], c.images[cutImages:]...)
	c.barriers = append(c.barriers[:0], c.barriers[cutBarriers:]...)
	c.stagingSpans = rebase(c.stagingSpans, n, cutStaging)
	c.imageSpans = rebase(c.imageSpans, n, cutImages)
	c.barrierSpans = rebase(c.barrierSpans, n, cutBarriers)
}

func rebase(spans []span, n, offset int) []span {
	out := append(spans[:0], spans[n:]...)
	for i := range out {
		out[i].start -= offset
		out[i].end -= offset
	}
	return out
}

func (c *collections) reset() {
	*c = collections{
		ids:          c.ids[:0],
		commands:     c.commands[:0],
		staging:      c.staging[:0],
		stagingSpans: c.stagingSpans[:0],
		images:       c.images[:0],
		imageSpans:   c.imageSpans[:0],
		barriers:     c.barriers[:0],
		barrierSpans: c.barrierSpans[:0],
	}
}

type Options struct {
	/** @brief Asserts that resource collections are empty whenever no commands are pending. */
	Checked bool
}

// Aggregator is safe for concurrent use. Every public call takes the lock
// for its own duration only.
type Aggregator struct {
	options Options

	mutex   sync.Mutex
	pending collections
}

func NewAggregator(options Options) *Aggregator {
	return &Aggregator{options: options}
}

// Add appends a closed command buffer together with its dependencies as a
// single entry.
func (a *Aggregator) Add(buf metadata.CommandBuffer, deps Dependencies) uuid.UUID {
	return a.Record(buf, func(c *Contribution) {
		for _, sb := range deps.StagingBuffers {
			c.AddStagingBuffer(sb)
		}
		for _, img := range deps.Images {
			c.AddImage(img)
		}
		for _, b := range deps.Barriers {
			c.AddBarrier(b)
		}
	})
}

/**
 * @brief Appends buf and lets fn attribute resources to it. The lock is
 * held while fn runs, so fn must not block, do I/O, or take other locks.
 * If fn panics the partial entry is discarded and the lock released.
 * @return the ID of the new entry.
 */
func (a *Aggregator) Record(buf metadata.CommandBuffer, fn func(c *Contribution)) uuid.UUID {
	if buf == nil {
		panic("command aggregator: nil command buffer")
	}
	if !buf.IsClosed() {
		panic(fmt.Sprintf("command aggregator: command buffer %v is still recording", buf))
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	p := &a.pending
	index := p.len()
	id := uuid.New()
	p.ids = append(p.ids, id)
	p.commands = append(p.commands, buf)
	p.stagingSpans = append(p.stagingSpans, span{start: len(p.staging), end: len(p.staging)})
	p.imageSpans = append(p.imageSpans, span{start: len(p.images), end: len(p.images)})
	p.barrierSpans = append(p.barrierSpans, span{start: len(p.barriers), end: len(p.barriers)})

	c := &Contribution{aggregator: a, index: index}
	committed := false
	defer func() {
		c.done = true
		if !committed {
			p.truncate(index)
		}
	}()

	if fn != nil {
		fn(c)
	}
	committed = true
	return id
}

// Contribution attributes dependent resources to the entry being recorded.
// It is only valid inside the Record callback.
type Contribution struct {
	aggregator *Aggregator
	index      int
	done       bool
}

func (c *Contribution) check() *collections {
	if c.done {
		panic("command aggregator: contribution used after its Record call returned")
	}
	return &c.aggregator.pending
}

func (c *Contribution) AddStagingBuffer(b metadata.Buffer) {
	mustNotBeNil("staging buffer", b)
	p := c.check()
	p.staging = append(p.staging, b)
	p.stagingSpans[c.index].end = len(p.staging)
}

func (c *Contribution) AddImage(img metadata.Image) {
	mustNotBeNil("image", img)
	p := c.check()
	p.images = append(p.images, img)
	p.imageSpans[c.index].end = len(p.images)
}

func (c *Contribution) AddBarrier(b metadata.ImageBarrier) {
	p := c.check()
	p.barriers = append(p.barriers, b)
	p.barrierSpans[c.index].end = len(p.barriers)
}

// AddDependentResource attributes a staging buffer, an image barrier or an
// image handle, chosen by the dynamic type of resource. Any value that is
// not a buffer or a barrier is taken as an image handle. Nil values and
// command buffers panic.
func (c *Contribution) AddDependentResource(resource interface{}) {
	switch r := resource.(type) {
	case nil:
		panic("command aggregator: nil dependent resource")
	case metadata.CommandBuffer:
		panic(fmt.Sprintf("command aggregator: command buffer %v is not a dependent resource", r))
	case metadata.Buffer:
		c.AddStagingBuffer(r)
	case metadata.ImageBarrier:
		c.AddBarrier(r)
	case *metadata.ImageBarrier:
		if r == nil {
			panic("command aggregator: nil image barrier")
		}
		c.AddBarrier(*r)
	default:
		c.AddImage(r)
	}
}

// mustNotBeNil also catches typed nils stored in an interface.
func mustNotBeNil(what string, v interface{}) {
	if v == nil {
		panic(fmt.Sprintf("command aggregator: nil %s", what))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		if rv.IsNil() {
			panic(fmt.Sprintf("command aggregator: nil %s (%T)", what, v))
		}
	}
}

/**
 * @brief Copies the pending entries out under the lock. The pending batch is
 * left untouched: call Retire once the copy has been submitted, so that
 * nothing is lost if submission fails.
 */
func (a *Aggregator) PrepareSubmit() Batch {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.pending.len() == 0 {
		return Batch{}
	}
	return Batch{ID: uuid.New(), c: a.pending.clone()}
}

// Retire removes the entries of a submitted batch. Entries added after the
// batch was prepared stay pending.
func (a *Aggregator) Retire(b Batch) {
	n := b.Len()
	if n == 0 {
		return
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.pending.len() < n {
		panic(fmt.Sprintf("command aggregator: batch %s has %d entries, only %d pending", b.ID, n, a.pending.len()))
	}
	for i := 0; i < n; i++ {
		if a.pending.ids[i] != b.c.ids[i] {
			panic(fmt.Sprintf("command aggregator: batch %s does not match the pending entries", b.ID))
		}
	}
	a.pending.dropPrefix(n)
	core.LogDebug("command aggregator: retired batch %s (%d entries, %d still pending)", b.ID, n, a.pending.len())
}

// Clear drops every pending entry without releasing its resources.
func (a *Aggregator) Clear() {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.pending.reset()
}

// Empty reports whether no command buffers are pending.
func (a *Aggregator) Empty() bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	empty := a.pending.len() == 0
	if empty && a.options.Checked {
		if len(a.pending.staging) != 0 || len(a.pending.images) != 0 || len(a.pending.barriers) != 0 {
			panic("command aggregator: dependent resources pending without any command buffer")
		}
	}
	return empty
}

func (a *Aggregator) Len() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.pending.len()
}
