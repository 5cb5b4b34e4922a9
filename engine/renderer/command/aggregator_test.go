package command

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-frame/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-frame/engine/renderer/metadata/metadatatest"
)

func TestEmptyLifecycle(t *testing.T) {
	a := NewAggregator(Options{Checked: true})
	assert.True(t, a.Empty())

	a.Add(metadatatest.NewClosedCommandBuffer("upload"), Dependencies{
		StagingBuffers: []metadata.Buffer{metadatatest.NewBuffer("staging", 64)},
	})
	assert.False(t, a.Empty())

	batch := a.PrepareSubmit()
	assert.Equal(t, 1, batch.Len())
	assert.False(t, a.Empty(), "PrepareSubmit does not clear")

	a.Clear()
	assert.True(t, a.Empty())
}

func TestAddRequiresClosedBuffer(t *testing.T) {
	a := NewAggregator(Options{})
	cb := metadatatest.NewCommandBuffer("open")
	require.NoError(t, cb.Begin())

	assert.Panics(t, func() { a.Add(cb, Dependencies{}) })
	assert.Panics(t, func() { a.Add(nil, Dependencies{}) })
	assert.True(t, a.Empty())
}

func TestEntriesKeepTheirOwnDependencies(t *testing.T) {
	a := NewAggregator(Options{})
	first := metadatatest.NewClosedCommandBuffer("first")
	second := metadatatest.NewClosedCommandBuffer("second")
	b1 := metadatatest.NewBuffer("b1", 16)
	b2 := metadatatest.NewBuffer("b2", 32)
	barrier := metadata.ImageBarrier{Image: "tex", NewLayout: metadata.ImageLayoutShaderReadOnlyOptimal}

	a.Add(first, Dependencies{StagingBuffers: []metadata.Buffer{b1}, Images: []metadata.Image{"tex"}})
	a.Record(second, func(c *Contribution) {
		c.AddDependentResource(b2)
		c.AddDependentResource(barrier)
	})

	batch := a.PrepareSubmit()
	require.Equal(t, 2, batch.Len())
	assert.Equal(t, []metadata.CommandBuffer{first, second}, batch.CommandBuffers())

	e0 := batch.Entry(0)
	assert.Equal(t, []metadata.Buffer{b1}, e0.StagingBuffers)
	assert.Equal(t, []metadata.Image{"tex"}, e0.Images)
	assert.Empty(t, e0.Barriers)

	e1 := batch.Entry(1)
	assert.Equal(t, []metadata.Buffer{b2}, e1.StagingBuffers)
	assert.Empty(t, e1.Images)
	assert.Equal(t, []metadata.ImageBarrier{barrier}, e1.Barriers)
	assert.NotEqual(t, e0.ID, e1.ID)
}

func TestConcurrentContributions(t *testing.T) {
	a := NewAggregator(Options{Checked: true})
	const producers = 8
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				name := fmt.Sprintf("p%d-%d", p, i)
				cb := metadatatest.NewClosedCommandBuffer(name)
				a.Record(cb, func(c *Contribution) {
					// each producer attributes a distinct number of resources
					for k := 0; k <= p; k++ {
						c.AddStagingBuffer(metadatatest.NewBuffer(name, uint64(k)))
					}
					c.AddImage(name)
				})
			}
		}(p)
	}
	wg.Wait()

	batch := a.PrepareSubmit()
	require.Equal(t, producers*perProducer, batch.Len())
	for _, e := range batch.Entries() {
		name := e.CommandBuffer.(*metadatatest.CommandBuffer).Name
		var p int
		_, err := fmt.Sscanf(name, "p%d-", &p)
		require.NoError(t, err)

		require.Len(t, e.StagingBuffers, p+1, name)
		for _, sb := range e.StagingBuffers {
			assert.Equal(t, name, sb.(*metadatatest.Buffer).Name)
		}
		assert.Equal(t, []metadata.Image{name}, e.Images)
	}
}

func TestRetireKeepsLaterEntries(t *testing.T) {
	a := NewAggregator(Options{Checked: true})
	early := metadatatest.NewClosedCommandBuffer("early")
	late := metadatatest.NewClosedCommandBuffer("late")
	lateBuffer := metadatatest.NewBuffer("late", 8)

	a.Add(early, Dependencies{StagingBuffers: []metadata.Buffer{metadatatest.NewBuffer("early", 8)}})
	batch := a.PrepareSubmit()
	a.Add(late, Dependencies{StagingBuffers: []metadata.Buffer{lateBuffer}})

	a.Retire(batch)
	require.Equal(t, 1, a.Len())

	next := a.PrepareSubmit()
	require.Equal(t, 1, next.Len())
	e := next.Entry(0)
	assert.Same(t, late, e.CommandBuffer)
	assert.Equal(t, []metadata.Buffer{lateBuffer}, e.StagingBuffers)

	a.Retire(next)
	assert.True(t, a.Empty())
}

func TestRetireMismatchPanics(t *testing.T) {
	a := NewAggregator(Options{})
	a.Add(metadatatest.NewClosedCommandBuffer("x"), Dependencies{})
	batch := a.PrepareSubmit()
	a.Clear()
	a.Add(metadatatest.NewClosedCommandBuffer("y"), Dependencies{})

	assert.Panics(t, func() { a.Retire(batch) })
	assert.NotPanics(t, func() { a.Retire(Batch{}) })
}

func TestRecordRollsBackOnPanic(t *testing.T) {
	a := NewAggregator(Options{Checked: true})
	a.Add(metadatatest.NewClosedCommandBuffer("kept"), Dependencies{Images: []metadata.Image{"kept"}})

	assert.Panics(t, func() {
		a.Record(metadatatest.NewClosedCommandBuffer("broken"), func(c *Contribution) {
			c.AddImage("partial")
			panic("producer failed")
		})
	})

	// the lock was released and the partial entry dropped
	batch := a.PrepareSubmit()
	require.Equal(t, 1, batch.Len())
	assert.Equal(t, []metadata.Image{"kept"}, batch.Images())
}

func TestNilDependentResourcesPanic(t *testing.T) {
	a := NewAggregator(Options{Checked: true})
	var typedNil *metadatatest.Buffer
	var nilBarrier *metadata.ImageBarrier

	cases := map[string]func(c *Contribution){
		"nil":            func(c *Contribution) { c.AddDependentResource(nil) },
		"typed nil":      func(c *Contribution) { c.AddDependentResource(typedNil) },
		"nil barrier":    func(c *Contribution) { c.AddDependentResource(nilBarrier) },
		"command buffer": func(c *Contribution) { c.AddDependentResource(metadatatest.NewClosedCommandBuffer("cb")) },
		"staging nil":    func(c *Contribution) { c.AddStagingBuffer(nil) },
		"staging typed":  func(c *Contribution) { c.AddStagingBuffer(typedNil) },
		"image nil":      func(c *Contribution) { c.AddImage(nil) },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Panics(t, func() { a.Record(metadatatest.NewClosedCommandBuffer(name), fn) })
			assert.True(t, a.Empty())
		})
	}

	// a plain handle is still an image
	a.Record(metadatatest.NewClosedCommandBuffer("image"), func(c *Contribution) {
		c.AddDependentResource("albedo")
	})
	assert.Equal(t, []metadata.Image{"albedo"}, a.PrepareSubmit().Images())
}

func TestContributionUnusableAfterRecord(t *testing.T) {
	a := NewAggregator(Options{})
	var leaked *Contribution
	a.Record(metadatatest.NewClosedCommandBuffer("cb"), func(c *Contribution) { leaked = c })
	assert.Panics(t, func() { leaked.AddImage("late") })
}

func TestSnapshotIsIndependent(t *testing.T) {
	a := NewAggregator(Options{})
	a.Add(metadatatest.NewClosedCommandBuffer("one"), Dependencies{Images: []metadata.Image{"a"}})
	batch := a.PrepareSubmit()

	a.Clear()
	a.Add(metadatatest.NewClosedCommandBuffer("two"), Dependencies{Images: []metadata.Image{"b"}})

	assert.Equal(t, []metadata.Image{"a"}, batch.Images())
	assert.Equal(t, "one", batch.CommandBuffers()[0].(*metadatatest.CommandBuffer).Name)
}

func TestBatchRelease(t *testing.T) {
	a := NewAggregator(Options{})
	cb := metadatatest.NewClosedCommandBuffer("cb")
	sb := metadatatest.NewBuffer("sb", 4)
	a.Add(cb, Dependencies{StagingBuffers: []metadata.Buffer{sb}})

	batch := a.PrepareSubmit()
	batch.Release()
	assert.Equal(t, 1, sb.Destroyed())
	assert.True(t, cb.Freed())

	assert.NotPanics(t, func() { Batch{}.Release() })
}
