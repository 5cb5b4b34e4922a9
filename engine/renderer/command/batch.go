package command

import (
	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-frame/engine/renderer/metadata"
)

// Batch is a snapshot of the pending entries taken by PrepareSubmit. The
// zero value is an empty batch.
type Batch struct {
	ID uuid.UUID
	c  collections
}

func (b Batch) Len() int {
	return b.c.len()
}

func (b Batch) IsEmpty() bool {
	return b.c.len() == 0
}

// CommandBuffers returns the buffers in submission order.
func (b Batch) CommandBuffers() []metadata.CommandBuffer {
	return b.c.commands
}

func (b Batch) Entry(i int) Entry {
	return b.c.entry(i)
}

func (b Batch) Entries() []Entry {
	entries := make([]Entry, b.c.len())
	for i := range entries {
		entries[i] = b.c.entry(i)
	}
	return entries
}

func (b Batch) StagingBuffers() []metadata.Buffer {
	return b.c.staging
}

func (b Batch) Images() []metadata.Image {
	return b.c.images
}

func (b Batch) Barriers() []metadata.ImageBarrier {
	return b.c.barriers
}

/**
 * @brief Frees everything the batch kept alive. Call it once, after the
 * fence of the submission that carried the batch has signaled.
 */
func (b Batch) Release() {
	for _, sb := range b.c.staging {
		sb.Destroy()
	}
	for _, cb := range b.c.commands {
		if f, ok := cb.(metadata.Freeable); ok {
			f.Free()
		}
	}
}
