package core

import (
	"sync"

	"github.com/spaghettifunk/anima-frame/engine/containers"
)

const AVG_COUNT uint8 = 30

// Metrics keeps a rolling frame-time average, frames per second and the
// number of swapchain recreations. Safe for concurrent readers.
type Metrics struct {
	mutex sync.RWMutex

	// last AVG_COUNT frame times in ms
	msTimes            *containers.RingQueue[float64]
	msSum              float64
	msAVG              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64

	totalFrames uint64
	recreations uint64
	resetFrames uint64
}

func NewMetrics() *Metrics {
	return &Metrics{
		msTimes: containers.NewRingQueue[float64](int(AVG_COUNT)),
	}
}

// Update records one completed frame that took frameElapsedTime seconds.
func (m *Metrics) Update(frameElapsedTime float64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	// Calculate frame ms average over the last AVG_COUNT frames
	frameMS := frameElapsedTime * 1000.0
	if m.msTimes.IsFull() {
		oldest, _ := m.msTimes.Dequeue()
		m.msSum -= oldest
	}
	_ = m.msTimes.Enqueue(frameMS)
	m.msSum += frameMS
	m.msAVG = m.msSum / float64(m.msTimes.Len())

	// Calculate frames per second.
	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}

	m.frames++
	m.totalFrames++
}

// FrameReset records a frame whose surface had to be rebuilt.
func (m *Metrics) FrameReset() {
	m.mutex.Lock()
	m.resetFrames++
	m.mutex.Unlock()
}

// SetRecreations overwrites the recreation counter with the orchestrator's value.
func (m *Metrics) SetRecreations(n uint64) {
	m.mutex.Lock()
	m.recreations = n
	m.mutex.Unlock()
}

func (m *Metrics) FPS() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.fps
}

func (m *Metrics) FrameTime() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.msAVG
}

func (m *Metrics) Frame() (float64, float64) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.fps, m.msAVG
}

func (m *Metrics) TotalFrames() uint64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.totalFrames
}

func (m *Metrics) Recreations() uint64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.recreations
}

func (m *Metrics) ResetFrames() uint64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.resetFrames
}
