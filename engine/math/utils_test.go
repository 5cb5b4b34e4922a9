package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, uint32(64), Clamp(uint32(10), 64, 4096))
	assert.Equal(t, uint32(4096), Clamp(uint32(8000), 64, 4096))
	assert.Equal(t, uint32(1280), Clamp(uint32(1280), 64, 4096))
	assert.Equal(t, float32(16), Clamp(float32(64), 1, 16))
	assert.Equal(t, -1, Clamp(-5, -1, 1))
}

func TestClampMax(t *testing.T) {
	assert.Equal(t, uint32(3), ClampMax(uint32(3), 0))
	assert.Equal(t, uint32(2), ClampMax(uint32(3), 2))
	assert.Equal(t, uint32(3), ClampMax(uint32(3), 8))
	assert.Equal(t, float32(1.5), ClampMax(float32(4), 1.5))
}
