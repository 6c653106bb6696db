package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloatEqual(t *testing.T) {
	assert.True(t, FloatEqual(0.1+0.2, 0.3, CostEpsilon))
	assert.False(t, FloatEqual(4.0, 4.01, CostEpsilon))
}

func TestCeilDiv(t *testing.T) {
	assert.Equal(t, 59, CeilDiv(933, 16))
	assert.Equal(t, 2, CeilDiv(32, 16))
	assert.Equal(t, 0, CeilDiv(0, 16))
	assert.Equal(t, 0, CeilDiv(10, 0))
}

func TestRoundCents(t *testing.T) {
	assert.Equal(t, 1.23, RoundCents(1.2349))
	assert.Equal(t, 1.24, RoundCents(1.235001))
}

func TestPtr(t *testing.T) {
	p := Ptr(5.0)
	assert.Equal(t, 5.0, *p)
}
