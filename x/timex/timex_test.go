package timex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonoStartsNearZero(t *testing.T) {
	m := NewMono()
	a := m.NowMs()
	assert.GreaterOrEqual(t, a, int64(0))
	assert.Less(t, a, int64(1000))
	assert.GreaterOrEqual(t, m.NowMs(), a)
}

func TestEvery(t *testing.T) {
	assert.False(t, Every(5, 0, time.Second))
	assert.True(t, Every(1000, 0, time.Second))
	assert.False(t, Every(1500, 1000, time.Second))
	assert.True(t, Every(2000, 1000, time.Second))
}
