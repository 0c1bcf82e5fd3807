package common

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer(t *testing.T) {
	timer := NewNamedTimer("test_timer")
	assert.Equal(t, "test_timer", timer.Name())

	time.Sleep(10 * time.Millisecond)

	duration := timer.Stop()
	assert.GreaterOrEqual(t, duration, 10*time.Millisecond)
	assert.Equal(t, duration, timer.Duration())

	time.Sleep(time.Millisecond)
	assert.Equal(t, duration, timer.Stop(), "second Stop keeps the first value")

	str := timer.String()
	assert.Contains(t, str, "test_timer")
	assert.Contains(t, str, "ms")
}

func TestTimer_RunningDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(2 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Duration(), 2*time.Millisecond)
	assert.Empty(t, timer.Name())
	assert.Equal(t, "elapsed_ms", timer.Attr().Key)
}

func TestStages(t *testing.T) {
	var s Stages
	s.Start("decode").Stop()
	s.Start("classify").Stop()

	attrs := s.Attrs()
	require.Len(t, attrs, 2)
	assert.Equal(t, "decode_ms", attrs[0].(slog.Attr).Key)
	assert.Equal(t, "classify_ms", attrs[1].(slog.Attr).Key)
}
