package id

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeededGeneratorIsDeterministic(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)
	a := NewSeeded(42)
	b := NewSeeded(42)

	for i := 0; i < 5; i++ {
		ts := t0.Add(time.Duration(i) * time.Hour)
		assert.Equal(t, a.At(ts), b.At(ts))
	}
}

func TestAtEncodesEventTime(t *testing.T) {
	t.Parallel()

	ts := time.Date(2023, 11, 20, 9, 15, 0, 0, time.UTC)
	g := New()

	parsed, err := ulid.Parse(g.At(ts))
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(ts), parsed.Time())
}

func TestIDsSortInEventOrder(t *testing.T) {
	t.Parallel()

	g := NewSeeded(7)
	t0 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	prev := ""
	for i := 0; i < 20; i++ {
		// Several IDs share a timestamp to exercise monotonic entropy.
		cur := g.At(t0.Add(time.Duration(i/4) * 24 * time.Hour))
		assert.Greater(t, cur, prev)
		prev = cur
	}
}
