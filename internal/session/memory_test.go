package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore(time.Minute)

	_, err := st.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	s := New("s1")
	s.Ingest("text")
	require.NoError(t, st.Save(ctx, s))

	// mutating the saved value must not leak into the store
	s.Question = "leaked"

	loaded, err := st.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "", loaded.Question)
	assert.Equal(t, "text", loaded.RawText)

	loaded.History[0].Content = "mutated"
	again, err := st.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "text", again.History[0].Content)

	_, err = st.Load(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, st.Close())
}

func TestMemoryStoreExpires(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore(20 * time.Millisecond)
	require.NoError(t, st.Save(ctx, New("s1")))

	time.Sleep(40 * time.Millisecond)

	_, err := st.Load(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}
