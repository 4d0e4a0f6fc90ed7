package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestManagerGetUnknownReturnsIdle(t *testing.T) {
	m := NewManager(NewMemoryStore(time.Minute))
	s, err := m.Get(context.Background(), "new")
	require.NoError(t, err)
	assert.Equal(t, "new", s.ID)
	assert.Equal(t, StateIdle, s.State)
}

func TestManagerUpdateCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(time.Minute))

	err := m.Update(ctx, "s1", func(s *Session) error {
		s.Ingest("text")
		return s.SetQuestion("Q", "A")
	})
	require.NoError(t, err)

	s, err := m.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Q", s.Question)
	assert.Equal(t, "A", s.Answer)
	assert.False(t, s.UpdatedAt.IsZero())
}

func TestManagerUpdateDiscardsOnError(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(time.Minute))
	require.NoError(t, m.Update(ctx, "s1", func(s *Session) error {
		s.Ingest("text")
		return s.SetQuestion("Q", "A")
	}))

	boom := errors.New("boom")
	err := m.Update(ctx, "s1", func(s *Session) error {
		s.Ingest("other text")
		_ = s.SetQuestion("Q2", "A2")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	s, err := m.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Q", s.Question)
	assert.Equal(t, "A", s.Answer)
	assert.Equal(t, "text", s.RawText)
}

func TestManagerUpdateSerializesSameSession(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(time.Minute))
	require.NoError(t, m.Update(ctx, "s1", func(s *Session) error {
		s.Ingest("text")
		return nil
	}))

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Update(ctx, "s1", func(s *Session) error {
				return s.SetQuestion("Q", "A", s.History[0])
			})
		}()
	}
	wg.Wait()

	s, err := m.Get(ctx, "s1")
	require.NoError(t, err)
	// every update saw the previous one's history
	assert.Len(t, s.History, workers+1)
	assert.Empty(t, m.locks)
}

func TestManagerUpdateStoreErrors(t *testing.T) {
	ctx := context.Background()
	st := new(MockStore)
	loadErr := errors.New("redis down")
	st.On("Load", mock.Anything, "s1").Return(nil, loadErr).Once()

	m := NewManager(st)
	called := false
	err := m.Update(ctx, "s1", func(*Session) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, loadErr)
	assert.False(t, called)
	st.AssertExpectations(t)
}

func TestManagerUpdateSavesThroughStore(t *testing.T) {
	ctx := context.Background()
	st := new(MockStore)
	st.On("Load", mock.Anything, "s1").Return(nil, ErrNotFound).Once()
	st.On("Save", mock.Anything, mock.MatchedBy(func(s *Session) bool {
		return s.ID == "s1" && s.State == StateHasText
	})).Return(nil).Once()

	m := NewManager(st)
	require.NoError(t, m.Update(ctx, "s1", func(s *Session) error {
		s.Ingest("text")
		return nil
	}))
	st.AssertExpectations(t)
}
