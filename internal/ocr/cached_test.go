package ocr

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"omaope/internal/cache"
)

func TestCachedEngine(t *testing.T) {
	in := Input{ID: "image-0", Image: []byte("img"), Languages: []string{"fin"}}
	key := cacheKey("mock", in)
	detected := Result{InputID: "image-0", Annotations: []Annotation{{Description: "Pariisi", Locale: "fi"}}}

	tests := []struct {
		name    string
		setup   func(*MockEngine, *cache.MockCache)
		want    Result
		wantErr error
	}{
		{
			name: "hit skips the engine",
			setup: func(e *MockEngine, c *cache.MockCache) {
				c.On("GetResult", mock.Anything, key).
					Return(&cache.Result{Engine: "mock", Annotations: []cache.Annotation{{Description: "Pariisi", Locale: "fi"}}}, nil).Once()
			},
			want: detected,
		},
		{
			name: "miss calls the engine and stores",
			setup: func(e *MockEngine, c *cache.MockCache) {
				c.On("GetResult", mock.Anything, key).Return(nil, nil).Once()
				e.On("Detect", mock.Anything, in).Return(detected, nil).Once()
				c.On("SetResult", mock.Anything, key, &cache.Result{
					Engine:      "mock",
					Annotations: []cache.Annotation{{Description: "Pariisi", Locale: "fi"}},
				}, time.Hour).Return(nil).Once()
			},
			want: detected,
		},
		{
			name: "cache errors fall through",
			setup: func(e *MockEngine, c *cache.MockCache) {
				c.On("GetResult", mock.Anything, key).Return(nil, errors.New("redis down")).Once()
				e.On("Detect", mock.Anything, in).Return(detected, nil).Once()
				c.On("SetResult", mock.Anything, key, mock.Anything, time.Hour).Return(errors.New("redis down")).Once()
			},
			want: detected,
		},
		{
			name: "engine errors are not cached",
			setup: func(e *MockEngine, c *cache.MockCache) {
				c.On("GetResult", mock.Anything, key).Return(nil, nil).Once()
				e.On("Detect", mock.Anything, in).Return(Result{}, ErrUpstreamUnavailable).Once()
			},
			wantErr: ErrUpstreamUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := new(MockEngine)
			c := new(cache.MockCache)
			tt.setup(engine, c)

			ce := NewCachedEngine(engine, c, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
			got, err := ce.Detect(context.Background(), in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			engine.AssertExpectations(t)
			c.AssertExpectations(t)
		})
	}
}

func TestCacheKeyDependsOnContentAndLanguages(t *testing.T) {
	a := cacheKey("vision", Input{ID: "x", Image: []byte("one"), Languages: []string{"fin"}})
	b := cacheKey("vision", Input{ID: "y", Image: []byte("one"), Languages: []string{"fin"}})
	c := cacheKey("vision", Input{ID: "x", Image: []byte("two"), Languages: []string{"fin"}})
	d := cacheKey("vision", Input{ID: "x", Image: []byte("one"), Languages: []string{"eng"}})

	assert.Equal(t, a, b, "input id is not part of the key")
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
}
