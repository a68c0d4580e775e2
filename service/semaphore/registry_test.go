package semaphore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/kcore/errs"
	"github.com/viant/kcore/internal/logger"
)

func TestRegistry_Create(t *testing.T) {
	testCases := []struct {
		name      string
		limit     int
		creates   int
		expectErr error
	}{
		{name: "within limit", limit: 3, creates: 3},
		{name: "exhausted", limit: 2, creates: 3, expectErr: errs.ErrResourceExhausted},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			registry := NewRegistry(newScheduler(), WithConfig(Config{MaxSemaphores: tc.limit}), WithLogger(logger.Discard()))
			var err error
			for i := 0; i < tc.creates; i++ {
				if _, err = registry.Create(0, 1); err != nil {
					break
				}
			}
			if tc.expectErr != nil {
				assert.True(t, errors.Is(err, tc.expectErr), "unexpected error: %v", err)
				assert.Equal(t, tc.limit, registry.Len())
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.creates, registry.Len())
		})
	}
}

func TestRegistry_Lifecycle(t *testing.T) {
	registry := NewRegistry(newScheduler(), WithConfig(Config{MaxSemaphores: 2}), WithLogger(logger.Discard()))

	_, err := registry.Create(3, 1)
	assert.True(t, errors.Is(err, errs.ErrInvalidRange))
	assert.Equal(t, 0, registry.Len())

	first, err := registry.Create(1, 1)
	assert.NoError(t, err)
	second, err := registry.Create(0, 5)
	assert.NoError(t, err)
	assert.Equal(t, ID(1), first.ID())
	assert.Equal(t, ID(2), second.ID())

	found, err := registry.Lookup(second.ID())
	assert.NoError(t, err)
	assert.Equal(t, second, found)

	assert.NoError(t, registry.Delete(first.ID()))
	assert.True(t, first.Destroyed())
	_, err = registry.Lookup(first.ID())
	assert.True(t, errors.Is(err, errs.ErrInvalidHandle))
	assert.True(t, errors.Is(registry.Delete(first.ID()), errs.ErrInvalidHandle))

	third, err := registry.Create(0, 1)
	assert.NoError(t, err)
	assert.Equal(t, ID(3), third.ID())

	var ids []ID
	for _, sem := range registry.List() {
		ids = append(ids, sem.ID())
	}
	assert.Equal(t, []ID{2, 3}, ids)
}
