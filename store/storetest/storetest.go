// Package storetest holds behaviour tests shared by every ThreadStore.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smallnest/adaptiverag/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises s against the ThreadStore contract. s must start empty.
func Run(t *testing.T, s store.ThreadStore) {
	ctx := context.Background()

	t.Run("load unknown", func(t *testing.T) {
		_, err := s.Load(ctx, "nobody")
		assert.ErrorIs(t, err, store.ErrThreadNotFound)
	})

	t.Run("save and load", func(t *testing.T) {
		th := store.NewThread("thread-1")
		th.Messages = append(th.Messages,
			store.Message{Role: store.RoleUser, Content: "Hi there", Timestamp: time.Now()},
			store.Message{Role: store.RoleAssistant, Content: "Hello!", Timestamp: time.Now()},
		)
		require.NoError(t, s.Save(ctx, th))
		assert.Equal(t, 1, th.Version)
		assert.False(t, th.UpdatedAt.IsZero())

		loaded, err := s.Load(ctx, "thread-1")
		require.NoError(t, err)
		assert.Equal(t, 1, loaded.Version)
		require.Len(t, loaded.Messages, 2)
		assert.Equal(t, store.RoleUser, loaded.Messages[0].Role)
		assert.Equal(t, "Hello!", loaded.Messages[1].Content)

		loaded.Messages = append(loaded.Messages, store.Message{Role: store.RoleUser, Content: "again"})
		require.NoError(t, s.Save(ctx, loaded))

		again, err := s.Load(ctx, "thread-1")
		require.NoError(t, err)
		assert.Equal(t, 2, again.Version)
		assert.Len(t, again.Messages, 3)
	})

	t.Run("stale save conflicts", func(t *testing.T) {
		a, err := s.Load(ctx, "thread-1")
		require.NoError(t, err)
		b, err := s.Load(ctx, "thread-1")
		require.NoError(t, err)

		a.Messages = append(a.Messages, store.Message{Role: store.RoleUser, Content: "from a"})
		require.NoError(t, s.Save(ctx, a))

		b.Messages = append(b.Messages, store.Message{Role: store.RoleUser, Content: "from b"})
		assert.ErrorIs(t, s.Save(ctx, b), store.ErrVersionConflict)

		fresh := store.NewThread("thread-1")
		assert.ErrorIs(t, s.Save(ctx, fresh), store.ErrVersionConflict)
	})

	t.Run("concurrent new threads", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				th := store.NewThread(fmt.Sprintf("parallel-%d", i))
				th.Messages = append(th.Messages, store.Message{Role: store.RoleUser, Content: "hello"})
				assert.NoError(t, s.Save(ctx, th))
			}(i)
		}
		wg.Wait()
	})

	t.Run("list and delete", func(t *testing.T) {
		ids, err := s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"parallel-0", "parallel-1", "parallel-2", "parallel-3", "parallel-4", "thread-1"}, ids)

		require.NoError(t, s.Delete(ctx, "thread-1"))
		_, err = s.Load(ctx, "thread-1")
		assert.ErrorIs(t, err, store.ErrThreadNotFound)
		assert.ErrorIs(t, s.Delete(ctx, "thread-1"), store.ErrThreadNotFound)
	})
}
