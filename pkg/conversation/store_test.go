package conversation

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState(t *testing.T) {
	t.Run("should append and copy messages", func(t *testing.T) {
		s := &State{key: "c1"}
		s.Append(SystemMessage("prompt"), UserMessage("hello"))

		msgs := s.Messages()
		require.Len(t, msgs, 2)
		assert.Equal(t, RoleSystem, msgs[0].Role)

		// Mutating the copy must not affect the state.
		msgs[0].Content = "changed"
		assert.Equal(t, "prompt", s.Messages()[0].Content)
	})

	t.Run("should fully clear history on reset", func(t *testing.T) {
		s := &State{key: "c1"}
		s.SetUserID("u1")
		s.SetCartSession("session_u1_1")
		s.IncrementTurn()
		s.Append(SystemMessage("prompt"), UserMessage("hello"), AssistantMessage("hi", nil))

		s.Reset()

		assert.Zero(t, s.Len())
		ctx := s.Context()
		assert.Equal(t, "u1", ctx.UserID)
		assert.Empty(t, ctx.CartSessionID)
		assert.Zero(t, ctx.TurnCount)
	})

	t.Run("should track context mutations", func(t *testing.T) {
		s := &State{key: "c1"}
		s.SetUserID("u1")
		s.SetCartSession("session_u1_20260831")

		assert.Equal(t, 1, s.IncrementTurn())
		assert.Equal(t, 2, s.IncrementTurn())

		ctx := s.Context()
		assert.Equal(t, "u1", ctx.UserID)
		assert.Equal(t, "session_u1_20260831", ctx.CartSessionID)
		assert.Equal(t, 2, ctx.TurnCount)
	})
}

func TestStore(t *testing.T) {
	t.Run("should isolate conversations by key", func(t *testing.T) {
		store := NewStore(zerolog.Nop())

		a := store.Get("conn-a")
		b := store.Get("conn-b")
		a.Append(UserMessage("only in a"))

		assert.Equal(t, 1, a.Len())
		assert.Zero(t, b.Len())
		assert.Equal(t, 2, store.Count())
	})

	t.Run("should return the same state for the same key", func(t *testing.T) {
		store := NewStore(zerolog.Nop())
		assert.Same(t, store.Get("conn-a"), store.Get("conn-a"))
	})

	t.Run("should remove conversations", func(t *testing.T) {
		store := NewStore(zerolog.Nop())
		store.Get("conn-a")
		store.Remove("conn-a")
		assert.Zero(t, store.Count())
	})

	t.Run("should evict only idle conversations", func(t *testing.T) {
		store := NewStore(zerolog.Nop())

		store.Get("stale")
		time.Sleep(30 * time.Millisecond)
		fresh := store.Get("fresh")
		fresh.Append(UserMessage("keep me"))

		evicted := store.EvictIdle(20 * time.Millisecond)

		assert.Equal(t, 1, evicted)
		assert.Equal(t, 1, store.Count())
		assert.Equal(t, 1, store.Get("fresh").Len())
	})

	t.Run("should recreate an evicted conversation empty", func(t *testing.T) {
		store := NewStore(zerolog.Nop())

		store.Get("conn-a").Append(UserMessage("old history"))
		time.Sleep(30 * time.Millisecond)
		require.Equal(t, 1, store.EvictIdle(20*time.Millisecond))

		assert.Zero(t, store.Get("conn-a").Len())
	})

	t.Run("should keep everything touched within the window", func(t *testing.T) {
		store := NewStore(zerolog.Nop())
		store.Get("conn-a")
		store.Get("conn-b")

		assert.Zero(t, store.EvictIdle(time.Hour))
		assert.Equal(t, 2, store.Count())
	})

	t.Run("should be safe under concurrent access", func(t *testing.T) {
		store := NewStore(zerolog.Nop())
		s := store.Get("conn-a")

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.Append(UserMessage("m"))
				s.IncrementTurn()
				store.Get("conn-a")
			}()
		}
		wg.Wait()

		assert.Equal(t, 20, s.Len())
		assert.Equal(t, 20, s.Context().TurnCount)
	})
}
