package tenancy

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHolder_GetSet(t *testing.T) {
	t.Run("empty holder has no tenant", func(t *testing.T) {
		h := NewHolder()
		id, ok := h.Get()
		assert.False(t, ok)
		assert.Equal(t, ID(""), id)
	})

	t.Run("set replaces the active tenant", func(t *testing.T) {
		h := NewHolder()
		h.Set("acme-corp")
		h.Set("globex")

		id, ok := h.Get()
		assert.True(t, ok)
		assert.Equal(t, ID("globex"), id)
	})

	t.Run("set empty clears", func(t *testing.T) {
		h := NewHolderWith("acme-corp")
		h.Set("")
		_, ok := h.Get()
		assert.False(t, ok)
	})
}

func TestHolder_Require(t *testing.T) {
	h := NewHolder()
	_, err := h.Require()
	assert.ErrorIs(t, err, ErrMissingTenantContext)

	h.Set("acme-corp")
	id, err := h.Require()
	require.NoError(t, err)
	assert.Equal(t, ID("acme-corp"), id)
}

func TestHolder_PushPopIsIdentity(t *testing.T) {
	priors := []ID{"", "acme-corp", DefaultID}

	for _, prior := range priors {
		t.Run(fmt.Sprintf("prior=%q", prior), func(t *testing.T) {
			h := NewHolderWith(prior)
			beforeID, beforeOK := h.Get()

			h.Push("globex")
			id, _ := h.Get()
			assert.Equal(t, ID("globex"), id)

			h.Pop()
			afterID, afterOK := h.Get()
			assert.Equal(t, beforeID, afterID)
			assert.Equal(t, beforeOK, afterOK)
			assert.Equal(t, 0, h.Depth())
		})
	}
}

func TestHolder_NestedPush(t *testing.T) {
	h := NewHolderWith("a1")
	h.Push("b2")
	h.Push("c3")

	id, ok := h.Pop()
	assert.True(t, ok)
	assert.Equal(t, ID("b2"), id)

	id, ok = h.Pop()
	assert.True(t, ok)
	assert.Equal(t, ID("a1"), id)
}

func TestHolder_PopEmptyStack(t *testing.T) {
	h := NewHolderWith("acme-corp")

	id, ok := h.Pop()
	assert.False(t, ok)
	assert.Equal(t, ID(""), id)

	_, active := h.Get()
	assert.False(t, active, "popping an empty stack leaves the holder cleared")

	assert.NotPanics(t, func() { h.Pop() })
}

func TestHolder_Clear(t *testing.T) {
	h := NewHolderWith("a1")
	h.Push("b2")
	h.Clear()

	_, ok := h.Get()
	assert.False(t, ok)
	assert.Equal(t, 0, h.Depth())
}

func TestHolder_Run(t *testing.T) {
	t.Run("body observes the tenant and previous one is restored", func(t *testing.T) {
		h := NewHolderWith("acme-corp")

		var seen ID
		err := h.Run("globex", func() error {
			seen, _ = h.Get()
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, ID("globex"), seen)

		id, _ := h.Get()
		assert.Equal(t, ID("acme-corp"), id)
	})

	t.Run("restores on error", func(t *testing.T) {
		h := NewHolderWith("acme-corp")
		boom := errors.New("boom")

		err := h.Run("globex", func() error { return boom })
		assert.ErrorIs(t, err, boom)

		id, _ := h.Get()
		assert.Equal(t, ID("acme-corp"), id)
	})

	t.Run("restores on panic", func(t *testing.T) {
		h := NewHolder()

		assert.Panics(t, func() {
			_ = h.Run("globex", func() error { panic("boom") })
		})

		_, ok := h.Get()
		assert.False(t, ok)
		assert.Equal(t, 0, h.Depth())
	})
}

func TestWithTenant(t *testing.T) {
	h := NewHolderWith("acme-corp")

	got, err := WithTenant(h, "globex", func() (string, error) {
		id, _ := h.Get()
		return "value-for-" + id.String(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "value-for-globex", got)

	_, err = WithTenant(h, "initech", func() (int, error) {
		return 0, errors.New("failed")
	})
	assert.Error(t, err)

	id, _ := h.Get()
	assert.Equal(t, ID("acme-corp"), id)
}

func TestHolder_ConcurrentReaders(t *testing.T) {
	h := NewHolderWith("acme-corp")

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				id, ok := h.Get()
				assert.True(t, ok)
				assert.Equal(t, ID("acme-corp"), id)
			}
		}()
	}
	wg.Wait()
}
