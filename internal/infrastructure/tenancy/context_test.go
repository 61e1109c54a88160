package tenancy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    ID
		wantErr error
	}{
		{name: "slug", raw: "acme-corp", want: "acme-corp"},
		{name: "normalizes case and space", raw: "  ACME-Corp ", want: "acme-corp"},
		{name: "digits", raw: "ws42", want: "ws42"},
		{name: "full-width", raw: "\uff21\uff23\uff2d\uff25\uff0dcorp", want: "acme-corp"},
		{name: "empty", raw: "", wantErr: ErrMissingTenantContext},
		{name: "blank", raw: "   ", wantErr: ErrMissingTenantContext},
		{name: "single char", raw: "a", wantErr: ErrInvalidTenantID},
		{name: "leading hyphen", raw: "-acme", wantErr: ErrInvalidTenantID},
		{name: "sql injection", raw: "acme;drop schema", wantErr: ErrInvalidTenantID},
		{name: "too long", raw: strings.Repeat("a", MaxIDLength+1), wantErr: ErrInvalidTenantID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseID(tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestID_SchemaName(t *testing.T) {
	assert.Equal(t, "ws_acme_corp", ID("acme-corp").SchemaName())
	assert.True(t, DefaultID.IsDefault())
	assert.True(t, ID("").IsZero())
}

func TestFromContext(t *testing.T) {
	t.Run("no holder", func(t *testing.T) {
		_, ok := FromContext(context.Background())
		assert.False(t, ok)

		_, err := RequireFromContext(context.Background())
		assert.ErrorIs(t, err, ErrMissingTenantContext)
	})

	t.Run("holder without tenant", func(t *testing.T) {
		ctx := NewContext(context.Background(), NewHolder())
		_, ok := FromContext(ctx)
		assert.False(t, ok)
	})

	t.Run("reads the live holder value", func(t *testing.T) {
		h := NewHolder()
		ctx := NewContext(context.Background(), h)

		h.Set("acme-corp")
		id, err := RequireFromContext(ctx)
		require.NoError(t, err)
		assert.Equal(t, ID("acme-corp"), id)

		h.Clear()
		_, ok := FromContext(ctx)
		assert.False(t, ok)
	})

	t.Run("context with tenant", func(t *testing.T) {
		ctx := ContextWithTenant(context.Background(), "globex")
		id, ok := FromContext(ctx)
		assert.True(t, ok)
		assert.Equal(t, ID("globex"), id)
	})
}

func TestDetach(t *testing.T) {
	h := NewHolderWith("acme-corp")
	ctx := NewContext(context.Background(), h)

	detached := Detach(ctx)
	h.Clear()

	id, ok := FromContext(detached)
	assert.True(t, ok, "detached context keeps the tenant after the request holder is cleared")
	assert.Equal(t, ID("acme-corp"), id)

	dh, _ := HolderFromContext(detached)
	assert.NotSame(t, h, dh)
}

func TestIdentifierResolver(t *testing.T) {
	r := NewIdentifierResolver("")
	assert.Equal(t, DefaultID, r.Fallback())
	assert.False(t, r.ValidateExistingCurrentSessions())

	assert.Equal(t, DefaultID, r.ResolveCurrentTenantIdentifier(context.Background()))

	ctx := ContextWithTenant(context.Background(), "acme-corp")
	assert.Equal(t, ID("acme-corp"), r.ResolveCurrentTenantIdentifier(ctx))

	custom := NewIdentifierResolver("shared")
	assert.Equal(t, ID("shared"), custom.ResolveCurrentTenantIdentifier(context.Background()))
}

// Simulates many concurrent units of work each owning a holder; none may ever
// observe another's tenant.
func TestContext_NoCrossTalkUnderLoad(t *testing.T) {
	const workers = 200

	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := range workers {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			want := ID(fmt.Sprintf("tenant-%03d", n))
			h := NewHolder()
			ctx := NewContext(context.Background(), h)
			h.Set(want)
			defer h.Clear()

			for range 100 {
				got, ok := FromContext(ctx)
				if !ok || got != want {
					errs <- fmt.Errorf("worker %d saw %q", n, got)
					return
				}
				time.Sleep(time.Microsecond)
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	var all []error
	for err := range errs {
		all = append(all, err)
	}
	assert.NoError(t, errors.Join(all...))
}
