package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petregistry/internal/registry/models"
	"petregistry/pkg/domain"
	dErrors "petregistry/pkg/domain-errors"
)

func newUpstream(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchDescriptive(t *testing.T) {
	srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/shop/items/item-1":
			_ = json.NewEncoder(w).Encode(recordResponse{Name: "Rex", SpeciesRef: "dog", ImageRefs: []string{"a.png"}})
		case "/adoption/pets/broken":
			_, _ = w.Write([]byte("{not json"))
		case "/direct/pets/secret":
			w.WriteHeader(http.StatusForbidden)
		default:
			http.NotFound(w, r)
		}
	})
	c := New(srv.URL, time.Second)
	ctx := context.Background()

	t.Run("decodes record", func(t *testing.T) {
		desc, err := c.FetchDescriptive(ctx, domain.OriginShop, "item-1")
		require.NoError(t, err)
		assert.Equal(t, "Rex", desc.Name)
		assert.Equal(t, []string{"a.png"}, desc.ImageRefs)
	})

	t.Run("missing record is not found", func(t *testing.T) {
		_, err := c.FetchDescriptive(ctx, domain.OriginShop, "nope")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
		assert.Equal(t, ErrorNotFound, CategoryOf(err))
		assert.False(t, IsRetryable(err))
	})

	t.Run("bad payload", func(t *testing.T) {
		_, err := c.FetchDescriptive(ctx, domain.OriginAdoption, "broken")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
		assert.Equal(t, ErrorBadData, CategoryOf(err))
	})

	t.Run("forbidden", func(t *testing.T) {
		_, err := c.FetchDescriptive(ctx, domain.OriginDirect, "secret")
		assert.Equal(t, ErrorAuthentication, CategoryOf(err))
	})

	t.Run("unknown origin", func(t *testing.T) {
		_, err := c.FetchDescriptive(ctx, "zoo", "x")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestBreakerOpensOnOutage(t *testing.T) {
	var calls atomic.Int32
	srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	c := New(srv.URL, time.Second, WithBreaker(2, time.Hour))
	ctx := context.Background()

	for range 2 {
		_, err := c.FetchDescriptive(ctx, domain.OriginShop, "item-1")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
		assert.True(t, IsRetryable(err))
	}

	_, err := c.FetchDescriptive(ctx, domain.OriginShop, "item-1")
	assert.Equal(t, ErrorCircuitOpen, CategoryOf(err))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	assert.Equal(t, int32(2), calls.Load(), "open circuit short-circuits")

	srv2 := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(recordResponse{Name: "Tom"})
	})
	other := New(srv2.URL, time.Second)
	_, err = other.FetchDescriptive(ctx, domain.OriginAdoption, "ad-1")
	require.NoError(t, err, "breakers are per client and origin")
}

func TestTimeoutIsRetryable(t *testing.T) {
	srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	c := New(srv.URL, 20*time.Millisecond)

	_, err := c.FetchDescriptive(context.Background(), domain.OriginShop, "slow")
	assert.Equal(t, ErrorTimeout, CategoryOf(err))
	assert.True(t, IsRetryable(err))
}

func TestFetchAll(t *testing.T) {
	srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/shop/items/item-1":
			_ = json.NewEncoder(w).Encode(recordResponse{Name: "Rex"})
		case "/adoption/pets/ad-1":
			_ = json.NewEncoder(w).Encode(recordResponse{Name: "Rexie", BreedRef: "beagle"})
		default:
			http.NotFound(w, r)
		}
	})
	c := New(srv.URL, time.Second)

	out, err := c.FetchAll(context.Background(), models.OriginRefs{ShopItemID: "item-1", AdoptionPetID: "ad-1"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Rex", out[domain.OriginShop].Name)
	assert.Equal(t, "beagle", out[domain.OriginAdoption].BreedRef)

	_, err = c.FetchAll(context.Background(), models.OriginRefs{ShopItemID: "item-1", DirectPetID: "gone"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
