package labels

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	trackerr "github.com/claude/tulog/internal/errors"
	"github.com/claude/tulog/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectShape(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Shape
	}{
		{"hits", `{"hits":[],"stats":{"count":0}}`, ShapeHits},
		{"products", `{"products":[{"name":"x"}]}`, ShapeProducts},
		{"labels", `{"labels":[]}`, ShapeLabels},
		{"single", `{"id":12,"fullName":"Fish Oil"}`, ShapeSingle},
		{"unknown object", `{"foo":1}`, ShapeUnknown},
		{"not json", `<html>`, ShapeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectShape([]byte(tt.raw)))
		})
	}
}

func TestNormalizeEachShape(t *testing.T) {
	hits := `{"hits":[{"_id":"1001","_source":{"fullName":"Magnesium Glycinate","brandName":"Acme","upcSku":"0123",
		"ingredientRows":[{"name":"Magnesium","quantity":[{"quantity":200,"unit":"mg"}]}]}}],"stats":{"count":1}}`
	got, err := Normalize([]byte(hits))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Label{
		ID: "1001", Name: "Magnesium Glycinate", Brand: "Acme", UPC: "0123",
		Ingredients: []Ingredient{{Name: "Magnesium", Quantity: 200, Unit: "mg"}},
	}, got[0])

	products := `{"products":[{"id":7,"productName":"Creatine","brand":"B"},{"dsldId":"8","name":"Zinc"}]}`
	got, err = Normalize([]byte(products))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "7", got[0].ID)
	assert.Equal(t, "Creatine", got[0].Name)
	assert.Equal(t, "B", got[0].Brand)
	assert.Equal(t, "8", got[1].ID)
	assert.Equal(t, "Zinc", got[1].Name)

	got, err = Normalize([]byte(`{"labels":[]}`))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = Normalize([]byte(`{"id":42,"fullName":"Vitamin D3","brandName":"Sun"}`))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "42", got[0].ID)

	_, err = Normalize([]byte(`{"whatever":true}`))
	assert.Error(t, err)

	_, err = Normalize([]byte(`{"products":"nope"}`))
	assert.Error(t, err)
}

func TestClientMissingKeyIsConfigurationError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", retry.Policy{Attempts: 1})
	_, err := c.Search(context.Background(), "fish oil")
	assert.True(t, trackerr.Is(err, trackerr.ErrConfiguration))
	assert.Equal(t, int32(0), calls.Load(), "no network call without a key")
}

func TestClientForwardsKeyAndReturnsBodyVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search-filter":
			assert.Equal(t, "fish oil", r.URL.Query().Get("q"))
		case "/label/1001":
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		assert.Equal(t, "secret", r.URL.Query().Get("api_key"))
		w.Write([]byte(`{"hits":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", retry.Policy{Attempts: 1})
	body, err := c.Search(context.Background(), "fish oil")
	require.NoError(t, err)
	assert.JSONEq(t, `{"hits":[]}`, string(body))

	body, err = c.Label(context.Background(), "1001")
	require.NoError(t, err)
	assert.Equal(t, `{"hits":[]}`, string(body))
}

func TestClientClassifiesUpstreamFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		switch r.URL.Query().Get("q") {
		case "flaky":
			if n == 1 {
				http.Error(w, "boom", http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{"labels":[{"id":"1","name":"ok"}]}`))
		case "bad":
			http.Error(w, "bad query", http.StatusBadRequest)
		case "auth":
			http.Error(w, "no", http.StatusForbidden)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", retry.Policy{Attempts: 3})
	ctx := context.Background()

	got, err := c.SearchLabels(ctx, "flaky")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int32(2), calls.Load())

	calls.Store(0)
	_, err = c.Search(ctx, "bad")
	assert.True(t, trackerr.Is(err, trackerr.ErrClientError))
	assert.Equal(t, int32(1), calls.Load(), "client errors are not retried")

	_, err = c.Search(ctx, "auth")
	assert.True(t, trackerr.Is(err, trackerr.ErrAuthExpired))

	srv.Close()
	_, err = c.Search(ctx, "flaky")
	assert.True(t, trackerr.Is(err, trackerr.ErrNetworkUnavailable))
}
