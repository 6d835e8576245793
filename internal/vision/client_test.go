package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	trackerr "github.com/claude/tulog/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAskSendsBearerAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var q Question
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		assert.Equal(t, "https://img.example/a.jpg", q.ImageURL)
		assert.Equal(t, "what is the serving size?", q.Question)
		w.Write([]byte(`{"answer":"2 capsules"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	body, err := c.Ask(context.Background(), Question{ImageURL: "https://img.example/a.jpg", Question: "what is the serving size?"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"answer":"2 capsules"}`, string(body))
}

func TestAskValidation(t *testing.T) {
	ctx := context.Background()

	_, err := NewClient("", "tok").Ask(ctx, Question{ImageURL: "u", Question: "q"})
	assert.True(t, trackerr.Is(err, trackerr.ErrConfiguration))

	_, err = NewClient("http://127.0.0.1:1", "").Ask(ctx, Question{ImageURL: "u", Question: "q"})
	assert.True(t, trackerr.Is(err, trackerr.ErrConfiguration))

	_, err = NewClient("http://127.0.0.1:1", "tok").Ask(ctx, Question{ImageURL: "u"})
	assert.True(t, trackerr.Is(err, trackerr.ErrInvalidRequest))
}

func TestAskUpstreamFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	c := NewClient(srv.URL, "tok")
	_, err := c.Ask(context.Background(), Question{ImageURL: "u", Question: "q"})
	assert.True(t, trackerr.Is(err, trackerr.ErrServerError))

	srv.Close()
	_, err = c.Ask(context.Background(), Question{ImageURL: "u", Question: "q"})
	assert.True(t, trackerr.Is(err, trackerr.ErrNetworkUnavailable))
}
