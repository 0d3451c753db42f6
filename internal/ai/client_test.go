package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k3y", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "m1", req.Model)
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"` + "```json\\n{\\\"a\\\":1}\\n```" + `"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/v1/", "k3y")
	out, err := c.Complete(context.Background(), "m1", []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)
}

func TestClient_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Complete(context.Background(), "m1", nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.Status)
	assert.Equal(t, "slow down", se.Message)
}

func TestClient_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Complete(context.Background(), "m1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestStripFence(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                   `{"a":1}`,
		"```json\n{\"a\":1}\n```":   `{"a":1}`,
		"```\n{\"a\":1}\n```":       `{"a":1}`,
		"  \n```json{\"a\":1}```  ": `{"a":1}`,
	}
	for in, want := range cases {
		assert.Equal(t, want, StripFence(in), "input %q", in)
	}
}
