package kvrest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibeshift/dashboard/internal/kv"
)

// fakeREST is a minimal in-memory stand-in for the REST key-value API.
type fakeREST struct {
	mu    sync.Mutex
	data  map[string]string
	ttls  map[string]string
	token string
}

func (f *fakeREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+f.token {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	w.Header().Set("Content-Type", "application/json")
	switch parts[0] {
	case "get":
		if v, ok := f.data[parts[1]]; ok {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": v})
			return
		}
		_, _ = w.Write([]byte(`{"result":null}`))
	case "set":
		b, _ := io.ReadAll(r.Body)
		f.data[parts[1]] = string(b)
		f.ttls[parts[1]] = r.URL.Query().Get("EX")
		_, _ = w.Write([]byte(`{"result":"OK"}`))
	case "del":
		delete(f.data, parts[1])
		_, _ = w.Write([]byte(`{"result":1}`))
	case "ping":
		_, _ = w.Write([]byte(`{"result":"PONG"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"unknown command"}`))
	}
}

func newFake(t *testing.T) (*fakeREST, *Store) {
	t.Helper()
	f := &fakeREST{data: map[string]string{}, ttls: map[string]string{}, token: "tok"}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	s, err := New(srv.URL, "tok", time.Second)
	require.NoError(t, err)
	return f, s
}

func TestStore_SetGetDelete(t *testing.T) {
	f, s := newFake(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "newsletter-data", []byte(`{"a":1}`), 8*time.Hour))
	assert.Equal(t, "28800", f.ttls["newsletter-data"])

	got, err := s.Get(ctx, "newsletter-data")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got))

	require.NoError(t, s.Delete(ctx, "newsletter-data"))
	_, err = s.Get(ctx, "newsletter-data")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	assert.NoError(t, s.HealthPing(ctx))
}

func TestStore_Unauthorized(t *testing.T) {
	_, s := newFake(t)
	s.client.SetAuthToken("wrong")
	_, err := s.Get(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New("", "tok", time.Second)
	assert.Error(t, err)
}
