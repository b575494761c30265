package blob

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSupabase struct {
	mu      sync.Mutex
	buckets []string
	objects map[string][]byte
	creates int
}

func newFakeSupabase(t *testing.T, buckets ...string) (*fakeSupabase, *SupabaseStore) {
	t.Helper()
	f := &fakeSupabase{buckets: buckets, objects: map[string][]byte{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	store, err := NewSupabaseStore(srv.URL+"/", "service-key", WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return f, store
}

func (f *fakeSupabase) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer service-key" || r.Header.Get("apikey") != "service-key" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	const objectPrefix = "/storage/v1/object/"
	switch {
	case r.URL.Path == "/storage/v1/bucket" && r.Method == http.MethodGet:
		list := make([]map[string]string, 0, len(f.buckets))
		for _, b := range f.buckets {
			list = append(list, map[string]string{"id": b, "name": b})
		}
		_ = json.NewEncoder(w).Encode(list)
	case r.URL.Path == "/storage/v1/bucket" && r.Method == http.MethodPost:
		var body struct {
			Name   string `json:"name"`
			Public bool   `json:"public"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if !body.Public {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.creates++
		f.buckets = append(f.buckets, body.Name)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPost && len(r.URL.Path) > len(objectPrefix):
		if r.Header.Get("x-upsert") != "true" || r.Header.Get("Content-Type") != "image/png" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path[len(objectPrefix):]] = data
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && len(r.URL.Path) > len(objectPrefix+"authenticated/"):
		data, ok := f.objects[r.URL.Path[len(objectPrefix+"authenticated/"):]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not_found"}`))
			return
		}
		_, _ = w.Write(data)
	default:
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("unexpected route"))
	}
}

func TestNewSupabaseStore_RequiresConfig(t *testing.T) {
	_, err := NewSupabaseStore("", "key")
	assert.Error(t, err)

	_, err = NewSupabaseStore("https://project.supabase.co", " ")
	assert.Error(t, err)
}

func TestSupabaseStore_EnsureBucket(t *testing.T) {
	f, store := newFakeSupabase(t, "original-images")

	require.NoError(t, store.EnsureBucket(context.Background(), "original-images"))
	assert.Equal(t, 0, f.creates)

	require.NoError(t, store.EnsureBucket(context.Background(), "colorized-images"))
	assert.Equal(t, 1, f.creates)
	assert.Contains(t, f.buckets, "colorized-images")
}

func TestSupabaseStore_UploadDownload(t *testing.T) {
	_, store := newFakeSupabase(t)
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "original-images", "user-1/abc.png", []byte("png-bytes"), "image/png"))

	data, err := store.Download(ctx, "original-images", "user-1/abc.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)

	_, err = store.Download(ctx, "original-images", "user-1/missing.png")
	assert.True(t, errors.Is(err, ErrObjectNotFound))
}

func TestSupabaseStore_UploadStatusError(t *testing.T) {
	_, store := newFakeSupabase(t)

	err := store.Upload(context.Background(), "original-images", "user-1/abc.png", []byte("x"), "image/jpeg")
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
}

func TestSupabaseStore_RejectsTraversal(t *testing.T) {
	_, store := newFakeSupabase(t)

	err := store.Upload(context.Background(), "original-images", "../secrets.png", []byte("x"), "image/png")
	assert.Error(t, err)
}

func TestSupabaseStore_PublicURL(t *testing.T) {
	store, err := NewSupabaseStore("https://project.supabase.co/", "key")
	require.NoError(t, err)

	assert.Equal(t,
		"https://project.supabase.co/storage/v1/object/public/colorized-images/user%201/abc.png",
		store.PublicURL("colorized-images", "user 1/abc.png"),
	)
}
