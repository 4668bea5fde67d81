package beatsaver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHash = "0123456789abcdef0123456789abcdef01234567"

func TestGetMapByHash(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/maps/hash/"+testHash, r.URL.Path)

		response := `{
			"id": "1a2b",
			"name": "Song - Mapper",
			"metadata": {
				"songName": "Song",
				"songAuthorName": "Artist",
				"levelAuthorName": "Mapper",
				"bpm": 128,
				"duration": 210
			}
		}`
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, response)
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL + "/"})
	require.NoError(t, err)

	detail, err := client.GetMapByHash(context.Background(), "0123456789ABCDEF0123456789ABCDEF01234567")
	require.NoError(t, err)
	assert.Equal(t, "1a2b", detail.ID)
	assert.Equal(t, "Song", detail.Metadata.SongName)
	assert.Equal(t, "Mapper", detail.Metadata.LevelAuthorName)
	assert.InDelta(t, 128.0, detail.Metadata.BPM, 0.001)
}

func TestGetKey_Cached(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"id": "ff9"}`)
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	ctx := context.Background()
	key, err := client.GetKey(ctx, testHash)
	require.NoError(t, err)
	assert.Equal(t, "ff9", key)

	key, err = client.GetKey(ctx, testHash)
	require.NoError(t, err)
	assert.Equal(t, "ff9", key)
	assert.Equal(t, int32(1), calls.Load())

	client.ClearCache()
	_, err = client.GetKey(ctx, testHash)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetKey_NotFoundIsCached(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"Not Found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		key, err := client.GetKey(context.Background(), testHash)
		require.NoError(t, err)
		assert.Empty(t, key)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetKey_ServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.GetKey(context.Background(), testHash)
	assert.Error(t, err)
	_, err = client.GetKey(context.Background(), testHash)
	assert.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
