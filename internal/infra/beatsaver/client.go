// Package beatsaver provides a client for the BeatSaver map API.
package beatsaver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ErrNotFound is returned when BeatSaver does not know the hash.
var ErrNotFound = errors.New("map not found on BeatSaver")

// Client is a BeatSaver API client.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// Cache for map keys by content hash; "" marks an unknown hash
	keyCache map[string]string
	cacheMu  sync.RWMutex
	flight   singleflight.Group
}

// Config represents BeatSaver client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// MapDetail is the part of the map detail response obsflow uses.
type MapDetail struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Metadata struct {
		SongName        string  `json:"songName"`
		SongSubName     string  `json:"songSubName"`
		SongAuthorName  string  `json:"songAuthorName"`
		LevelAuthorName string  `json:"levelAuthorName"`
		BPM             float64 `json:"bpm"`
		Duration        int     `json:"duration"`
	} `json:"metadata"`
}

// New creates a new BeatSaver client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("beatsaver base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		keyCache:   make(map[string]string),
	}, nil
}

// GetMapByHash retrieves the map with the given content hash.
// Reference: https://api.beatsaver.com/docs/#/Maps/get_maps_hash__hash_
func (c *Client) GetMapByHash(ctx context.Context, hash string) (*MapDetail, error) {
	if hash == "" {
		return nil, errors.New("hash is required")
	}

	reqURL := c.baseURL + "/maps/hash/" + strings.ToLower(hash)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.Wrapf(ErrNotFound, "hash=%s", hash)
	case resp.StatusCode != http.StatusOK:
		return nil, errors.Newf("beatsaver API returned status %d: %s", resp.StatusCode, string(body))
	}

	var detail MapDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, errors.Wrap(err, "failed to parse response")
	}
	return &detail, nil
}

// GetKey returns the BeatSaver key of the map with the given content
// hash, or "" when the map is unknown. Results are cached; concurrent
// lookups for the same hash share one request.
func (c *Client) GetKey(ctx context.Context, hash string) (string, error) {
	hash = strings.ToLower(hash)

	c.cacheMu.RLock()
	key, ok := c.keyCache[hash]
	c.cacheMu.RUnlock()
	if ok {
		zlog.Debug().Msgf("beatsaver cache hit: hash=%s, key=%s", hash, key)
		return key, nil
	}

	v, err, _ := c.flight.Do(hash, func() (any, error) {
		detail, err := c.GetMapByHash(ctx, hash)
		if errors.Is(err, ErrNotFound) {
			c.store(hash, "")
			return "", nil
		}
		if err != nil {
			return "", err
		}
		c.store(hash, detail.ID)
		return detail.ID, nil
	})
	if err != nil {
		zlog.Warn().Err(err).Msgf("beatsaver lookup failed: hash=%s", hash)
		return "", err
	}
	return v.(string), nil
}

func (c *Client) store(hash, key string) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.keyCache[hash] = key
}

// ClearCache clears all cached keys.
func (c *Client) ClearCache() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.keyCache = make(map[string]string)
}
