package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voyagen/channelfold/internal/cache"
	"github.com/voyagen/channelfold/internal/catalog"
	"github.com/voyagen/channelfold/internal/config"
	"github.com/voyagen/channelfold/internal/consolidate"
	"github.com/voyagen/channelfold/internal/models"
	"github.com/voyagen/channelfold/internal/service"
	"github.com/voyagen/channelfold/internal/store"
)

const playlist = `#EXTM3U
#EXTINF:-1 tvg-id="espn.us" group-title="Sports",ESPN HD
http://example.com/espn-hd
#EXTINF:-1 tvg-id="espn.us",ESPN 4K
http://example.com/espn-4k
#EXTINF:-1 group-title="News",CNN [US] 1A2B -->junk
http://example.com/cnn
`

func sequentialIDs() consolidate.IDFunc {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

type testEnv struct {
	srv      *Server
	store    *store.Memory
	playlist *httptest.Server
}

func newEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()
	pl := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, playlist)
	}))
	t.Cleanup(pl.Close)

	s := store.NewMemory()
	cfg := &config.Config{ServerPort: "0", UserAgent: "test", Timeout: 5 * time.Second}
	cfg.Catalog.DefaultGroup = models.DefaultGroupName
	d := Deps{Store: s, Config: cfg, Logger: zap.NewNop(), NewID: sequentialIDs()}
	if mutate != nil {
		mutate(&d)
	}
	return &testEnv{srv: New(d), store: s, playlist: pl}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if _, ok := body.(string); !ok && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *testEnv) addSource(t *testing.T) service.IngestResult {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/sources", map[string]string{"name": "main", "url": e.playlist.URL})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[service.IngestResult](t, rec)
}

func TestHealth(t *testing.T) {
	env := newEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPreview(t *testing.T) {
	env := newEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/preview", playlist)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[struct {
		Channels []models.ChannelAggregate `json:"channels"`
		Total    int                       `json:"total"`
	}](t, rec)
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, "espn.us", got.Channels[0].Name)
	assert.Len(t, got.Channels[0].Streams, 2)

	rec = env.do(t, http.MethodPost, "/api/preview", map[string]string{"url": env.playlist.URL})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/preview", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/preview", map[string]string{"url": "ftp://nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSources(t *testing.T) {
	env := newEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/sources", map[string]string{"url": "not a url"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	res := env.addSource(t)
	assert.Equal(t, 3, res.Entries)
	assert.Equal(t, 2, res.Channels)

	rec = env.do(t, http.MethodGet, "/api/sources", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Source](t, rec), 1)

	path := fmt.Sprintf("/api/sources/%d", res.SourceID)
	rec = env.do(t, http.MethodPatch, path, map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[models.Source](t, rec).Enabled)

	rec = env.do(t, http.MethodPost, path+"/refresh", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, decode[APIError](t, rec).Status)

	rec = env.do(t, http.MethodGet, "/api/sources/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChannels_ReviewFlow(t *testing.T) {
	env := newEnv(t, nil)
	res := env.addSource(t)
	src := fmt.Sprintf("/api/sources/%d", res.SourceID)

	rec := env.do(t, http.MethodPost, src+"/cleanup-names", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"renamed": 1}, decode[map[string]int](t, rec))

	rec = env.do(t, http.MethodGet, "/api/channels?search=cnn", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Channels []models.ChannelAggregate `json:"channels"`
		Total    int                       `json:"total"`
		Limit    int                       `json:"limit"`
	}](t, rec)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, 50, list.Limit)
	cnn := list.Channels[0]
	assert.Equal(t, "CNN", cnn.Name)

	rec = env.do(t, http.MethodPatch, "/api/channels/"+cnn.ID, map[string]any{"name": "CNN International", "selected": true})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[models.ChannelAggregate](t, rec)
	assert.Equal(t, "CNN International", updated.Name)
	assert.True(t, updated.Selected)

	rec = env.do(t, http.MethodPatch, "/api/channels/"+cnn.ID, map[string]any{"name": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodPatch, "/api/channels/missing", map[string]any{"selected": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, src+"/playlist.m3u", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/x-mpegurl", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), ",CNN International\nhttp://example.com/cnn")
	assert.NotContains(t, rec.Body.String(), "espn")

	rec = env.do(t, http.MethodPost, "/api/channels/selection", map[string]any{"ids": []string{cnn.ID}, "selected": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int64{"updated": 1}, decode[map[string]int64](t, rec))

	rec = env.do(t, http.MethodGet, "/api/channels?selected=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearch_NotConfigured(t *testing.T) {
	env := newEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/channels/search?q=sports", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, texts []string, _ string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, s := range texts {
		if strings.Contains(strings.ToLower(s), "cnn") {
			out[i] = []float32{0, 1}
		} else {
			out[i] = []float32{1, 0}
		}
	}
	return out, nil
}

func (e stubEmbedder) EmbedBatch(ctx context.Context, texts []string, inputType string, _ int) ([][]float32, error) {
	return e.Embed(ctx, texts, inputType)
}

func TestSearch(t *testing.T) {
	env := newEnv(t, func(d *Deps) { d.Embedder = stubEmbedder{} })
	env.addSource(t)

	rec := env.do(t, http.MethodGet, "/api/channels/search?q=cnn+news", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[struct {
		Channels []store.SemanticResult `json:"channels"`
	}](t, rec)
	require.Len(t, got.Channels, 2)
	assert.Contains(t, got.Channels[0].Name, "CNN")

	rec = env.do(t, http.MethodGet, "/api/channels/search", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// recordingCatalog accepts everything and remembers created channel names.
type recordingCatalog struct {
	next     int64
	channels []string
}

func (c *recordingCatalog) id() int64 {
	c.next++
	return c.next
}

func (c *recordingCatalog) ListProfiles(context.Context) ([]catalog.Profile, error) { return nil, nil }

func (c *recordingCatalog) CreateProfile(_ context.Context, n string) (catalog.Profile, error) {
	return catalog.Profile{ID: c.id(), Name: n}, nil
}

func (c *recordingCatalog) CreateStream(_ context.Context, u, n string) (catalog.Stream, error) {
	return catalog.Stream{ID: c.id(), Name: n, URL: u}, nil
}

func (c *recordingCatalog) CreateLogo(_ context.Context, n, u string) (catalog.Logo, error) {
	return catalog.Logo{ID: c.id(), Name: n, URL: u}, nil
}

func (c *recordingCatalog) ListGroups(context.Context) ([]catalog.Group, error) { return nil, nil }

func (c *recordingCatalog) CreateGroup(_ context.Context, n string) (catalog.Group, error) {
	return catalog.Group{ID: c.id(), Name: n}, nil
}

func (c *recordingCatalog) CreateChannel(_ context.Context, req catalog.ChannelRequest) (catalog.Channel, error) {
	c.channels = append(c.channels, req.Name)
	return catalog.Channel{ID: c.id(), Name: req.Name}, nil
}

func (c *recordingCatalog) AssignToProfile(context.Context, int64, int64) error { return nil }

func (c *recordingCatalog) MatchEPG(context.Context, []int64) error { return nil }

func TestSync_Inline(t *testing.T) {
	cat := &recordingCatalog{}
	env := newEnv(t, func(d *Deps) {
		d.Connect = func(context.Context) (service.Catalog, error) { return cat, nil }
	})
	res := env.addSource(t)
	path := fmt.Sprintf("/api/sources/%d/sync", res.SourceID)

	rec := env.do(t, http.MethodPost, path, map[string]any{"profile_id": 1})
	assert.Equal(t, http.StatusConflict, rec.Code, "nothing selected yet")

	channels, _ := env.store.ListChannelsBySource(context.Background(), res.SourceID)
	_, err := env.store.SetChannelsSelected(context.Background(), []string{channels[0].ID}, true)
	require.NoError(t, err)

	rec = env.do(t, http.MethodPost, path, map[string]any{"profile_id": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[service.SyncReport](t, rec)
	assert.Equal(t, 1, report.Created)
	assert.True(t, report.EPGMatched)
	assert.Equal(t, []string{"espn.us"}, cat.channels)

	rec = env.do(t, http.MethodPost, path, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSync_NoCatalog(t *testing.T) {
	env := newEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/sources/1/sync", map[string]any{"profile_id": 1})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSync_Queued(t *testing.T) {
	mr := miniredis.RunT(t)
	r := cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = r.Close() })

	env := newEnv(t, func(d *Deps) {
		d.Redis = r
		d.Connect = func(context.Context) (service.Catalog, error) { return &recordingCatalog{}, nil }
	})
	res := env.addSource(t)

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/sources/%d/sync", res.SourceID), map[string]any{"profile_id": 3})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	status := decode[service.JobStatus](t, rec)
	assert.Equal(t, service.JobQueued, status.State)
	assert.Equal(t, "/api/jobs/"+status.Job.ID, rec.Header().Get("Location"))

	n, err := cache.QueueLen(context.Background(), r, cache.SyncQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rec = env.do(t, http.MethodGet, "/api/jobs/"+status.Job.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(3), decode[service.JobStatus](t, rec).Job.ProfileID)

	rec = env.do(t, http.MethodGet, "/api/jobs/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/health", nil)
	assert.JSONEq(t, `{"status":"ok","redis":"ok"}`, rec.Body.String())
}

func TestDocs(t *testing.T) {
	env := newEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/docs/openapi.yaml", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "openapi:")

	rec = env.do(t, http.MethodGet, "/api/docs", nil)
	assert.Contains(t, rec.Body.String(), "swagger-ui")
}
