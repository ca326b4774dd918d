package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/channelfold/internal/cache"
	"github.com/voyagen/channelfold/internal/consolidate"
	"github.com/voyagen/channelfold/internal/fetcher"
	"github.com/voyagen/channelfold/internal/store"
)

const playlist = `#EXTM3U
#EXTINF:-1 tvg-id="espn.us" group-title="Sports",ESPN HD
http://example.com/espn-hd
#EXTINF:-1 tvg-id="espn.us" tvg-logo="http://logo/espn.png",ESPN 4K
http://example.com/espn-4k
#EXTINF:-1 group-title="News",CNN FHD
http://example.com/cnn
#EXTINF:-1 group-title="News",CNN
http://example.com/cnn-sd
`

func sequentialIDs() consolidate.IDFunc {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func playlistServer(t *testing.T, body *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(*body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fetcherDefaults() fetcher.FetchOptions {
	return fetcher.FetchOptions{Timeout: 5 * time.Second}
}

type fakeEmbedder struct{ calls int }

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string, _ string, _ int) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, s := range texts {
		out[i] = []float32{float32(len(s)), 1}
	}
	return out, nil
}

type lockedLocker struct{}

func (lockedLocker) TryLock(context.Context, string, time.Duration) (func(), error) {
	return nil, cache.ErrLocked
}

func TestIngest_ConsolidatesAndPersists(t *testing.T) {
	ctx := context.Background()
	body := playlist
	srv := playlistServer(t, &body)
	s := store.NewMemory()
	emb := &fakeEmbedder{}

	res, err := Ingest(ctx, s, srv.URL, IngestOptions{SourceName: "main", Embedder: emb, NewID: sequentialIDs()})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Entries)
	assert.Equal(t, 2, res.Channels)
	assert.Equal(t, 4, res.Streams)
	assert.Equal(t, 2, res.Embedded)
	assert.Equal(t, 1, emb.calls)

	channels, err := s.ListChannelsBySource(ctx, res.SourceID)
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, "espn.us", channels[0].Name)
	assert.Equal(t, "http://logo/espn.png", channels[0].Logo)
	assert.Equal(t, "CNN", channels[1].Name)

	src, err := s.GetSourceByID(ctx, res.SourceID)
	require.NoError(t, err)
	assert.NotNil(t, src.LastUpdated)
}

func TestIngest_RefreshKeepsUserEdits(t *testing.T) {
	ctx := context.Background()
	body := playlist
	srv := playlistServer(t, &body)
	s := store.NewMemory()

	first, err := Ingest(ctx, s, srv.URL, IngestOptions{SourceName: "main", NewID: sequentialIDs()})
	require.NoError(t, err)
	channels, _ := s.ListChannelsBySource(ctx, first.SourceID)
	espnID := channels[0].ID
	require.NoError(t, RenameChannel(ctx, s, espnID, "ESPN"))
	_, err = SelectChannels(ctx, s, []string{espnID}, true)
	require.NoError(t, err)

	// CNN disappears upstream.
	body = playlist[:len("#EXTM3U\n")] + `#EXTINF:-1 tvg-id="espn.us",ESPN 720p
http://example.com/espn-720
`
	second, err := Refresh(ctx, s, first.SourceID, IngestOptions{NewID: sequentialIDs()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), second.Removed)

	channels, _ = s.ListChannelsBySource(ctx, first.SourceID)
	require.Len(t, channels, 1)
	assert.Equal(t, espnID, channels[0].ID)
	assert.Equal(t, "ESPN", channels[0].Name)
	assert.True(t, channels[0].Selected)
	require.Len(t, channels[0].Streams, 1)
	assert.Equal(t, "720p", channels[0].Streams[0].Resolution)
}

func TestIngest_Errors(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	_, err := Ingest(ctx, s, "", IngestOptions{})
	assert.Error(t, err)

	body := playlist
	srv := playlistServer(t, &body)
	_, err = Ingest(ctx, s, srv.URL, IngestOptions{
		Locker:  lockedLocker{},
		LockKey: cache.SourceLockKey,
	})
	assert.ErrorIs(t, err, cache.ErrLocked)

	_, err = Refresh(ctx, s, 999, IngestOptions{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPreview(t *testing.T) {
	ctx := context.Background()
	channels, err := Preview(ctx, PreviewInput{Text: playlist}, fetcherDefaults(), sequentialIDs())
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, "id-1", channels[0].ID)

	_, err = Preview(ctx, PreviewInput{Text: "  "}, fetcherDefaults(), nil)
	assert.True(t, errors.Is(err, ErrEmptyPreview))

	body := playlist
	srv := playlistServer(t, &body)
	channels, err = Preview(ctx, PreviewInput{URL: srv.URL}, fetcherDefaults(), nil)
	require.NoError(t, err)
	assert.Len(t, channels, 2)
}

func TestCleanupNames(t *testing.T) {
	ctx := context.Background()
	body := `#EXTM3U
#EXTINF:-1,Movies 1A2B -->provider junk
http://example.com/1
#EXTINF:-1,Plain
http://example.com/2
`
	srv := playlistServer(t, &body)
	s := store.NewMemory()
	res, err := Ingest(ctx, s, srv.URL, IngestOptions{NewID: sequentialIDs()})
	require.NoError(t, err)

	n, err := CleanupNames(ctx, s, res.SourceID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	channels, _ := s.ListChannelsBySource(ctx, res.SourceID)
	assert.Equal(t, "Movies", channels[0].Name)

	_, err = CleanupNames(ctx, s, 999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRenameChannel_RejectsBlank(t *testing.T) {
	assert.Error(t, RenameChannel(context.Background(), store.NewMemory(), "x", "   "))
}
