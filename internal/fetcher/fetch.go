package fetcher

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ulikunitz/xz"
	"go.uber.org/zap"

	"github.com/voyagen/channelfold/internal/models"
)

const defaultTimeout = 30 * time.Second

// FetchOptions configures a playlist download.
type FetchOptions struct {
	UserAgent string
	Timeout   time.Duration
	Client    *http.Client // optional; overrides Timeout
	Logger    *zap.Logger  // optional
}

// Fetch downloads the playlist at rawURL and returns its text. If the request
// fails and the host is not already local, the download is retried once
// against localhost with the same port, path and query. When the fallback
// fails too, the original error is returned.
func Fetch(ctx context.Context, rawURL string, opts FetchOptions) (string, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("fetcher")

	log.Info("downloading playlist", zap.String("url", rawURL))
	body, err := download(ctx, rawURL, opts)
	if err == nil {
		return body, nil
	}
	log.Warn("initial download failed", zap.Error(err))

	fallback, ok := localhostFallback(rawURL)
	if !ok {
		return "", err
	}
	log.Info("retrying with fallback URL", zap.String("url", fallback))
	body, fbErr := download(ctx, fallback, opts)
	if fbErr != nil {
		log.Error("fallback download failed", zap.Error(fbErr))
		return "", err
	}
	return body, nil
}

// FetchEntries downloads and parses the playlist at rawURL.
func FetchEntries(ctx context.Context, rawURL string, opts FetchOptions) ([]models.RawStreamEntry, error) {
	text, err := Fetch(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}
	return Parse(text), nil
}

func download(ctx context.Context, rawURL string, opts FetchOptions) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("NewRequest: %w", err)
	}
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("Do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	r, err := Decompress(resp.Body)
	if err != nil {
		return "", err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("ReadAll: %w", err)
	}
	return string(body), nil
}

// localhostFallback rewrites the host of rawURL to localhost. It reports false
// when the URL is unparsable or already points at the local machine.
func localhostFallback(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", false
	}
	host := u.Hostname()
	if host == "localhost" || host == "127.0.0.1" {
		return "", false
	}
	if port := u.Port(); port != "" {
		u.Host = "localhost:" + port
	} else {
		u.Host = "localhost"
	}
	return u.String(), true
}

// Decompress wraps r in a gzip, bzip2 or xz reader when the stream starts
// with the matching magic bytes; plain text is returned unchanged.
func Decompress(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(6)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("peeking header: %w", err)
	}

	switch {
	case bytes.HasPrefix(header, []byte{0x1f, 0x8b}):
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return gzr, nil
	case bytes.HasPrefix(header, []byte("BZh")):
		return bzip2.NewReader(br), nil
	case bytes.HasPrefix(header, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}):
		xzr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		return xzr, nil
	}
	return br, nil
}
