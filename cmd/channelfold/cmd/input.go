package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/voyagen/channelfold/internal/config"
	"github.com/voyagen/channelfold/internal/fetcher"
	"github.com/voyagen/channelfold/internal/models"
)

// readEntries parses the playlist named by arg: an http(s) URL, "-" for
// stdin, or a file path. Files may be gzip, bzip2 or xz compressed.
func readEntries(ctx context.Context, arg string, stdin io.Reader, cfg *config.Config, log *zap.Logger) ([]models.RawStreamEntry, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return fetcher.FetchEntries(ctx, arg, fetcher.FetchOptions{
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.Timeout,
			Logger:    log,
		})
	}

	var r io.Reader = stdin
	if arg != "-" {
		f, err := os.Open(arg)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	dr, err := fetcher.Decompress(r)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", arg, err)
	}
	return fetcher.ParseReader(dr)
}
