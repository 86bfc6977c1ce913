package s3fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eunmann/dist-s1-trigger/internal/logctx"
	"github.com/eunmann/dist-s1-trigger/pkg/fileutil"
	"github.com/eunmann/dist-s1-trigger/pkg/logging"
)

// ObjectDownloader downloads a single object to a local path.
type ObjectDownloader interface {
	DownloadToFile(ctx context.Context, bucket, key, destPath string) (*DownloadResult, error)
}

// Fetcher mirrors S3 objects into a local directory.
type Fetcher struct {
	downloader  ObjectDownloader
	dir         string
	concurrency int
}

// NewFetcher creates a Fetcher that stores objects under dir.
func NewFetcher(d ObjectDownloader, dir string, concurrency int) *Fetcher {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Fetcher{downloader: d, dir: dir, concurrency: concurrency}
}

// FetchAll downloads every uri concurrently and returns the local paths in
// input order. Objects already mirrored are reused unless refresh is set.
func (f *Fetcher) FetchAll(ctx context.Context, uris []string, refresh bool) ([]string, error) {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	paths := make([]string, len(uris))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	for i, uri := range uris {
		g.Go(func() error {
			bucket, key, err := ParseS3URI(uri)
			if err != nil {
				return fmt.Errorf("%s: %w", uri, err)
			}
			if key == "" {
				return fmt.Errorf("%s: missing object key", uri)
			}

			local := filepath.Join(f.dir, localName(bucket, key))
			paths[i] = local

			log := logctx.FromContext(ctx).With().Str("source", uri).Logger()
			if !refresh && fileutil.IsNonEmpty(local) {
				log.Debug().Str("path", local).Msg("reusing downloaded reference table")
				return nil
			}

			res, err := f.downloader.DownloadToFile(ctx, bucket, key, local)
			if err != nil {
				return fmt.Errorf("download %s: %w", uri, err)
			}

			var elapsed time.Duration
			if res != nil {
				elapsed = res.Duration
			}
			ev := logging.SourceFetched(log, elapsed).Str("uri", uri).Str("path", local)
			if res != nil {
				ev.Bytes("bytes", res.BytesDownloaded)
			}
			ev.Log("downloaded reference table")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}
