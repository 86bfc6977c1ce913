package s3fetch

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/eunmann/dist-s1-trigger/pkg/fileutil"
)

// DownloaderConfig sizes ranged GETs for one reference table.
type DownloaderConfig struct {
	// Concurrency is the number of parts fetched in parallel.
	Concurrency int
	// PartSize is the byte length of each ranged GET.
	PartSize int64
}

// DefaultDownloaderConfig suits burst tables of a few hundred megabytes.
func DefaultDownloaderConfig() DownloaderConfig {
	return DownloaderConfig{
		Concurrency: 8,
		PartSize:    8 << 20,
	}
}

// Downloader fetches whole objects to local files with the S3 transfer
// manager.
type Downloader struct {
	manager *manager.Downloader
}

// NewDownloader creates a Downloader. Non-positive config fields take their
// defaults.
func NewDownloader(c *Client, cfg DownloaderConfig) *Downloader {
	def := DefaultDownloaderConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.PartSize <= 0 {
		cfg.PartSize = def.PartSize
	}

	return &Downloader{
		manager: manager.NewDownloader(c.s3Client, func(d *manager.Downloader) {
			d.Concurrency = cfg.Concurrency
			d.PartSize = cfg.PartSize
		}),
	}
}

// DownloadResult reports the size and duration of one download.
type DownloadResult struct {
	BytesDownloaded int64
	Duration        time.Duration
}

// DownloadToFile writes s3://bucket/key to destPath. destPath is replaced
// only after the whole object arrived.
func (d *Downloader) DownloadToFile(ctx context.Context, bucket, key, destPath string) (*DownloadResult, error) {
	start := time.Now()

	var n int64
	err := fileutil.WriteAtomic(destPath, func(f *os.File) error {
		var err error
		n, err = d.manager.Download(ctx, f, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return fmt.Errorf("download s3://%s/%s: %w", bucket, key, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &DownloadResult{BytesDownloaded: n, Duration: time.Since(start)}, nil
}
