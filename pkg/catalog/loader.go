package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/eunmann/dist-s1-trigger/internal/logctx"
	"github.com/eunmann/dist-s1-trigger/pkg/fileutil"
	"github.com/eunmann/dist-s1-trigger/pkg/format"
	"github.com/eunmann/dist-s1-trigger/pkg/refdb"
	"github.com/eunmann/dist-s1-trigger/pkg/s3fetch"
)

const (
	cachePrefix   = "burstdb-"
	cacheExt      = ".ds1c"
	lockName      = "burstdb.lock"
	sourcesSubdir = "sources"
)

// Loader loads catalogs from reference tables, keeping a content-addressed
// binary cache of the derived indexes.
type Loader struct {
	// CacheDir holds the catalog cache and mirrored S3 sources. Empty
	// disables caching; S3 sources then need a Downloader and go to a temp dir.
	CacheDir string

	// Downloader fetches s3:// sources. Nil rejects S3 sources.
	Downloader s3fetch.ObjectDownloader

	// FetchConcurrency bounds concurrent source downloads.
	FetchConcurrency int
}

// LoadResult describes how a catalog was obtained.
type LoadResult struct {
	Catalog   *Catalog
	Digest    string
	CachePath string
	FromCache bool
}

// Load returns the catalog for the given sources, reusing the cache when
// it holds a snapshot of identical source content. Multiple sources are
// merged as parts of one table.
func (l *Loader) Load(ctx context.Context, sources ...string) (*Catalog, error) {
	res, err := l.load(ctx, sources, false)
	if err != nil {
		return nil, err
	}
	return res.Catalog, nil
}

// Refresh re-downloads remote sources and rebuilds the cache.
func (l *Loader) Refresh(ctx context.Context, sources ...string) (*Catalog, error) {
	res, err := l.load(ctx, sources, true)
	if err != nil {
		return nil, err
	}
	return res.Catalog, nil
}

// LoadDetailed is Load (or Refresh when refresh is set) returning cache details.
func (l *Loader) LoadDetailed(ctx context.Context, refresh bool, sources ...string) (*LoadResult, error) {
	return l.load(ctx, sources, refresh)
}

func (l *Loader) load(ctx context.Context, sources []string, refresh bool) (*LoadResult, error) {
	if len(sources) == 0 {
		return nil, &DataSourceError{Source: "<none>", Err: errors.New("no reference table configured")}
	}

	start := time.Now()
	ctx = logctx.WithStr(ctx, "phase", "load_catalog")
	log := logctx.FromContext(ctx)

	if l.CacheDir != "" {
		lock, err := fileutil.AcquireLock(filepath.Join(l.CacheDir, lockName))
		if err != nil {
			return nil, fmt.Errorf("lock catalog cache: %w", err)
		}
		defer lock.Release()

		if _, err := fileutil.RemovePartial(l.CacheDir); err != nil {
			log.Warn().Err(err).Msg("removing partial cache files failed")
		}
	}

	paths, cleanup, err := l.resolve(ctx, sources, refresh)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	digest, err := digestFiles(paths)
	if err != nil {
		return nil, err
	}
	res := &LoadResult{Digest: hex.EncodeToString(digest[:])}

	if l.CacheDir != "" {
		res.CachePath = filepath.Join(l.CacheDir, cachePrefix+res.Digest[:16]+cacheExt)
		if !refresh {
			cat, err := readCache(res.CachePath, digest)
			switch {
			case err == nil:
				res.Catalog = cat
				res.FromCache = true
				logCatalog(log, "catalog loaded from cache", cat, time.Since(start), res.CachePath)
				return res, nil
			case errors.Is(err, os.ErrNotExist):
			default:
				log.Warn().Err(err).Str("path", res.CachePath).Msg("ignoring unusable catalog cache")
			}
		}
	}

	var rows []refdb.Row
	for i, p := range paths {
		part, err := refdb.ReadFile(p)
		if err != nil {
			return nil, &DataSourceError{Source: sources[i], Err: err}
		}
		rows = append(rows, part...)
	}

	cat, err := Build(rows)
	if err != nil {
		return nil, &DataSourceError{Source: sources[0], Err: err}
	}
	res.Catalog = cat

	if res.CachePath != "" {
		if err := writeCache(res.CachePath, cat.Snapshot(digest)); err != nil {
			// The catalog is usable without a cache.
			log.Warn().Err(err).Str("path", res.CachePath).Msg("failed to write catalog cache")
		}
	}

	logCatalog(log, "catalog built", cat, time.Since(start), res.CachePath)
	return res, nil
}

// resolve maps sources to local files, mirroring S3 objects first. The
// returned cleanup removes downloads that are not kept in the cache dir.
func (l *Loader) resolve(ctx context.Context, sources []string, refresh bool) ([]string, func(), error) {
	paths := make([]string, len(sources))
	noop := func() {}

	var (
		remote    []string
		remoteIdx []int
	)
	for i, src := range sources {
		if s3fetch.IsS3URI(src) {
			remote = append(remote, src)
			remoteIdx = append(remoteIdx, i)
			continue
		}
		if _, err := os.Stat(src); err != nil {
			return nil, nil, &DataSourceError{Source: src, Err: err}
		}
		paths[i] = src
	}

	if len(remote) == 0 {
		return paths, noop, nil
	}
	if l.Downloader == nil {
		return nil, nil, &DataSourceError{Source: remote[0], Err: errors.New("no S3 downloader configured")}
	}

	dir := filepath.Join(l.CacheDir, sourcesSubdir)
	cleanup := noop
	if l.CacheDir == "" {
		tmp, err := os.MkdirTemp("", "dist-s1-burstdb-*")
		if err != nil {
			return nil, nil, fmt.Errorf("create download dir: %w", err)
		}
		dir = tmp
		cleanup = func() { os.RemoveAll(tmp) }
	}

	local, err := s3fetch.NewFetcher(l.Downloader, dir, l.FetchConcurrency).FetchAll(ctx, remote, refresh)
	if err != nil {
		cleanup()
		return nil, nil, &DataSourceError{Source: remote[0], Err: err}
	}
	for j, i := range remoteIdx {
		paths[i] = local[j]
	}
	return paths, cleanup, nil
}

// digestFiles hashes the content of every part in order. Parts are length
// prefixed so that moving bytes between parts changes the digest.
func digestFiles(paths []string) ([format.DigestSize]byte, error) {
	h := sha256.New()
	var lenBuf [8]byte
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return [format.DigestSize]byte{}, &DataSourceError{Source: p, Err: err}
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return [format.DigestSize]byte{}, &DataSourceError{Source: p, Err: err}
		}
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(info.Size()))
		h.Write(lenBuf[:])
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return [format.DigestSize]byte{}, &DataSourceError{Source: p, Err: err}
		}
	}

	var out [format.DigestSize]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

func readCache(path string, digest [format.DigestSize]byte) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	snap, err := format.ReadSnapshot(f)
	if err != nil {
		return nil, err
	}
	if snap.Digest != digest {
		return nil, fmt.Errorf("%w: digest mismatch", format.ErrCorrupt)
	}
	cat, err := FromSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", format.ErrCorrupt, err)
	}
	return cat, nil
}

func writeCache(path string, snap format.Snapshot) error {
	return fileutil.WriteAtomic(path, func(f *os.File) error {
		return format.WriteSnapshot(f, snap)
	})
}
