package builder

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"

	"github.com/discochess/gambit/internal/store"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// UploadResult summarizes one Upload.
type UploadResult struct {
	Uploaded int
	// Unchanged counts shards whose CRC32C already matched the bucket.
	Unchanged int
	Deleted   int
	Bytes     int64
}

// GCSUploader publishes a built data directory to Google Cloud Storage
// under the <prefix><table>/<shard>.<ext> layout gcsstore reads. Uploads
// are incremental: shards the bucket already holds byte for byte are
// skipped.
type GCSUploader struct {
	client  *storage.Client
	bucket  *storage.BucketHandle
	prefix  string
	workers int
	logger  *zap.Logger
}

// UploaderOption configures a GCSUploader.
type UploaderOption func(*GCSUploader)

// WithUploadWorkers sets how many shards upload at once.
func WithUploadWorkers(n int) UploaderOption {
	return func(u *GCSUploader) {
		if n > 0 {
			u.workers = n
		}
	}
}

// NewGCSUploader connects to the bucket named by a "gs://bucket/prefix"
// path.
func NewGCSUploader(ctx context.Context, gcsPath string, logger *zap.Logger, opts ...UploaderOption) (*GCSUploader, error) {
	bucket, prefix, err := parseGCSPath(gcsPath)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}

	u := &GCSUploader{
		client:  client,
		bucket:  client.Bucket(bucket),
		prefix:  prefix,
		workers: 8,
		logger:  logger.With(zap.String("bucket", bucket)),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

func parseGCSPath(gcsPath string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(gcsPath, "gs://")
	if !ok {
		return "", "", fmt.Errorf("invalid GCS path %q: must start with gs://", gcsPath)
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid GCS path %q: missing bucket name", gcsPath)
	}
	return bucket, store.CleanPrefix(prefix), nil
}

// Upload publishes every table in the directory's manifest and then the
// manifest itself. Stale shards are deleted only after a table's new
// shards are in place, so readers never see a table with holes.
func (u *GCSUploader) Upload(ctx context.Context, localDir string, progress ProgressFunc) (UploadResult, error) {
	var res UploadResult
	m, err := ReadManifest(localDir)
	if err != nil {
		return res, err
	}

	var bytes atomic.Int64
	for _, table := range m.TableNames() {
		remote, err := u.listTable(ctx, table)
		if err != nil {
			return res, err
		}
		written, err := u.uploadTable(ctx, localDir, table, remote, &bytes, &res, progress)
		if err != nil {
			return res, err
		}

		for name := range remote {
			if written[name] {
				continue
			}
			if err := u.bucket.Object(name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
				u.logger.Warn("deleting stale shard", zap.String("object", name), zap.Error(err))
				continue
			}
			res.Deleted++
		}
	}

	if err := u.uploadFile(ctx, filepath.Join(localDir, manifestFilename), u.prefix+manifestFilename, &bytes); err != nil {
		return res, fmt.Errorf("uploading manifest: %w", err)
	}
	res.Bytes = bytes.Load()
	if progress != nil {
		progress(Progress{Phase: PhaseUpload, BytesRead: res.Bytes})
	}
	u.logger.Info("upload complete",
		zap.Int("uploaded", res.Uploaded),
		zap.Int("unchanged", res.Unchanged),
		zap.Int("deleted", res.Deleted),
		zap.Int64("bytes", res.Bytes),
	)
	return res, nil
}

// listTable maps the table's objects in the bucket to their CRC32C.
func (u *GCSUploader) listTable(ctx context.Context, table string) (map[string]uint32, error) {
	remote := make(map[string]uint32)
	it := u.bucket.Objects(ctx, &storage.Query{Prefix: u.objectName(table, "")})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return remote, nil
		}
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", table, err)
		}
		remote[attrs.Name] = attrs.CRC32C
	}
}

// uploadTable returns the set of object names the local table now maps to.
func (u *GCSUploader) uploadTable(ctx context.Context, localDir, table string, remote map[string]uint32, bytes *atomic.Int64, res *UploadResult, progress ProgressFunc) (map[string]bool, error) {
	entries, err := os.ReadDir(filepath.Join(localDir, table))
	if err != nil {
		return nil, fmt.Errorf("reading table directory: %w", err)
	}

	var (
		mu      sync.Mutex
		written = make(map[string]bool, len(entries))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.workers)
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		local := filepath.Join(localDir, table, entry.Name())
		object := u.objectName(table, entry.Name())

		g.Go(func() error {
			sum, err := fileCRC32C(local)
			if err != nil {
				return err
			}
			crc, exists := remote[object]
			unchanged := exists && crc == sum
			if !unchanged {
				if err := u.uploadFile(gctx, local, object, bytes); err != nil {
					return fmt.Errorf("uploading %s: %w", object, err)
				}
			}

			mu.Lock()
			defer mu.Unlock()
			written[object] = true
			if unchanged {
				res.Unchanged++
			} else {
				res.Uploaded++
			}
			if progress != nil && len(written)%100 == 0 {
				progress(Progress{
					Phase:         PhaseUpload,
					Table:         table,
					BytesRead:     bytes.Load(),
					ShardsCreated: len(written),
					ShardsTotal:   len(entries),
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	u.logger.Debug("table uploaded", zap.String("table", table), zap.Int("shards", len(written)))
	return written, nil
}

func (u *GCSUploader) objectName(table, file string) string {
	return u.prefix + table + "/" + file
}

func (u *GCSUploader) uploadFile(ctx context.Context, localPath, object string, bytes *atomic.Int64) error {
	file, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer file.Close()

	w := u.bucket.Object(object).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := io.Copy(countWrites(w, bytes), file); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func fileCRC32C(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := crc32.New(castagnoli)
	if _, err := io.Copy(h, f); err != nil {
		return 0, fmt.Errorf("checksumming %s: %w", path, err)
	}
	return h.Sum32(), nil
}

func (u *GCSUploader) Close() error {
	return u.client.Close()
}
