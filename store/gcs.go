// Package store persists pipeline outputs: encoded rasters go to a bucket or
// local files, raster metadata and vectors go to a SQL database.
package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/airbusgeo/debrismap"
)

// SplitURL splits a gs://bucket/object url. ok is false for anything else.
func SplitURL(name string) (bucket, object string, ok bool) {
	if !strings.HasPrefix(name, "gs://") {
		return "", "", false
	}
	bucket, object, found := strings.Cut(name[5:], "/")
	if !found || bucket == "" || object == "" {
		return "", "", false
	}
	return bucket, object, true
}

// Create opens name for writing, either a gs:// object or a local file.
// stcl may be nil when only local files are used.
func Create(ctx context.Context, stcl *storage.Client, name string) (io.WriteCloser, error) {
	if b, o, ok := SplitURL(name); ok {
		if stcl == nil {
			return nil, fmt.Errorf("no storage client to write %s", name)
		}
		w := stcl.Bucket(b).Object(o).NewWriter(ctx)
		w.ContentType = "image/tiff"
		return w, nil
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	return f, nil
}

// GCS uploads encoded rasters under a bucket prefix
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

func NewGCS(client *storage.Client, bucket, prefix string) *GCS {
	return &GCS{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// URL is the gs:// location of key
func (g *GCS) URL(key string) string {
	return "gs://" + g.bucket + "/" + path.Join(g.prefix, key)
}

// PutRaster uploads the raster's GeoTIFF bytes and returns their url
func (g *GCS) PutRaster(ctx context.Context, key string, r debrismap.Raster) (string, error) {
	url := g.URL(key)
	w, err := Create(ctx, g.client, url)
	if err != nil {
		return "", err
	}
	if _, err := w.Write(r.Content); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write %s: %w", url, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", url, err)
	}
	return url, nil
}
