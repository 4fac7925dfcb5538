package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGCS serves the object upload endpoints of the storage JSON api and
// keeps uploaded objects in memory, keyed by bucket/name
type fakeGCS struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	srv     *httptest.Server
}

type objectMeta struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        string `json:"size,omitempty"`
}

func newFakeGCS(t *testing.T) *fakeGCS {
	f := &fakeGCS{objects: map[string][]byte{}, types: map[string]string{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeGCS) serve(w http.ResponseWriter, r *http.Request) {
	bucket := bucketOf(r.URL.Path)
	switch {
	case r.Method == http.MethodPost && r.URL.Query().Get("uploadType") == "multipart":
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		var meta objectMeta
		part, err := mr.NextPart()
		if err == nil {
			err = json.NewDecoder(part).Decode(&meta)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		part, err = mr.NextPart()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.store(w, bucket, meta, part)
	case r.Method == http.MethodPost && r.URL.Query().Get("uploadType") == "resumable":
		var meta objectMeta
		if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		q := url.Values{"name": {meta.Name}, "type": {meta.ContentType}}
		w.Header().Set("Location", f.srv.URL+"/session/"+bucket+"?"+q.Encode())
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/session/"):
		meta := objectMeta{Name: r.URL.Query().Get("name"), ContentType: r.URL.Query().Get("type")}
		f.store(w, strings.TrimPrefix(r.URL.Path, "/session/"), meta, r.Body)
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.String(), http.StatusNotImplemented)
	}
}

func (f *fakeGCS) store(w http.ResponseWriter, bucket string, meta objectMeta, body io.Reader) {
	content, err := io.ReadAll(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.objects[bucket+"/"+meta.Name] = content
	f.types[bucket+"/"+meta.Name] = meta.ContentType
	f.mu.Unlock()
	meta.Bucket = bucket
	meta.Size = fmt.Sprint(len(content))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(meta)
}

// bucketOf extracts the bucket from .../b/<bucket>/o
func bucketOf(p string) string {
	parts := strings.Split(p, "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "b" {
			return parts[i+1]
		}
	}
	return ""
}

func TestPutRaster(t *testing.T) {
	fake := newFakeGCS(t)
	t.Setenv("STORAGE_EMULATOR_HOST", fake.srv.URL)
	ctx := context.Background()
	stcl, err := storage.NewClient(ctx)
	require.NoError(t, err)
	defer stcl.Close()

	r := testRaster(t)
	g := NewGCS(stcl, "debris", "predictions/")
	loc, err := g.PutRaster(ctx, "S2A_T30SUF/pred.tif", r)
	require.NoError(t, err)
	assert.Equal(t, "gs://debris/predictions/S2A_T30SUF/pred.tif", loc)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, r.Content, fake.objects["debris/predictions/S2A_T30SUF/pred.tif"])
	assert.Equal(t, "image/tiff", fake.types["debris/predictions/S2A_T30SUF/pred.tif"])
}

func TestPutRasterNoClient(t *testing.T) {
	_, err := NewGCS(nil, "debris", "").PutRaster(context.Background(), "pred.tif", testRaster(t))
	assert.Error(t, err)
}
