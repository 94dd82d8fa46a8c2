package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/barangay172/portal/internal/platform/db"
)

func barangay(code string) context.Context {
	return context.WithValue(context.Background(), db.BarangayKey, code)
}

func seedBlob(t *testing.T, store BlobStore, ctx context.Context, content string) *BlobMetadata {
	t.Helper()
	meta := BlobMetadata{FileName: "id.png", ContentType: "image/png", OwnerID: "user-1", Category: "valid_id"}
	result, err := store.Upload(ctx, meta, strings.NewReader(content))
	if err != nil {
		t.Fatalf("seedBlob: %v", err)
	}
	return result
}

func stores(t *testing.T) map[string]BlobStore {
	disk, err := NewDiskBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskBlobStore: %v", err)
	}
	return map[string]BlobStore{"memory": NewInMemoryBlobStore(), "disk": disk}
}

func TestBlobStore_UploadDownload(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := barangay("172")
			meta := seedBlob(t, store, ctx, "hello world")
			if meta.ID == "" {
				t.Fatal("expected non-empty ID")
			}
			if meta.Size != int64(len("hello world")) {
				t.Errorf("expected Size=%d, got %d", len("hello world"), meta.Size)
			}
			if want := fmt.Sprintf("%x", sha256.Sum256([]byte("hello world"))); meta.Hash != want {
				t.Errorf("expected hash %s, got %s", want, meta.Hash)
			}

			rc, got, err := store.Download(ctx, meta.ID)
			if err != nil {
				t.Fatalf("Download: %v", err)
			}
			defer rc.Close()
			body, _ := io.ReadAll(rc)
			if string(body) != "hello world" {
				t.Errorf("expected content 'hello world', got %q", body)
			}
			if got.FileName != "id.png" || got.ContentType != "image/png" || got.Category != "valid_id" {
				t.Errorf("unexpected metadata: %+v", got)
			}
		})
	}
}

func TestBlobStore_PartitionedByBarangay(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			meta := seedBlob(t, store, barangay("172"), "doc")
			if _, _, err := store.Download(barangay("173"), meta.ID); !errors.Is(err, ErrBlobNotFound) {
				t.Errorf("expected ErrBlobNotFound from another barangay, got %v", err)
			}
		})
	}
}

func TestBlobStore_Delete(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := barangay("172")
			meta := seedBlob(t, store, ctx, "doc")
			if err := store.Delete(ctx, meta.ID); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, _, err := store.Download(ctx, meta.ID); !errors.Is(err, ErrBlobNotFound) {
				t.Errorf("expected ErrBlobNotFound after delete, got %v", err)
			}
			if err := store.Delete(ctx, meta.ID); !errors.Is(err, ErrBlobNotFound) {
				t.Errorf("expected ErrBlobNotFound on second delete, got %v", err)
			}
		})
	}
}

func TestBlobStore_Validation(t *testing.T) {
	tests := []struct {
		name string
		meta BlobMetadata
		size int
		want error
	}{
		{"missing name", BlobMetadata{ContentType: "image/png"}, 1, ErrMissingFileName},
		{"bad type", BlobMetadata{FileName: "a.exe", ContentType: "application/octet-stream"}, 1, ErrInvalidContentType},
		{"too large", BlobMetadata{FileName: "a.pdf", ContentType: "application/pdf"}, MaxFileSize + 1, ErrFileTooLarge},
	}
	for name, store := range stores(t) {
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				_, err := store.Upload(barangay("172"), tt.meta, bytes.NewReader(make([]byte, tt.size)))
				if !errors.Is(err, tt.want) {
					t.Errorf("expected %v, got %v", tt.want, err)
				}
			})
		}
	}
}

func TestDiskBlobStore_RejectsNonUUIDPaths(t *testing.T) {
	store, err := NewDiskBlobStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.Download(barangay("172"), "../../etc/passwd"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestInMemoryBlobStore_ConcurrentAccess(t *testing.T) {
	store := NewInMemoryBlobStore()
	ctx := barangay("172")
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			meta := BlobMetadata{FileName: fmt.Sprintf("f%d.pdf", i), ContentType: "application/pdf"}
			if _, err := store.Upload(ctx, meta, strings.NewReader("x")); err != nil {
				t.Errorf("Upload: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if store.Len() != 20 {
		t.Errorf("expected 20 blobs, got %d", store.Len())
	}
}

func TestServe(t *testing.T) {
	store := NewInMemoryBlobStore()
	ctx := barangay("172")
	meta := seedBlob(t, store, ctx, "png-bytes")
	rc, got, err := store.Download(ctx, meta.ID)
	if err != nil {
		t.Fatal(err)
	}

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if err := Serve(c, rc, got); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %s", ct)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), `filename="id.png"`) {
		t.Errorf("unexpected Content-Disposition: %s", rec.Header().Get("Content-Disposition"))
	}
	if rec.Body.String() != "png-bytes" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestUploadError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{ErrMissingFileName, http.StatusBadRequest},
		{ErrInvalidContentType, http.StatusUnsupportedMediaType},
		{ErrBlobNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		var he *echo.HTTPError
		if !errors.As(UploadError(tt.err), &he) || he.Code != tt.want {
			t.Errorf("UploadError(%v): expected %d, got %v", tt.err, tt.want, UploadError(tt.err))
		}
	}
}
