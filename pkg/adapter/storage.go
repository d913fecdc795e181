package adapter

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
)

// Storage is the destination for memory export/import archives
type Storage interface {
	// Put returns a writer to save an archive to storage
	Put(ctx context.Context, key string) (io.WriteCloser, error)
	// Get loads an archive from storage
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// storageClient implements Storage using Cloud Storage
type storageClient struct {
	bucketName string
	client     *storage.Client
}

// NewStorage creates a new Cloud Storage client
func NewStorage(ctx context.Context, bucketName string) (Storage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	return &storageClient{
		bucketName: bucketName,
		client:     client,
	}, nil
}

func (s *storageClient) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	bucket := s.client.Bucket(s.bucketName)
	obj := bucket.Object(key)
	writer := obj.NewWriter(ctx)
	return writer, nil
}

func (s *storageClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	bucket := s.client.Bucket(s.bucketName)
	obj := bucket.Object(key)
	reader, err := obj.NewReader(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read from storage", goerr.Value("key", key))
	}

	return reader, nil
}

// localStorage implements Storage on the local filesystem
type localStorage struct {
	baseDir string
}

// NewLocalStorage creates a Storage rooted at baseDir
func NewLocalStorage(baseDir string) (Storage, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create storage directory", goerr.V("dir", baseDir))
	}
	return &localStorage{baseDir: baseDir}, nil
}

func (s *localStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	path := filepath.Join(s.baseDir, filepath.Clean(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create archive directory", goerr.V("path", path))
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create archive file", goerr.V("path", path))
	}
	return f, nil
}

func (s *localStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	path := filepath.Join(s.baseDir, filepath.Clean(key))
	f, err := os.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open archive file", goerr.V("path", path))
	}
	return f, nil
}

// ParseStorageURI splits a destination into (bucket, key) for gs:// URIs or
// ("", path) for local paths.
func ParseStorageURI(uri string) (bucket, key string) {
	const prefix = "gs://"
	if !strings.HasPrefix(uri, prefix) {
		return "", uri
	}

	rest := strings.TrimPrefix(uri, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}
