package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps objects as plain files under a root directory. Keys map
// to relative paths, so "ingest/product.xlsx" lands in <root>/ingest/.
type LocalStore struct {
	root string
}

// NewLocalStore creates a LocalStore rooted at root.
func NewLocalStore(root string) (*LocalStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("local store root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, ".tmp"), 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{root: abs}, nil
}

// Put writes payload to a temp file and renames it over key, so readers see
// either the previous object or the new one.
func (l *LocalStore) Put(ctx context.Context, key string, payload []byte) error {
	if l == nil {
		return fmt.Errorf("blob store is not configured")
	}
	dst, err := l.pathFromKey(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return WrapError("put", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Join(l.root, ".tmp"), "put-*")
	if err != nil {
		return WrapError("put", key, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(payload); err != nil {
		cleanup()
		return WrapError("put", key, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return WrapError("put", key, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return WrapError("put", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		_ = os.Remove(tmpPath)
		return WrapError("put", key, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return WrapError("put", key, err)
	}
	return nil
}

// Get returns the bytes stored under key.
func (l *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	if l == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	path, err := l.pathFromKey(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, WrapError("get", key, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapError("get", key, err)
	}
	return data, nil
}

func (l *LocalStore) pathFromKey(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", &StorageError{Kind: ErrInvalidKey, Op: "resolve", Key: key, Err: err}
	}
	if strings.HasPrefix(key, ".tmp/") || key == ".tmp" {
		return "", &StorageError{Kind: ErrInvalidKey, Op: "resolve", Key: key, Err: fmt.Errorf("reserved prefix")}
	}
	return filepath.Join(l.root, filepath.FromSlash(key)), nil
}
