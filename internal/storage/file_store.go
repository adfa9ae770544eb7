package storage

import (
	"context"
	"os"
	"path/filepath"
)

type FileStore struct{ dir string }

func NewFileStore(dir string) *FileStore {
	_ = os.MkdirAll(dir, 0700)
	return &FileStore{dir: dir}
}

func (f *FileStore) Save(_ context.Context, id string, envelope []byte) error {
	return os.WriteFile(f.path(id), envelope, 0600)
}

func (f *FileStore) Load(_ context.Context, id string) ([]byte, error) {
	b, err := os.ReadFile(f.path(id))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return b, err
}

func (f *FileStore) Delete(_ context.Context, id string) error {
	err := os.Remove(f.path(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *FileStore) path(id string) string {
	return filepath.Join(f.dir, id+".vault")
}
