package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/finsight-ai/backend/pkg/logger"
)

// Store is the object-store contract the pipeline depends on. The pipeline
// treats it as opaque durable storage: it issues a normalized path for an
// upload, writes the blob, and later streams it back.
type Store interface {
	IssuePath(docID, filename string) string
	Save(path string, r io.Reader) (int64, error)
	Open(path string) (io.ReadCloser, error)
	Delete(path string) error
}

// FileStore keeps blobs on the local filesystem under a single root
// directory. Paths issued by IssuePath are relative to that root.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}

	logger.Info("Blob store initialized", zap.String("root", root))

	return &FileStore{root: root}, nil
}

// IssuePath normalizes the original filename into a collision-free relative
// path keyed by document id.
func (s *FileStore) IssuePath(docID, filename string) string {
	base := filepath.Base(filename)
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, base)

	return filepath.Join(docID, base)
}

func (s *FileStore) Save(path string, r io.Reader) (int64, error) {
	full := filepath.Join(s.root, path)

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create blob directory: %w", err)
	}

	f, err := os.Create(full)
	if err != nil {
		return 0, fmt.Errorf("failed to create blob file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		return 0, fmt.Errorf("failed to write blob: %w", err)
	}

	logger.Debug("Blob saved", zap.String("path", path), zap.Int64("bytes", n))
	return n, nil
}

func (s *FileStore) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.root, path))
	if err != nil {
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

func (s *FileStore) Delete(path string) error {
	full := filepath.Join(s.root, path)

	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}

	// Drop the per-document directory if it is now empty.
	os.Remove(filepath.Dir(full))

	return nil
}
