// Package localfs implements port.ObjectStorage on a local directory tree.
// Keys are slash-separated paths relative to the root; bucket is ignored.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"paperflow/internal/domain"
	"paperflow/internal/port"
)

type store struct {
	root string
}

// New returns storage rooted at root. The directory is created on first
// upload.
func New(root string) port.ObjectStorage {
	return &store{root: root}
}

func (s *store) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Upload writes to a temporary file in the target directory and renames it
// into place, so readers never see a partial object.
func (s *store) Upload(ctx context.Context, input port.UploadInput) (*port.UploadOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dst := s.path(input.Key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, fmt.Errorf("localfs mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("localfs create: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, input.Body); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("localfs write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("localfs close: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return nil, fmt.Errorf("localfs rename: %w", err)
	}
	return &port.UploadOutput{Location: dst}, nil
}

func (s *store) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	body, err := s.OpenRange(ctx, bucket, key, 0)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

func (s *store) OpenRange(ctx context.Context, _, key string, offset int64) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("localfs open %s: %w", key, domain.ErrInputNotFound)
		}
		return nil, fmt.Errorf("localfs open %s: %w", key, err)
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("localfs seek %s: %w", key, err)
		}
	}
	return f, nil
}

// List walks the directory holding prefix and returns regular files whose
// key starts with prefix.
func (s *store) List(ctx context.Context, _, prefix string) ([]port.ObjectInfo, error) {
	dir := ""
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dir = prefix[:i]
	}

	var out []port.ObjectInfo
	err := filepath.WalkDir(s.path(dir), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, port.ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("localfs list %s: %w", prefix, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
