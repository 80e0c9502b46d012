package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/vaultbox/internal/common"
	"github.com/dmitrijs2005/vaultbox/internal/filex"
)

const tempPrefix = ".tmp-"

// FSStore keeps blobs under a root directory on local disk.
type FSStore struct {
	root string
	skip map[string]struct{}
}

// NewFSStore creates root if needed. Directories named in skip, relative to
// root (e.g. a staging directory inside it), are hidden from List. Temp files
// left by interrupted writes are listed so the reconciler can sweep them;
// an in-flight write keeps its mtime fresh.
func NewFSStore(root string, skip ...string) (*FSStore, error) {
	abs, err := filex.EnsureDir(root)
	if err != nil {
		return nil, fmt.Errorf("%w: storage root: %v", common.ErrStorage, err)
	}
	s := &FSStore{root: abs, skip: make(map[string]struct{}, len(skip))}
	for _, d := range skip {
		s.skip[d] = struct{}{}
	}
	return s, nil
}

// Root returns the absolute storage root.
func (s *FSStore) Root() string {
	return s.root
}

// resolve maps a key onto the filesystem. Cleaning against "/" first keeps
// ".." segments from escaping the root.
func (s *FSStore) resolve(key string) (string, error) {
	clean := strings.TrimPrefix(path.Clean("/"+key), "/")
	if clean == "" {
		return "", fmt.Errorf("%w: empty blob key", common.ErrValidation)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func (s *FSStore) Allocate(ctx context.Context, ownerID int64) (Dir, error) {
	d := Dir{OwnerID: ownerID, Originals: ownerDir(ownerID), Thumbnails: ThumbnailsDir}
	for _, sub := range []string{d.Originals, d.Thumbnails} {
		if _, err := filex.EnsureDir(filepath.Join(s.root, sub)); err != nil {
			return Dir{}, fmt.Errorf("%w: %v", common.ErrStorage, err)
		}
	}
	return d, nil
}

func (s *FSStore) Write(ctx context.Context, key string, r io.Reader) (int64, error) {
	dst, err := s.resolve(key)
	if err != nil {
		return 0, err
	}
	if _, err := filex.EnsureDir(filepath.Dir(dst)); err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), tempPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("%w: create temp: %v", common.ErrStorage, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, filex.ContextReader(ctx, r))
	if err != nil {
		return 0, fmt.Errorf("%w: write %s: %w", common.ErrStorage, key, err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("%w: sync %s: %v", common.ErrStorage, key, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("%w: close %s: %v", common.ErrStorage, key, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return 0, fmt.Errorf("%w: rename %s: %v", common.ErrStorage, key, err)
	}
	committed = true
	return n, nil
}

func (s *FSStore) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	p, err := s.resolve(key)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, 0, mapFSError(key, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, mapFSError(key, err)
	}
	return f, info.Size(), nil
}

func (s *FSStore) Stat(ctx context.Context, key string) (Object, error) {
	p, err := s.resolve(key)
	if err != nil {
		return Object{}, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return Object{}, mapFSError(key, err)
	}
	return Object{Key: key, Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (s *FSStore) Remove(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	p, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := filex.RemoveIfExists(p); err != nil {
		return fmt.Errorf("%w: remove %s: %v", common.ErrStorage, key, err)
	}
	return nil
}

func (s *FSStore) List(ctx context.Context) ([]Object, error) {
	var out []Object
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if _, skip := s.skip[rel]; skip {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		out = append(out, Object{Key: filepath.ToSlash(rel), Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", common.ErrStorage, err)
	}
	return out, nil
}

func mapFSError(key string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("blob %s: %w", key, common.ErrNotFound)
	}
	return fmt.Errorf("%w: %s: %v", common.ErrStorage, key, err)
}
