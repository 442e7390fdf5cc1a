package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileSource reads documents from the local filesystem. When root is set,
// relative locations are resolved against it.
type FileSource struct {
	root string
}

// NewFileSource creates a file source rooted at root ("" for the working
// directory).
func NewFileSource(root string) *FileSource {
	return &FileSource{root: root}
}

func (s *FileSource) resolve(location string) string {
	p := strings.TrimPrefix(location, "file://")
	if s.root != "" && !filepath.IsAbs(p) {
		p = filepath.Join(s.root, p)
	}
	return p
}

// Open opens the file at location.
func (s *FileSource) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := s.resolve(location)
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, location)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", location, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrSourceNotFound, location)
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", location, err)
	}
	return f, nil
}

// List walks the directory at location and returns every regular file in
// lexical order. A file location lists itself.
func (s *FileSource) List(ctx context.Context, location string) ([]string, error) {
	root := s.resolve(location)
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, location)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", location, err)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", location, err)
	}
	return files, nil
}
