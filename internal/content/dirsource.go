package content

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// DirSource serves HTML files from a local directory as page units. It is the
// built-in source for standalone deployments; CMS integrations supply their
// own Source implementations instead.
type DirSource struct {
	dir string

	mu    sync.Mutex
	paths map[int64]string
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir, paths: make(map[int64]string)}
}

func (s *DirSource) Type() SourceType { return SourceTypePage }

func (s *DirSource) ListUnits(ctx context.Context) ([]Unit, error) {
	var files []string
	err := filepath.WalkDir(s.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.IsDir() && (filepath.Ext(path) == ".html" || filepath.Ext(path) == ".htm") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Stable ordering keeps unit IDs consistent across scans.
	sort.Strings(files)

	s.mu.Lock()
	defer s.mu.Unlock()
	units := make([]Unit, 0, len(files))
	for i, path := range files {
		id := int64(i + 1)
		s.paths[id] = path
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		units = append(units, Unit{
			ID:         id,
			SourceType: SourceTypePage,
			Field:      "content",
			Format:     FormatHTML,
			Raw:        string(raw),
		})
	}
	return units, nil
}

func (s *DirSource) RewriteUnit(_ context.Context, id int64, _ string, newContent string) (bool, error) {
	s.mu.Lock()
	path, ok := s.paths[id]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := os.WriteFile(path, []byte(newContent), info.Mode()); err != nil {
		return false, err
	}
	return true, nil
}
