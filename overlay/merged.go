package overlay

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

// MergedFs builds the merged view of req in userspace on top of base.
// Later lower layers shadow earlier ones and writes land in Upper. Whiteouts
// are not modelled, so removing a lower file through the view fails.
func MergedFs(base afero.Fs, req Request) afero.Fs {
	var view afero.Fs
	for _, dir := range req.Lower {
		layer := afero.NewReadOnlyFs(afero.NewBasePathFs(base, dir))
		if view == nil {
			view = layer
			continue
		}
		view = afero.NewCopyOnWriteFs(view, layer)
	}
	if req.Upper == "" {
		return view
	}
	upper := afero.NewBasePathFs(base, req.Upper)
	if view == nil {
		return upper
	}
	return afero.NewCopyOnWriteFs(view, upper)
}

// Source is a file of the merged view and the layer directory providing it.
type Source struct {
	Path  string
	Layer string
}

// Sources lists every regular file visible in the merged view of req,
// sorted by path, with the top-most layer that provides it.
func Sources(base afero.Fs, req Request) ([]Source, error) {
	layers := make([]string, 0, len(req.Lower)+1)
	if req.Upper != "" {
		layers = append(layers, req.Upper)
	}
	for i := len(req.Lower) - 1; i >= 0; i-- {
		layers = append(layers, req.Lower[i])
	}

	seen := make(map[string]string)
	for _, layer := range layers {
		exists, err := afero.DirExists(base, layer)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}
		err = afero.Walk(base, layer, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(layer, path)
			if err != nil {
				return err
			}
			if _, ok := seen[rel]; !ok {
				seen[rel] = layer
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	out := make([]Source, 0, len(seen))
	for path, layer := range seen {
		out = append(out, Source{Path: filepath.ToSlash(path), Layer: layer})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
