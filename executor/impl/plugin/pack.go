package plugin

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"sort"

	. "github.com/warpfork/go-errcat"

	"go.polydawn.net/pkgrun/api"
)

/*
	Write a gzipped plugin archive holding the given files.

	Names are slash-separated paths inside the archive; entries are
	written in sorted order with zeroed times, so the same files always
	produce the same bytes (and thus the same digest).
*/
func WriteArchive(w io.Writer, files map[string][]byte) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		body := files[name]
		if err := tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0644,
			Size:     int64(len(body)),
		}); err != nil {
			return Errorf(api.ErrLocalCacheProblem, "cannot write plugin archive: %s", err)
		}
		if _, err := tw.Write(body); err != nil {
			return Errorf(api.ErrLocalCacheProblem, "cannot write plugin archive: %s", err)
		}
	}
	if err := tw.Close(); err != nil {
		return Errorf(api.ErrLocalCacheProblem, "cannot write plugin archive: %s", err)
	}
	if err := gz.Close(); err != nil {
		return Errorf(api.ErrLocalCacheProblem, "cannot write plugin archive: %s", err)
	}
	return nil
}

// PackDir archives the regular files directly inside `dir`.
func PackDir(w io.Writer, dir string) error {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return Errorf(api.ErrUsage, "cannot read plugin dir: %s", err)
	}
	files := map[string][]byte{}
	for _, ent := range ents {
		if !ent.Type().IsRegular() {
			continue
		}
		body, err := os.ReadFile(filepath.Join(dir, ent.Name()))
		if err != nil {
			return Errorf(api.ErrUsage, "cannot read plugin dir: %s", err)
		}
		files[ent.Name()] = body
	}
	return WriteArchive(w, files)
}
