package plugin

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	. "github.com/warpfork/go-errcat"

	"go.polydawn.net/pkgrun/api"
)

var gzipMagic = []byte{0x1F, 0x8B, 0x08}

/*
	Wraps the stream in a gunzipper if it looks gzipped.
	Anything else is assumed to be a plain tar.
*/
func decompress(stream io.Reader) (io.Reader, error) {
	buf := bufio.NewReaderSize(stream, 8*1024)
	bs, err := buf.Peek(len(gzipMagic))
	if err != nil && err != io.EOF {
		return nil, err
	}
	if bytes.Equal(bs, gzipMagic) {
		return gzip.NewReader(buf)
	}
	return buf, nil
}

/*
	Unpack a plugin archive into `dest`.

	Only regular files and directories are extracted; links and devices
	are skipped.  Entries that would land outside `dest` are an error.
*/
func extract(archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return Errorf(api.ErrIsolation, "cannot open plugin archive: %s", err)
	}
	defer f.Close()
	r, err := decompress(f)
	if err != nil {
		return Errorf(api.ErrIsolation, "cannot read plugin archive: %s", err)
	}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return Errorf(api.ErrIsolation, "plugin archive is not a valid tar: %s", err)
		}
		name := path.Clean(hdr.Name)
		if path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
			return Errorf(api.ErrIsolation, "plugin archive entry %q escapes the archive", hdr.Name)
		}
		target := filepath.Join(dest, filepath.FromSlash(name))
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return Errorf(api.ErrLocalCacheProblem, "cannot extract plugin: %s", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return Errorf(api.ErrLocalCacheProblem, "cannot extract plugin: %s", err)
			}
			if err := writeEntry(target, tr); err != nil {
				return err
			}
		default:
			continue
		}
	}
}

func writeEntry(target string, r io.Reader) error {
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return Errorf(api.ErrLocalCacheProblem, "cannot extract plugin: %s", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return Errorf(api.ErrIsolation, "plugin archive is truncated: %s", err)
	}
	if err := out.Close(); err != nil {
		return Errorf(api.ErrLocalCacheProblem, "cannot extract plugin: %s", err)
	}
	return nil
}
