package release

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-getter"
	"github.com/klauspost/compress/gzip"
)

var errUnsafeEntry = errors.New("archive entry escapes the release directory")

// extract unpacks the tar.gz at src into the existing directory dst.
// Entry names are checked first since the decompressor trusts them.
func extract(dst, src string) error {
	if err := checkEntries(src); err != nil {
		return err
	}

	if err := new(getter.TarGzipDecompressor).Decompress(dst, src, true); err != nil {
		return fmt.Errorf("decompress %s: %w", filepath.Base(src), err)
	}

	return nil
}

func checkEntries(src string) error {
	f, err := os.Open(filepath.Clean(src))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("read gzip header: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}

		name := path.Clean(filepath.ToSlash(hdr.Name))
		if path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
			return fmt.Errorf("%q: %w", hdr.Name, errUnsafeEntry)
		}
	}
}
