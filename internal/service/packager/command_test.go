package packager

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/enginectl/internal/artifact"
	"github.com/oshokin/enginectl/internal/domain/engine"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func listArchive(t *testing.T, path string) ([]string, map[string]string) {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)

	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	tr := tar.NewReader(gz)

	var names []string

	contents := make(map[string]string)

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		require.NoError(t, err)
		require.Zero(t, hdr.Uid)
		names = append(names, hdr.Name)

		if hdr.Typeflag == tar.TypeReg {
			data, err := io.ReadAll(tr)
			require.NoError(t, err)

			contents[hdr.Name] = string(data)
		}
	}

	return names, contents
}

// TestRunBuildsArchive packages a project tree and checks entries and manifest.
func TestRunBuildsArchive(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "Makefile"), "marvin:\n")
	writeFile(t, filepath.Join(src, "engine", "__init__.py"), "")
	writeFile(t, filepath.Join(src, "engine", "model.py"), "predict = 1\n")
	writeFile(t, filepath.Join(src, "engine", "model.pyc"), "bytecode")
	writeFile(t, filepath.Join(src, ".vagrant", "machine"), "vm")
	writeFile(t, filepath.Join(src, ".packages", "old.tar.gz"), "stale")
	require.NoError(t, os.Symlink("Makefile", filepath.Join(src, "link")))

	res, err := Run(context.Background(), &Options{
		SourceDir:  src,
		StagingDir: filepath.Join(src, ".packages"),
		Layout:     engine.NewLayout("marvin", "iris"),
		Version:    "1.0.0",
		Exclude:    []string{".packages", ".vagrant", "*.pyc"},
	})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(src, ".packages", "iris-1.0.0.tar.gz"), res.ArchivePath)
	require.Equal(t, 3, res.Files)

	names, contents := listArchive(t, res.ArchivePath)

	want := []string{"Makefile", "engine/", "engine/__init__.py", "engine/model.py"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("archive entries mismatch (-want +got):\n%s", diff)
	}

	require.Equal(t, "predict = 1\n", contents["engine/model.py"])

	m, err := artifact.LoadManifest(res.ManifestPath)
	require.NoError(t, err)
	require.Equal(t, "iris", m.Package)
	require.Equal(t, "1.0.0", m.Version)
	require.Equal(t, "iris-1.0.0.tar.gz", m.Archive)

	sum, err := artifact.FileChecksum(res.ArchivePath)
	require.NoError(t, err)
	require.Equal(t, artifact.EncodeChecksum(sum), m.Checksum)

	// No temporary archives are left in the staging directory.
	entries, err := os.ReadDir(filepath.Join(src, ".packages"))
	require.NoError(t, err)
	require.Len(t, entries, 3)
}

// TestRunExcludesNestedPath checks that relative path patterns apply.
func TestRunExcludesNestedPath(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "keep.txt"), "k")
	writeFile(t, filepath.Join(src, "data", "raw", "big.csv"), "1,2")
	writeFile(t, filepath.Join(src, "data", "small.csv"), "3")

	res, err := Run(context.Background(), &Options{
		SourceDir:  src,
		StagingDir: t.TempDir(),
		Layout:     engine.NewLayout("marvin", "iris"),
		Version:    "2",
		Exclude:    []string{"data/raw"},
	})
	require.NoError(t, err)

	names, _ := listArchive(t, res.ArchivePath)
	require.Equal(t, []string{"data/", "data/small.csv", "keep.txt"}, names)
}

// TestRunFailures reports every problem as a packaging error.
func TestRunFailures(t *testing.T) {
	t.Parallel()

	layout := engine.NewLayout("marvin", "iris")

	// Missing source tree.
	_, err := Run(context.Background(), &Options{
		SourceDir:  filepath.Join(t.TempDir(), "absent"),
		StagingDir: t.TempDir(),
		Layout:     layout,
		Version:    "1.0.0",
	})
	require.ErrorIs(t, err, engine.ErrPackaging)
	require.ErrorIs(t, err, os.ErrNotExist)

	// Nothing but excluded content.
	src := t.TempDir()
	writeFile(t, filepath.Join(src, ".vagrant", "machine"), "vm")

	staging := t.TempDir()
	_, err = Run(context.Background(), &Options{
		SourceDir:  src,
		StagingDir: staging,
		Layout:     layout,
		Version:    "1.0.0",
		Exclude:    []string{".vagrant"},
	})
	require.ErrorIs(t, err, engine.ErrPackaging)
	require.ErrorIs(t, err, errNothingToPackage)

	entries, err := os.ReadDir(staging)
	require.NoError(t, err)
	require.Empty(t, entries)

	// Unusable version.
	_, err = Run(context.Background(), &Options{
		SourceDir:  src,
		StagingDir: staging,
		Layout:     layout,
		Version:    "../1",
	})
	require.ErrorIs(t, err, engine.ErrPackaging)
	require.ErrorIs(t, err, engine.ErrInvalidVersion)

	// Bad exclude pattern.
	_, err = Run(context.Background(), &Options{
		SourceDir:  src,
		StagingDir: staging,
		Layout:     layout,
		Version:    "1",
		Exclude:    []string{"["},
	})
	require.ErrorIs(t, err, engine.ErrPackaging)
}
