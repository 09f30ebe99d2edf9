package packager

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/oshokin/enginectl/internal/artifact"
	"github.com/oshokin/enginectl/internal/domain/engine"
	"github.com/oshokin/enginectl/internal/logger"
)

// Options contains inputs for the packager entry point.
type Options struct {
	// SourceDir is the project tree to package.
	SourceDir string
	// StagingDir receives the archive and manifest; it is never packaged itself.
	StagingDir string
	// Layout names the package.
	Layout engine.Layout
	// Version is the release version the archive is built for.
	Version string
	// Exclude lists filepath.Match patterns tested against base names and relative paths.
	Exclude []string
}

// Result describes a built release.
type Result struct {
	ArchivePath  string
	ManifestPath string
	Manifest     *artifact.Manifest
	// Files is the number of regular files archived.
	Files int
}

// stagingDirMode keeps the staging directory private to the operator.
const stagingDirMode os.FileMode = 0o750

var errNothingToPackage = errors.New("no files to package")

// packager writes one archive.
// It is unexported; callers should use Run, which encapsulates setup and validation.
type packager struct {
	opts       *Options
	sourceDir  string
	stagingDir string
	files      int
}

// Run builds the archive and its manifest. Every failure is reported as engine.ErrPackaging.
func Run(ctx context.Context, opts *Options) (*Result, error) {
	ctx = logger.WithName(ctx, "packager")
	ctx = logger.WithFields(ctx, "package", opts.Layout.Package, "version", opts.Version)

	res, err := run(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrPackaging, err)
	}

	logger.InfoKV(ctx, "Release packaged", "archive", res.ArchivePath, "files", res.Files)

	return res, nil
}

func run(ctx context.Context, opts *Options) (*Result, error) {
	if err := engine.ValidateVersion(opts.Version); err != nil {
		return nil, err
	}

	p, err := newPackager(opts)
	if err != nil {
		return nil, err
	}

	if err = os.MkdirAll(p.stagingDir, stagingDirMode); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}

	archivePath := filepath.Join(p.stagingDir, opts.Layout.ArchiveName(opts.Version))

	if err = p.writeArchive(ctx, archivePath); err != nil {
		return nil, err
	}

	return p.writeManifest(archivePath)
}

func newPackager(opts *Options) (*packager, error) {
	sourceDir, err := filepath.Abs(opts.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("resolve source directory: %w", err)
	}

	info, err := os.Stat(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("source directory: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("source %s: %w", sourceDir, fs.ErrInvalid)
	}

	stagingDir, err := filepath.Abs(opts.StagingDir)
	if err != nil {
		return nil, fmt.Errorf("resolve staging directory: %w", err)
	}

	for _, pattern := range opts.Exclude {
		if _, err = filepath.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", pattern, err)
		}
	}

	return &packager{
		opts:       opts,
		sourceDir:  sourceDir,
		stagingDir: stagingDir,
	}, nil
}

// writeArchive streams the tree into a temporary file and renames it into
// place, so a failed run never leaves a truncated archive under the final name.
func (p *packager) writeArchive(ctx context.Context, archivePath string) (err error) {
	tmp, err := os.CreateTemp(p.stagingDir, ".packaging-*.tar.gz")
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	gz := gzip.NewWriter(tmp)
	tw := tar.NewWriter(gz)

	if err = filepath.WalkDir(p.sourceDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		return p.add(ctx, tw, path, d)
	}); err != nil {
		return fmt.Errorf("walk %s: %w", p.sourceDir, err)
	}

	if p.files == 0 {
		return fmt.Errorf("%s: %w", p.sourceDir, errNothingToPackage)
	}

	if err = tw.Close(); err != nil {
		return fmt.Errorf("finish tar stream: %w", err)
	}

	if err = gz.Close(); err != nil {
		return fmt.Errorf("finish gzip stream: %w", err)
	}

	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync archive: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}

	if err = os.Rename(tmp.Name(), archivePath); err != nil {
		return fmt.Errorf("move archive into place: %w", err)
	}

	return nil
}

// add writes one walked entry.
func (p *packager) add(ctx context.Context, tw *tar.Writer, path string, d fs.DirEntry) error {
	if path == p.sourceDir {
		return nil
	}

	if d.IsDir() && path == p.stagingDir {
		return filepath.SkipDir
	}

	rel, err := filepath.Rel(p.sourceDir, path)
	if err != nil {
		return err
	}

	rel = filepath.ToSlash(rel)

	if p.excluded(rel) {
		logger.DebugKV(ctx, "Excluded", "path", rel)

		if d.IsDir() {
			return filepath.SkipDir
		}

		return nil
	}

	info, err := d.Info()
	if err != nil {
		return err
	}

	if !info.IsDir() && !info.Mode().IsRegular() {
		logger.DebugKV(ctx, "Skipped non-regular file", "path", rel, "mode", info.Mode().String())

		return nil
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("header for %s: %w", rel, err)
	}

	hdr.Name = rel
	if info.IsDir() {
		hdr.Name += "/"
	}

	// Ownership is the deploying user's on the host, not the packager's.
	hdr.Uid, hdr.Gid = 0, 0
	hdr.Uname, hdr.Gname = "", ""

	if err = tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header for %s: %w", rel, err)
	}

	if info.IsDir() {
		return nil
	}

	if err = copyFile(tw, path); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}

	p.files++

	return nil
}

// excluded matches patterns against the base name and the whole relative path.
func (p *packager) excluded(rel string) bool {
	base := rel[strings.LastIndex(rel, "/")+1:]

	for _, pattern := range p.opts.Exclude {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}

		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
	}

	return false
}

func (p *packager) writeManifest(archivePath string) (*Result, error) {
	sum, err := artifact.FileChecksum(archivePath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	m := artifact.NewManifest(p.opts.Layout.Package, p.opts.Version, filepath.Base(archivePath))
	m.Checksum = artifact.EncodeChecksum(sum)
	m.Size = info.Size()

	manifestPath := filepath.Join(p.stagingDir, p.opts.Layout.ManifestName(p.opts.Version))
	if err = artifact.SaveManifest(manifestPath, m); err != nil {
		return nil, err
	}

	return &Result{
		ArchivePath:  archivePath,
		ManifestPath: manifestPath,
		Manifest:     m,
		Files:        p.files,
	}, nil
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)

	return err
}
