package artifact

import (
	"crypto"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/enginectl/internal/version"

	// Ensure SHA512 available for checksum calculation.
	_ "crypto/sha512"
)

// ChecksumFunction is used to hash release archives.
const ChecksumFunction crypto.Hash = crypto.SHA512

// manifestFileMode keeps manifests readable next to world-readable archives.
const manifestFileMode os.FileMode = 0o644

var (
	errHashUnavailable = errors.New("hash function unavailable")
	errNoChecksum      = errors.New("manifest has no checksum")
)

// Manifest describes one packaged release.
type Manifest struct {
	// Package is the engine package name.
	Package string `yaml:"package"`
	// Version is the release version.
	Version string `yaml:"version"`
	// Archive is the archive file name, relative to the manifest.
	Archive string `yaml:"archive"`
	// Checksum is the base64-encoded SHA-512 of the archive.
	Checksum string `yaml:"checksum"`
	// Size is the archive size in bytes.
	Size int64 `yaml:"size"`
	// BuiltAt is the UTC build timestamp.
	BuiltAt time.Time `yaml:"built_at"`
	// ToolVersion is the enginectl version that built the archive.
	ToolVersion string `yaml:"tool_version"`
}

// NewManifest returns a manifest stamped with the current tool version and time.
func NewManifest(pkg, ver, archive string) *Manifest {
	return &Manifest{
		Package:     pkg,
		Version:     ver,
		Archive:     archive,
		BuiltAt:     time.Now().UTC().Truncate(time.Second),
		ToolVersion: version.Short(),
	}
}

// ChecksumBytes decodes the stored checksum.
func (m *Manifest) ChecksumBytes() ([]byte, error) {
	if m.Checksum == "" {
		return nil, errNoChecksum
	}

	sum, err := base64.StdEncoding.DecodeString(m.Checksum)
	if err != nil {
		return nil, fmt.Errorf("decode checksum: %w", err)
	}

	return sum, nil
}

// LoadManifest reads a manifest from path.
func LoadManifest(path string) (*Manifest, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(contents, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}

	return &m, nil
}

// SaveManifest writes m to path.
func SaveManifest(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, manifestFileMode); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	return nil
}

// FileChecksum returns checksum bytes for a file using ChecksumFunction.
func FileChecksum(path string) ([]byte, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Checksum(f)
}

// Checksum hashes everything r yields with ChecksumFunction.
func Checksum(r io.Reader) ([]byte, error) {
	if !ChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	hasher := ChecksumFunction.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}

// EncodeChecksum renders a checksum the way manifests store it.
func EncodeChecksum(sum []byte) string {
	return base64.StdEncoding.EncodeToString(sum)
}
