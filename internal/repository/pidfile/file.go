package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/twpayne/go-vfs"
)

// fileMode matches the permissions the original shell redirection produced.
const fileMode os.FileMode = 0o644

var (
	// ErrNotFound is returned when no pid file exists.
	ErrNotFound = errors.New("pid file not found")
	// ErrMalformed is returned when the pid file does not hold a positive integer.
	ErrMalformed = errors.New("malformed pid file")
)

// Repository defines persistence operations for the instance pid.
type Repository interface {
	Load() (int, error)
	Save(pid int) error
	Remove() error
}

// FileRepository stores the pid at a host path.
type FileRepository struct {
	// fs is the host filesystem.
	fs vfs.FS
	// path is the host path of the pid file.
	path string
}

// NewFileRepository creates a repository that reads and writes the pid at path.
func NewFileRepository(fs vfs.FS, path string) *FileRepository {
	return &FileRepository{
		fs:   fs,
		path: path,
	}
}

// Path returns the host path of the pid file.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the pid from disk.
func (r *FileRepository) Load() (int, error) {
	contents, err := r.fs.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}

		return 0, fmt.Errorf("read pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%s: %q: %w", r.path, strings.TrimSpace(string(contents)), ErrMalformed)
	}

	return pid, nil
}

// Save writes pid atomically.
func (r *FileRepository) Save(pid int) error {
	tmp := path.Join(path.Dir(r.path), "."+path.Base(r.path)+"-"+uuid.NewString())

	if err := r.fs.WriteFile(tmp, []byte(strconv.Itoa(pid)+"\n"), fileMode); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}

	if err := r.fs.Rename(tmp, r.path); err != nil {
		_ = r.fs.Remove(tmp)

		return fmt.Errorf("replace pid file: %w", err)
	}

	return nil
}

// Remove deletes the pid file. A missing file is not an error.
func (r *FileRepository) Remove() error {
	if err := r.fs.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file: %w", err)
	}

	return nil
}
