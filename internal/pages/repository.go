package pages

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/binhbb2204/mangashelf/pkg/utils"
)

var (
	ErrInvalidName = errors.New("invalid page name")
	ErrIO          = errors.New("page storage failure")
)

var allowedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
}

var pageNamePattern = regexp.MustCompile(`(?i)^[a-z0-9-+]+\.[a-z]+$`)

// FileRepository stores page images under <root>/<mangaID>/<name>.
type FileRepository struct {
	root string
}

func NewFileRepository(root string) *FileRepository {
	return &FileRepository{root: root}
}

// EnsureRoot creates the storage root.
func (r *FileRepository) EnsureRoot() error {
	if err := os.MkdirAll(r.root, 0o755); err != nil {
		return fmt.Errorf("%w: create root %s: %v", ErrIO, r.root, err)
	}
	return nil
}

func (r *FileRepository) EnsureDirectory(mangaID string) error {
	dir, err := r.dir(mangaID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrIO, dir, err)
	}
	return nil
}

// WriteFile streams src into the page file. On any failure the partial file
// is removed.
func (r *FileRepository) WriteFile(mangaID, name string, src io.Reader) (int64, error) {
	path, err := r.path(mangaID, name)
	if err != nil {
		return 0, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("%w: create %s: %v", ErrIO, name, err)
	}

	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(path)
		return n, fmt.Errorf("%w: write %s: %w", ErrIO, name, copyErr)
	}
	return n, nil
}

// DeleteFile removes a page file. A missing file is not an error.
func (r *FileRepository) DeleteFile(mangaID, name string) error {
	path, err := r.path(mangaID, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: delete %s: %v", ErrIO, name, err)
	}
	return nil
}

func (r *FileRepository) DeleteDirectory(mangaID string) error {
	dir, err := r.dir(mangaID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrIO, dir, err)
	}
	return nil
}

func (r *FileRepository) dir(mangaID string) (string, error) {
	if !utils.IsValidID(mangaID) {
		return "", fmt.Errorf("%w: manga id %q", ErrInvalidName, mangaID)
	}
	return filepath.Join(r.root, strings.ToLower(mangaID)), nil
}

func (r *FileRepository) path(mangaID, name string) (string, error) {
	if !ValidPageName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	dir, err := r.dir(mangaID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ValidExtension returns the lower-cased extension of an uploaded file name if
// it is an accepted image type.
func ValidExtension(filename string) (string, bool) {
	i := strings.LastIndex(filename, ".")
	if i < 0 || i == len(filename)-1 {
		return "", false
	}
	ext := strings.ToLower(filename[i+1:])
	return ext, allowedExtensions[ext]
}

// NewPageName returns a fresh random file name with the given extension.
// It never depends on client input other than the validated extension.
func NewPageName(ext string) string {
	return utils.RandomToken() + "." + ext
}

// ValidPageName reports whether name is a safe stored page file name.
func ValidPageName(name string) bool {
	return pageNamePattern.MatchString(name)
}
