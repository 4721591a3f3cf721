package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
)

// LocalService keeps images in a directory, keyed by their original filename.
// Saving an existing name overwrites it.
type LocalService struct {
	fs        afero.Fs
	urlPrefix string
}

// NewLocalService roots storage at dir on the OS filesystem.
func NewLocalService(dir, urlPrefix string) (*LocalService, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return NewLocalServiceFs(afero.NewBasePathFs(afero.NewOsFs(), dir), urlPrefix), nil
}

// NewLocalServiceFs stores images on an arbitrary afero filesystem.
func NewLocalServiceFs(fs afero.Fs, urlPrefix string) *LocalService {
	if urlPrefix == "" {
		urlPrefix = "/images"
	}
	return &LocalService{fs: fs, urlPrefix: urlPrefix}
}

func (s *LocalService) Save(ctx context.Context, name, _ string, body io.Reader) (string, error) {
	clean := CleanName(name)
	if clean == "" {
		return "", fmt.Errorf("invalid file name %q", name)
	}

	f, err := s.fs.OpenFile(clean, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create file %s: %w", clean, err)
	}
	_, err = io.Copy(f, body)
	closeErr := f.Close()
	if err != nil {
		return "", fmt.Errorf("write file %s: %w", clean, err)
	}
	if closeErr != nil {
		return "", fmt.Errorf("close file %s: %w", clean, closeErr)
	}

	return s.urlPrefix + "/" + clean, nil
}

func (s *LocalService) Delete(ctx context.Context, name string) error {
	clean := CleanName(name)
	if clean == "" {
		return fmt.Errorf("invalid file name %q", name)
	}
	if err := s.fs.Remove(clean); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove file %s: %w", clean, err)
	}
	return nil
}

var _ Service = (*LocalService)(nil)
