package storage

import (
	"context"
	"io"
	"path"
	"strings"
)

// Service stores uploaded item images.
type Service interface {
	// Save writes body under name and returns the location recorded on the item.
	Save(ctx context.Context, name, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, name string) error
}

// CleanName reduces an uploaded filename to its base name so it cannot
// escape the storage root. It returns "" when nothing usable is left.
func CleanName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), `\`, "/")
	base := path.Base(name)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}
