package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// DefaultMarker is the launch manifest packed into every launchable archive.
const DefaultMarker = "META-INF/warboot.toml"

// Locator resolves the archive the current process is executing from.
// It never consults argv or the working directory.
type Locator struct {
	Executable func() (string, error)
	Marker     string
}

func (l Locator) Locate() (*Handle, error) {
	executable := l.Executable
	if executable == nil {
		executable = os.Executable
	}
	marker := l.Marker
	if marker == "" {
		marker = DefaultMarker
	}

	path, err := executable()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLocate, err)
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}

	h, err := Open(path)
	if err != nil {
		if errors.Is(err, ErrOpen) {
			return nil, fmt.Errorf("%w: %s is not a packaged archive: %v", ErrLocate, path, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrLocate, err)
	}
	if _, ok := h.Entry(marker); !ok {
		h.Close()
		return nil, fmt.Errorf("%w: marker %s not found in %s", ErrLocate, marker, path)
	}
	log.Debug().Str("archive", h.Path()).Int64("size", h.Size()).Msg("archive located")
	return h, nil
}
