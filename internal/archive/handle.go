package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Handle is an opened archive. It is resolved once per process and never mutated.
type Handle struct {
	path    string
	size    int64
	modTime time.Time

	file   *os.File
	reader *zip.Reader
	files  []*zip.File
	index  map[string]*zip.File
}

// Open opens an explicit archive path. Launcher binaries prepended to the
// ZIP data are tolerated.
func Open(path string) (*Handle, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, path, err)
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrOpen, abs)
	}
	zr, err := zip.NewReader(f, info.Size())
	// containment is enforced per entry by the extractor
	if errors.Is(err, zip.ErrInsecurePath) && zr != nil {
		err = nil
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, abs, err)
	}

	h := &Handle{
		path:    abs,
		size:    info.Size(),
		modTime: info.ModTime(),
		file:    f,
		reader:  zr,
		files:   make([]*zip.File, 0, len(zr.File)),
		index:   make(map[string]*zip.File, len(zr.File)),
	}
	for _, zf := range zr.File {
		// first occurrence wins for duplicated names
		if _, dup := h.index[zf.Name]; dup {
			continue
		}
		h.index[zf.Name] = zf
		h.files = append(h.files, zf)
	}
	return h, nil
}

func (h *Handle) Path() string       { return h.path }
func (h *Handle) Size() int64        { return h.size }
func (h *Handle) ModTime() time.Time { return h.modTime }

// Entries returns the archive members in central directory order.
func (h *Handle) Entries() []*zip.File {
	out := make([]*zip.File, len(h.files))
	copy(out, h.files)
	return out
}

func (h *Handle) Entry(name string) (*zip.File, bool) {
	zf, ok := h.index[name]
	return zf, ok
}

func (h *Handle) OpenEntry(name string) (io.ReadCloser, error) {
	zf, ok := h.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	return zf.Open()
}

// OpenURI opens an entry addressed by its nested URI. The URI must name this archive.
func (h *Handle) OpenURI(uri string) (io.ReadCloser, error) {
	container, entry, err := ParseEntryURI(uri)
	if err != nil {
		return nil, err
	}
	if filepath.Clean(container) != h.path {
		return nil, fmt.Errorf("%w: %s", ErrForeignURI, container)
	}
	return h.OpenEntry(entry)
}

func (h *Handle) ReadEntry(name string) ([]byte, error) {
	rc, err := h.OpenEntry(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// URI returns the nested URI of one entry of this archive.
func (h *Handle) URI(entry string) string {
	return EntryURI(h.path, entry)
}

func (h *Handle) Close() error {
	if h == nil || h.file == nil {
		return nil
	}
	err := h.file.Close()
	h.file = nil
	return err
}
