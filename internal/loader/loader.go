// Package loader builds the isolated code set handed to a wrapped runtime.
//
// A Loader sees exactly the module files it was built from (plus optional
// class directories); no ambient search path such as CLASSPATH is consulted.
package loader

import (
	"archive/zip"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/danmuck/warboot/internal/extract"
)

var (
	ErrInvalidModule = errors.New("loader: invalid module")
	ErrClassNotFound = errors.New("loader: class not found")
	ErrInvalidClass  = errors.New("loader: invalid class name")
	ErrClosed        = errors.New("loader: closed")
)

// Class is a resolved entry point: which module (or directory) provides it.
type Class struct {
	Name   string
	Source string
	Entry  string
}

type Loader struct {
	root    string
	modules []string
	dirs    []string

	mu      sync.Mutex
	closed  bool
	readers map[string]*zip.ReadCloser
	indexes map[string]map[string]struct{}
}

// Build checks that every module is a regular file and every extra entry a
// directory, all under root, and keeps them in the given order.
func Build(root string, modules []string, dirs ...string) (*Loader, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	l := &Loader{
		root:    absRoot,
		readers: make(map[string]*zip.ReadCloser),
		indexes: make(map[string]map[string]struct{}),
	}
	for _, m := range modules {
		abs, err := l.contained(m)
		if err != nil {
			return nil, err
		}
		info, err := os.Lstat(abs)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidModule, err)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("%w: %s is not a regular file", ErrInvalidModule, abs)
		}
		l.modules = append(l.modules, abs)
	}
	for _, d := range dirs {
		abs, err := l.contained(d)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidModule, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidModule, abs)
		}
		l.dirs = append(l.dirs, abs)
	}
	return l, nil
}

func (l *Loader) contained(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	if !extract.Within(abs, l.root) {
		return "", fmt.Errorf("%w: %s outside %s", ErrInvalidModule, abs, l.root)
	}
	return abs, nil
}

func (l *Loader) Root() string { return l.root }

func (l *Loader) Modules() []string {
	out := make([]string, len(l.modules))
	copy(out, l.modules)
	return out
}

// Classpath lists modules, then directories, joined for the host platform.
func (l *Loader) Classpath() string {
	parts := make([]string, 0, len(l.modules)+len(l.dirs))
	parts = append(parts, l.modules...)
	parts = append(parts, l.dirs...)
	return strings.Join(parts, string(os.PathListSeparator))
}

// Load resolves a dotted class name to the first source providing it.
func (l *Loader) Load(name string) (Class, error) {
	entry, err := classEntry(name)
	if err != nil {
		return Class{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return Class{}, ErrClosed
	}
	for _, module := range l.modules {
		index, err := l.indexLocked(module)
		if err != nil {
			return Class{}, err
		}
		if _, ok := index[entry]; ok {
			return Class{Name: name, Source: module, Entry: entry}, nil
		}
	}
	for _, dir := range l.dirs {
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(entry)))
		if err == nil && info.Mode().IsRegular() {
			return Class{Name: name, Source: dir, Entry: entry}, nil
		}
	}
	return Class{}, fmt.Errorf("%w: %s", ErrClassNotFound, name)
}

func (l *Loader) indexLocked(module string) (map[string]struct{}, error) {
	if index, ok := l.indexes[module]; ok {
		return index, nil
	}
	rc, err := zip.OpenReader(module)
	if err != nil && !(errors.Is(err, zip.ErrInsecurePath) && rc != nil) {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidModule, module, err)
	}
	index := make(map[string]struct{}, len(rc.File))
	for _, f := range rc.File {
		index[f.Name] = struct{}{}
	}
	l.readers[module] = rc
	l.indexes[module] = index
	return index, nil
}

// Close releases every opened module. It is safe to call more than once.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	var errs []error
	for module, rc := range l.readers {
		if err := rc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", module, err))
		}
	}
	l.readers = nil
	return errors.Join(errs...)
}

func classEntry(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, "/\\ ") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidClass, name)
	}
	return strings.ReplaceAll(name, ".", "/") + ".class", nil
}
