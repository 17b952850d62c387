// Package lifecycle tears down a launcher run exactly once: loader resources
// are released and the work directory is removed without following links.
package lifecycle

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/danmuck/warboot/internal/extract"
	"github.com/danmuck/warboot/internal/observability"
	"github.com/rs/zerolog/log"
)

var ErrLifecycle = errors.New("lifecycle: teardown failed")

type State int

const (
	StateArmed State = iota
	StateFired
)

func (s State) String() string {
	if s == StateFired {
		return "fired"
	}
	return "armed"
}

type Options struct {
	// KeepDir leaves the work directory in place, for cached extractions.
	KeepDir bool
	Metrics *observability.Metrics
}

type Lifecycle struct {
	workDir *extract.WorkDir
	opts    Options

	mu      sync.Mutex
	state   State
	closers []io.Closer
	once    sync.Once
	err     error
}

// New arms teardown for wd. Callers defer Teardown right after the work
// directory exists.
func New(wd *extract.WorkDir, opts Options) *Lifecycle {
	return &Lifecycle{workDir: wd, opts: opts}
}

// Release registers c to be closed at teardown, in reverse order.
func (l *Lifecycle) Release(c io.Closer) {
	if c == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateFired {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("late release failed")
		}
		return
	}
	l.closers = append(l.closers, c)
}

func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Teardown runs once. Failures are logged and returned for inspection, but
// callers must not let them change the launch result.
func (l *Lifecycle) Teardown() error {
	l.once.Do(func() {
		l.mu.Lock()
		closers := l.closers
		l.closers = nil
		l.state = StateFired
		l.mu.Unlock()

		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if l.workDir != nil {
			if l.opts.KeepDir {
				log.Debug().Str("root", l.workDir.Root()).Msg("keeping cached work directory")
			} else {
				if err := RemoveTree(l.workDir.Root()); err != nil {
					errs = append(errs, err)
				}
				l.workDir.MarkTornDown()
			}
		}
		if len(errs) > 0 {
			l.err = fmt.Errorf("%w: %w", ErrLifecycle, errors.Join(errs...))
			l.opts.Metrics.RecordTeardownFailure()
			log.Warn().Err(l.err).Msg("teardown incomplete")
			return
		}
		log.Debug().Msg("teardown complete")
	})
	return l.err
}

// RemoveTree deletes root bottom-up. A symlink, or any entry whose canonical
// path differs from its lexical one, is removed as a link and never entered.
func RemoveTree(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	info, err := os.Lstat(abs)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return os.Remove(abs)
	}
	return removeTree(abs, info)
}

func removeTree(path string, info os.FileInfo) error {
	if !info.IsDir() || !canonical(path) {
		return os.Remove(path)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}
	var errs []error
	for _, entry := range entries {
		child := filepath.Join(path, entry.Name())
		childInfo, err := os.Lstat(child)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if childInfo.Mode()&os.ModeSymlink != 0 {
			if err := os.Remove(child); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err := removeTree(child, childInfo); err != nil {
			errs = append(errs, err)
		}
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// canonical reports whether path resolves to itself once its parent's own
// links are accounted for.
func canonical(path string) bool {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return false
	}
	parent, err := filepath.EvalSymlinks(filepath.Dir(path))
	if err != nil {
		return false
	}
	return filepath.Join(parent, filepath.Base(path)) == resolved
}
