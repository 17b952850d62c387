package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

type State int

const (
	StateFresh State = iota
	StateReused
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateReused:
		return "reused"
	case StateTornDown:
		return "torn-down"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// WorkDir is the single private extraction target of one launcher process.
type WorkDir struct {
	root  string
	state State
}

// NewWorkDir creates a fresh, uniquely named directory in the temp area.
func NewWorkDir(prefix string) (*WorkDir, error) {
	if prefix == "" {
		prefix = "warboot"
	}
	root := filepath.Join(TempRoot(), prefix+"-"+uuid.NewString())
	if err := os.Mkdir(root, 0o700); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrWorkDirExists, root)
		}
		return nil, fmt.Errorf("%w: create work directory: %v", ErrExtraction, err)
	}
	return &WorkDir{root: root, state: StateFresh}, nil
}

// AdoptWorkDir wraps an existing directory, e.g. one recovered by the cache.
// The root must live inside the temp area.
func AdoptWorkDir(root string, state State) (*WorkDir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	if !Within(abs, TempRoot()) || abs == TempRoot() {
		return nil, fmt.Errorf("%w: %s", ErrOutsideTemp, abs)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrExtraction, abs)
	}
	return &WorkDir{root: abs, state: state}, nil
}

func (w *WorkDir) Root() string  { return w.root }
func (w *WorkDir) State() State  { return w.state }
func (w *WorkDir) MarkTornDown() { w.state = StateTornDown }

// Path joins slash-separated relative names onto the root.
func (w *WorkDir) Path(rel ...string) string {
	parts := make([]string, 0, len(rel)+1)
	parts = append(parts, w.root)
	for _, r := range rel {
		parts = append(parts, filepath.FromSlash(r))
	}
	return filepath.Join(parts...)
}
