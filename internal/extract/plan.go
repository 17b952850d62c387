package extract

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/danmuck/warboot/internal/archive"
)

// Item is one selected entry and where it lands relative to the work directory.
type Item struct {
	Entry  string `json:"entry" yaml:"entry"`
	Dest   string `json:"dest" yaml:"dest"`
	Dir    bool   `json:"dir,omitempty" yaml:"dir,omitempty"`
	Module bool   `json:"module,omitempty" yaml:"module,omitempty"`
}

type Skipped struct {
	Entry  string `json:"entry" yaml:"entry"`
	Reason string `json:"reason" yaml:"reason"`
	Err    error  `json:"-" yaml:"-"`
}

func skip(entry string, err error) Skipped {
	return Skipped{Entry: entry, Reason: err.Error(), Err: err}
}

// Plan is the ordered extraction plan of one archive under one rule.
type Plan struct {
	Root    string    `json:"root" yaml:"root"`
	Rule    string    `json:"rule" yaml:"rule"`
	Items   []Item    `json:"items" yaml:"items"`
	Skipped []Skipped `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// BuildPlan selects entries in central directory order. Entries whose
// destination would leave root are recorded as skipped, never planned.
func BuildPlan(h *archive.Handle, rule Rule, root string) Plan {
	plan := Plan{Root: root, Rule: rule.Name}
	for _, zf := range h.Entries() {
		name := zf.Name
		if !rule.Match(name) {
			continue
		}
		if _, err := resolveDestination(root, name); err != nil {
			plan.Skipped = append(plan.Skipped, skip(name, err))
			continue
		}
		plan.Items = append(plan.Items, Item{
			Entry:  name,
			Dest:   rule.Destination(name),
			Dir:    zf.FileInfo().IsDir(),
			Module: rule.IsModule(name),
		})
	}
	return plan
}

// Modules returns absolute module paths in plan order.
func (p Plan) Modules() []string {
	var out []string
	for _, item := range p.Items {
		if item.Module && !item.Dir {
			out = append(out, filepath.Join(p.Root, filepath.FromSlash(item.Dest)))
		}
	}
	return out
}

// Files counts planned regular files.
func (p Plan) Files() int {
	n := 0
	for _, item := range p.Items {
		if !item.Dir {
			n++
		}
	}
	return n
}

func resolveDestination(root string, name string) (string, error) {
	if name == "" || path.IsAbs(name) || filepath.IsAbs(filepath.FromSlash(name)) || filepath.VolumeName(filepath.FromSlash(name)) != "" {
		return "", fmt.Errorf("%w: %q", ErrEscapesRoot, name)
	}
	dest := filepath.Join(root, filepath.FromSlash(name))
	if !Within(dest, root) || filepath.Clean(dest) == filepath.Clean(root) {
		return "", fmt.Errorf("%w: %q", ErrEscapesRoot, name)
	}
	return dest, nil
}
