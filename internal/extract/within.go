package extract

import (
	"os"
	"path/filepath"
	"strings"
)

// Within reports whether path is root or a descendant of root, lexically.
func Within(path string, root string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, ".."+string(os.PathSeparator)) && rel != "..")
}

// TempRoot is the host's designated temp area with symlinks resolved.
func TempRoot() string {
	tmp := os.TempDir()
	if resolved, err := filepath.EvalSymlinks(tmp); err == nil {
		return resolved
	}
	return filepath.Clean(tmp)
}
