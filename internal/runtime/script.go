package runtime

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var rubyQuoter = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// rubyString renders s as a single-quoted Ruby literal.
func rubyString(s string) string {
	return "'" + rubyQuoter.Replace(s) + "'"
}

// BootstrapPrefix is the environment setup run ahead of application code.
// The init require is omitted when the staged tree has no init.rb.
func BootstrapPrefix(root string) string {
	gems := filepath.Join(root, "META-INF", "gems")
	gemfile := filepath.Join(root, "Gemfile")
	initPath := filepath.Join(root, "META-INF", "init.rb")

	var b strings.Builder
	b.WriteString("ENV['GEM_HOME'] = ENV['GEM_PATH'] = " + rubyString(filepath.ToSlash(gems)) + "\n")
	b.WriteString("ENV['BUNDLE_GEMFILE'] ||= " + rubyString(filepath.ToSlash(gemfile)) + "\n")
	if info, err := os.Stat(initPath); err == nil && info.Mode().IsRegular() {
		b.WriteString("require " + rubyString(filepath.ToSlash(initPath)) + "\n")
	}
	return b.String()
}

// RequireScript is a primary script that loads one file.
func RequireScript(path string) string {
	return "require " + rubyString(filepath.ToSlash(path)) + "\n"
}

// LoadScript is a primary script that runs path as the program itself, so
// $0, __FILE__ and __dir__ name the file rather than the -e source.
func LoadScript(path string) string {
	quoted := rubyString(filepath.ToSlash(path))
	return "$0 = " + quoted + "\nload " + quoted + "\n"
}

// ScriptRunner submits prefix and primary source to the engine as one unit.
type ScriptRunner struct {
	Engine Engine
}

func (r ScriptRunner) Run(ctx context.Context, filename string, prefix string, primary io.Reader) (Outcome, error) {
	if !strings.HasSuffix(prefix, "\n") && prefix != "" {
		prefix += "\n"
	}
	script := io.MultiReader(strings.NewReader(prefix), primary)
	return outcomeOf(r.Engine.RunScript(ctx, filename, script))
}
