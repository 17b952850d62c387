package extract

import (
	"fmt"
	"path"
	"slices"
	"strings"
)

const (
	DefaultModulePrefix = "META-INF/lib/"
	DefaultModuleSuffix = ".jar"

	ServerPropertiesEntry = "WEB-INF/webserver.properties"
	ServerJarEntry        = "WEB-INF/webserver.jar"
	ServerConfigEntry     = "WEB-INF/webserver.xml"
)

// DefaultStaged lists the non-module resources a scripting archive needs on disk.
var DefaultStaged = []string{
	"META-INF/init.rb",
	"META-INF/main.rb",
	"META-INF/gems/",
	"bin/",
}

// Rule decides which entries are staged and which of them are loader modules.
// A rule with Names matches exactly those entries and nothing else.
type Rule struct {
	Name   string
	Prefix string
	Suffix string
	Names  []string
	// Staged are extra exact names, or prefixes when ending in "/", copied
	// alongside the modules without becoming modules themselves.
	Staged []string
}

func ScriptingRule(prefix string, suffix string, staged []string) Rule {
	if prefix == "" {
		prefix = DefaultModulePrefix
	}
	if suffix == "" {
		suffix = DefaultModuleSuffix
	}
	if staged == nil {
		staged = DefaultStaged
	}
	return Rule{Name: "scripting", Prefix: prefix, Suffix: suffix, Staged: slices.Clone(staged)}
}

func ServerRule() Rule {
	return Rule{
		Name:   "server",
		Suffix: DefaultModuleSuffix,
		Names:  []string{ServerPropertiesEntry, ServerJarEntry},
	}
}

func (r Rule) Validate() error {
	if len(r.Names) == 0 && r.Prefix == "" && len(r.Staged) == 0 {
		return fmt.Errorf("%w: %q selects nothing", ErrInvalidRule, r.Name)
	}
	return nil
}

// Match reports whether an entry name is selected by the rule.
func (r Rule) Match(name string) bool {
	if len(r.Names) > 0 {
		return slices.Contains(r.Names, name)
	}
	if r.IsModule(name) {
		return true
	}
	if strings.HasSuffix(name, "/") && r.Prefix != "" && strings.HasPrefix(name, r.Prefix) {
		return true
	}
	for _, staged := range r.Staged {
		if strings.HasSuffix(staged, "/") {
			if strings.HasPrefix(name, staged) {
				return true
			}
			continue
		}
		if name == staged {
			return true
		}
	}
	return false
}

// IsModule reports whether a selected name is an embeddable module. Names are
// slash separated and relative to the archive (or work directory) root.
func (r Rule) IsModule(name string) bool {
	if strings.HasSuffix(name, "/") {
		return false
	}
	if len(r.Names) > 0 {
		return slices.Contains(r.Names, name) && strings.HasSuffix(name, r.Suffix)
	}
	return r.Prefix != "" && strings.HasPrefix(name, r.Prefix) && strings.HasSuffix(name, r.Suffix)
}

// Destination maps an entry name to its work-directory relative path.
func (r Rule) Destination(name string) string {
	return path.Clean(strings.TrimSuffix(name, "/"))
}
