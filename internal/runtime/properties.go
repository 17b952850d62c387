package runtime

import (
	"fmt"
	"strings"

	"github.com/magiconair/properties"
)

// Tokens are the template values substituted into webserver.properties.
type Tokens struct {
	Warfile string
	Webroot string
	Port    string
	Host    string
	Config  string
}

func (t Tokens) replacer() *strings.Replacer {
	return strings.NewReplacer(
		"{{warfile}}", t.Warfile,
		"{{webroot}}", t.Webroot,
		"{{port}}", t.Port,
		"{{host}}", t.Host,
		"{{config}}", t.Config,
	)
}

// Substitute replaces every recognized token in s.
func (t Tokens) Substitute(s string) string {
	return t.replacer().Replace(s)
}

// ServerPlan is a resolved server launch.
type ServerPlan struct {
	MainClass   string            `json:"main_class" yaml:"main_class"`
	Args        []string          `json:"args" yaml:"args"`
	SystemProps map[string]string `json:"system_props,omitempty" yaml:"system_props,omitempty"`
}

// LoadServerProperties parses a webserver.properties resource. Property
// expansion is off so template tokens survive untouched.
func LoadServerProperties(data []byte) (*properties.Properties, error) {
	l := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := l.LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: webserver.properties: %v", ErrConfiguration, err)
	}
	return p, nil
}

// ResolveServer substitutes tokens into every value, then builds argv from
// the keys listed in "args" (missing keys give "") followed by userArgs, and
// the JVM properties named by "props".
func ResolveServer(p *properties.Properties, tokens Tokens, userArgs []string) (ServerPlan, error) {
	if p == nil {
		p = properties.NewProperties()
	}
	r := tokens.replacer()
	values := make(map[string]string, p.Len())
	for _, key := range p.Keys() {
		raw, _ := p.Get(key)
		values[key] = r.Replace(raw)
	}

	mainClass := strings.TrimSpace(values["mainclass"])
	if mainClass == "" {
		return ServerPlan{}, fmt.Errorf("%w: webserver.properties is missing 'mainclass'", ErrConfiguration)
	}

	plan := ServerPlan{MainClass: mainClass}
	if listed, ok := values["args"]; ok {
		for _, key := range splitKeys(listed) {
			plan.Args = append(plan.Args, values[key])
		}
	}
	plan.Args = append(plan.Args, userArgs...)

	if listed, ok := values["props"]; ok {
		for _, key := range splitKeys(listed) {
			value, ok := values[key]
			if !ok {
				continue
			}
			if plan.SystemProps == nil {
				plan.SystemProps = make(map[string]string)
			}
			plan.SystemProps[key] = value
		}
	}
	return plan, nil
}

func splitKeys(list string) []string {
	var keys []string
	for _, key := range strings.Split(list, ",") {
		key = strings.TrimSpace(key)
		if key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}
