package runtime

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Outcome is numeric-or-absent. An absent outcome means the script finished
// without raising the exit signal.
type Outcome struct {
	Status  int
	Present bool
}

func (o Outcome) ExitCode() int {
	if !o.Present {
		return 0
	}
	return o.Status
}

// Engine is the narrow scripting contract the adapters configure.
type Engine interface {
	SetArgv(argv []string)
	SetCurrentDirectory(dir string)
	SetHomeDirectory(home string)
	SetEnvironment(env map[string]string)
	SetNativeEnvUpdate(enabled bool)
	// RunScript returns nil on normal completion and *ExitError when the
	// script exits with a status.
	RunScript(ctx context.Context, filename string, script io.Reader) error
}

// Mode selects the runtime adapter.
type Mode int

const (
	ModeScripting Mode = iota
	ModeServer
)

func (m Mode) String() string {
	switch m {
	case ModeScripting:
		return "scripting"
	case ModeServer:
		return "server"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "scripting", "script", "jruby":
		return ModeScripting, nil
	case "server", "webserver", "web":
		return ModeServer, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, raw)
	}
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
