package runtime

import (
	"context"
	"fmt"

	"github.com/danmuck/warboot/internal/archive"
	"github.com/danmuck/warboot/internal/extract"
	"github.com/danmuck/warboot/internal/loader"
)

// Adapter is one wrapped runtime: configured once, then run to completion.
type Adapter interface {
	Configure(Settings) error
	Run(ctx context.Context) (Outcome, error)
}

// ClassLoader is the part of the isolated loader an adapter may use.
type ClassLoader interface {
	Load(name string) (loader.Class, error)
	Classpath() string
}

// Settings is the generic configuration translated into native calls.
type Settings struct {
	Argv         []string
	Dir          string
	Home         string
	Env          map[string]string
	Port         int
	Host         string
	ServerConfig string
	// NativeEnvUpdate lets the engine manage Ruby environment variables
	// itself. The launcher leaves it off.
	NativeEnvUpdate bool
}

// Deps are the values an adapter runs against.
type Deps struct {
	Archive *archive.Handle
	WorkDir *extract.WorkDir
	Loader  ClassLoader
	JVM     JVM
	// Engine overrides the default JRuby engine in scripting mode.
	Engine Engine
}

// New selects the adapter for mode.
func New(mode Mode, deps Deps) (Adapter, error) {
	if deps.WorkDir == nil || deps.Loader == nil {
		return nil, fmt.Errorf("%w: adapter needs a work directory and loader", ErrConfiguration)
	}
	switch mode {
	case ModeScripting:
		engine := deps.Engine
		if engine == nil {
			engine = NewJVMEngine(deps.JVM, deps.Loader.Classpath())
		}
		return &ScriptAdapter{workDir: deps.WorkDir, engine: engine}, nil
	case ModeServer:
		if deps.Archive == nil {
			return nil, fmt.Errorf("%w: server mode needs the archive", ErrConfiguration)
		}
		return &ServerAdapter{archive: deps.Archive, workDir: deps.WorkDir, loader: deps.Loader, jvm: deps.JVM}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}
}
