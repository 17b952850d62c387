package runtime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danmuck/warboot/internal/extract"
	"github.com/rs/zerolog/log"
)

// ScriptAdapter runs the packaged application through the scripting engine.
type ScriptAdapter struct {
	workDir *extract.WorkDir
	engine  Engine

	filename string
	primary  string
}

// Configure translates settings into engine calls. "-S cmd args..." runs
// the staged bin/cmd instead of META-INF/main.rb.
func (a *ScriptAdapter) Configure(s Settings) error {
	argv := s.Argv
	dir := s.Dir

	if len(argv) > 0 && argv[0] == "-S" {
		if len(argv) < 2 || strings.TrimSpace(argv[1]) == "" {
			return fmt.Errorf("%w: -S needs a command name", ErrExecutableNotFound)
		}
		path, err := a.executable(argv[1])
		if err != nil {
			return err
		}
		a.filename = path
		a.primary = LoadScript(path)
		argv = argv[2:]
		if dir == "" {
			dir = a.workDir.Root()
		}
	} else {
		mainScript := a.workDir.Path("META-INF", "main.rb")
		if !isRegular(mainScript) {
			return fmt.Errorf("%w: %s", ErrExecutableNotFound, mainScript)
		}
		a.filename = mainScript
		a.primary = RequireScript(mainScript)
	}

	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("%w: working directory: %v", ErrConfiguration, err)
		}
		dir = cwd
	}
	home := s.Home
	if home == "" {
		home = DefaultHome
	}

	a.engine.SetArgv(argv)
	a.engine.SetCurrentDirectory(dir)
	a.engine.SetHomeDirectory(home)
	a.engine.SetEnvironment(s.Env)
	a.engine.SetNativeEnvUpdate(s.NativeEnvUpdate)
	log.Debug().Str("script", a.filename).Str("dir", dir).Strs("argv", argv).Msg("scripting runtime configured")
	return nil
}

func (a *ScriptAdapter) executable(name string) (string, error) {
	bin := a.workDir.Path("bin")
	path := filepath.Join(bin, filepath.FromSlash(name))
	if !extract.Within(path, bin) || !isRegular(path) {
		return "", fmt.Errorf("%w: %s", ErrExecutableNotFound, name)
	}
	return path, nil
}

func (a *ScriptAdapter) Run(ctx context.Context) (Outcome, error) {
	if a.filename == "" {
		return Outcome{}, fmt.Errorf("%w: scripting runtime not configured", ErrConfiguration)
	}
	runner := ScriptRunner{Engine: a.engine}
	return runner.Run(ctx, a.filename, BootstrapPrefix(a.workDir.Root()), strings.NewReader(a.primary))
}

func isRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
