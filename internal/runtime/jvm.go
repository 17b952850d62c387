package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"sort"
	"strings"

	"github.com/danmuck/warboot/internal/tools"
	"github.com/rs/zerolog/log"
)

const (
	// ScriptingMainClass is the JRuby command line entry point.
	ScriptingMainClass = "org.jruby.Main"
	// DefaultHome points JRuby at the home tree bundled in its own jar.
	DefaultHome = "uri:classloader:/META-INF/jruby.home"
)

// managedEnv are variables the launcher sets itself through the bootstrap
// script; inherited values are dropped unless native env update is enabled.
var managedEnv = []string{"GEM_HOME", "GEM_PATH", "BUNDLE_GEMFILE", "RUBYOPT"}

// ResolveJava finds the java binary, preferring javaHome when set.
func ResolveJava(javaHome string) (string, error) {
	name := "java"
	if goruntime.GOOS == "windows" {
		name = "java.exe"
	}
	if javaHome != "" {
		candidate := filepath.Join(javaHome, "bin", name)
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			return "", fmt.Errorf("%w: %s", ErrRuntimeNotFound, candidate)
		}
		return candidate, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRuntimeNotFound, err)
	}
	return path, nil
}

// Invocation is one child JVM launch.
type Invocation struct {
	Classpath   string
	SystemProps map[string]string
	MainClass   string
	Args        []string
	Dir         string
	Env         []string
}

// JVM starts child JVMs through a CommandRunner.
type JVM struct {
	Java    string
	Options []string
	Runner  tools.CommandRunner
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
}

// Command renders the invocation as a process description. System
// properties are emitted in key order so command lines are reproducible.
func (j JVM) Command(inv Invocation) tools.Command {
	args := make([]string, 0, len(j.Options)+len(inv.SystemProps)+len(inv.Args)+3)
	args = append(args, j.Options...)
	args = append(args, "-cp", inv.Classpath)
	keys := make([]string, 0, len(inv.SystemProps))
	for key := range inv.SystemProps {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		args = append(args, "-D"+key+"="+inv.SystemProps[key])
	}
	args = append(args, inv.MainClass)
	args = append(args, inv.Args...)

	stdin, stdout, stderr := j.Stdin, j.Stdout, j.Stderr
	if stdin == nil {
		stdin = os.Stdin
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return tools.Command{
		Path:   j.Java,
		Args:   args,
		Dir:    inv.Dir,
		Env:    inv.Env,
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
	}
}

// Invoke blocks until the child exits. A non-zero status is returned as
// *ExitError; failing to start or being killed is an *InvocationError.
func (j JVM) Invoke(ctx context.Context, inv Invocation) error {
	if j.Java == "" {
		return &InvocationError{Cause: ErrRuntimeNotFound}
	}
	runner := j.Runner
	if runner == nil {
		runner = tools.ExecRunner{}
	}
	cmd := j.Command(inv)
	log.Debug().
		Str("java", cmd.Path).
		Str("main_class", inv.MainClass).
		Str("dir", cmd.Dir).
		Int("args", len(inv.Args)).
		Msg("starting jvm")

	code, err := runner.Run(ctx, cmd)
	if err != nil {
		return &InvocationError{Cause: err}
	}
	if code != 0 {
		return &ExitError{Status: code}
	}
	return nil
}

// ChildEnv builds the child environment from base. CLASSPATH is always
// dropped; managed Ruby variables are dropped unless keepManaged is set.
// Overrides are applied last in key order.
func ChildEnv(base []string, keepManaged bool, overrides map[string]string) []string {
	drop := map[string]bool{"CLASSPATH": true}
	if !keepManaged {
		for _, key := range managedEnv {
			drop[key] = true
		}
	}
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if drop[key] {
			continue
		}
		if _, ok := overrides[key]; ok {
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		out = append(out, key+"="+overrides[key])
	}
	return out
}

// JVMEngine runs JRuby scripts in a child JVM.
type JVMEngine struct {
	JVM       JVM
	Classpath string
	BaseEnv   []string

	argv      []string
	dir       string
	home      string
	env       map[string]string
	nativeEnv bool
}

func NewJVMEngine(jvm JVM, classpath string) *JVMEngine {
	return &JVMEngine{JVM: jvm, Classpath: classpath, home: DefaultHome, nativeEnv: true}
}

func (e *JVMEngine) SetArgv(argv []string) {
	e.argv = append([]string(nil), argv...)
}

func (e *JVMEngine) SetCurrentDirectory(dir string) { e.dir = dir }

func (e *JVMEngine) SetHomeDirectory(home string) { e.home = home }

func (e *JVMEngine) SetEnvironment(env map[string]string) {
	e.env = make(map[string]string, len(env))
	for key, value := range env {
		e.env[key] = value
	}
}

func (e *JVMEngine) SetNativeEnvUpdate(enabled bool) { e.nativeEnv = enabled }

// Invocation renders the JRuby launch for script without starting it.
func (e *JVMEngine) Invocation(script string) Invocation {
	base := e.BaseEnv
	if base == nil {
		base = os.Environ()
	}
	home := e.home
	if home == "" {
		home = DefaultHome
	}
	// "--" ends JRuby option parsing so argv lands in ARGV verbatim
	args := make([]string, 0, len(e.argv)+3)
	args = append(args, "-e", script, "--")
	args = append(args, e.argv...)
	return Invocation{
		Classpath:   e.Classpath,
		SystemProps: map[string]string{"jruby.home": home},
		MainClass:   ScriptingMainClass,
		Args:        args,
		Dir:         e.dir,
		Env:         ChildEnv(base, e.nativeEnv, e.env),
	}
}

func (e *JVMEngine) RunScript(ctx context.Context, filename string, script io.Reader) error {
	source, err := io.ReadAll(script)
	if err != nil {
		return &InvocationError{Cause: fmt.Errorf("read %s: %w", filename, err)}
	}
	log.Debug().Str("script", filename).Int("bytes", len(source)).Msg("running bootstrap script")
	err = e.JVM.Invoke(ctx, e.Invocation(string(source)))
	if err != nil && errors.Is(err, context.Canceled) {
		log.Warn().Str("script", filename).Msg("script interrupted")
	}
	return err
}
