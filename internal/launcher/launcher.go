// Package launcher runs the whole bootstrap: locate the archive, stage its
// modules, build the isolated loader, and hand control to the runtime.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/danmuck/warboot/internal/archive"
	"github.com/danmuck/warboot/internal/cache"
	"github.com/danmuck/warboot/internal/config"
	"github.com/danmuck/warboot/internal/extract"
	"github.com/danmuck/warboot/internal/lifecycle"
	"github.com/danmuck/warboot/internal/loader"
	"github.com/danmuck/warboot/internal/logging"
	"github.com/danmuck/warboot/internal/observability"
	"github.com/danmuck/warboot/internal/runtime"
	"github.com/danmuck/warboot/internal/tools"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Options are the process-level inputs of one launch.
type Options struct {
	// Args is argv without the program name. Leading -Dwarboot.* overrides
	// are consumed; the rest reaches the runtime.
	Args []string
	// ArchivePath skips self-location and opens this archive instead.
	ArchivePath string
	Executable  func() (string, error)
	Lookup      config.LookupFunc
	Runner      tools.CommandRunner
	Metrics     *observability.Metrics
	Stdin       io.Reader
	Stdout      io.Writer
	Stderr      io.Writer
}

// Result is the launch outcome. Err is nil on success and when the runtime
// exited with its own status.
type Result struct {
	ExitCode int
	Err      error
	Debug    bool
	SkipExit bool
	WorkDir  string
	Reused   bool
}

func failed(err error) Result {
	return Result{ExitCode: 1, Err: err}
}

// Run executes one launch. Teardown always runs before Run returns and never
// changes the result.
func Run(ctx context.Context, opts Options) (result Result) {
	runID := uuid.NewString()
	logger := log.With().Str("run", runID).Logger()
	ctx = logger.WithContext(ctx)

	overrides, argv := config.SplitOverrides(opts.Args)
	lookup := opts.Lookup
	if lookup == nil {
		lookup = config.OSLookup
	}

	h, err := openArchive(opts)
	if err != nil {
		return failed(err)
	}
	defer h.Close()

	cfg, err := ResolveConfig(h, lookup, overrides)
	if err != nil {
		return failed(err)
	}
	if cfg.Debug {
		logging.SetDebug(true)
	}
	result.Debug = cfg.Debug
	result.SkipExit = cfg.SkipExit

	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	defer func() {
		metrics.RecordLaunch(cfg.Mode.String(), result.ExitCode)
		if cfg.MetricsFile == "" {
			return
		}
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn().Err(err).Str("path", cfg.MetricsFile).Msg("metrics textfile not written")
		}
	}()

	logger.Debug().
		Str("archive", h.Path()).
		Str("mode", cfg.Mode.String()).
		Bool("cache", cfg.Cache).
		Msg("launch configured")

	staged, err := stage(h, cfg, metrics)
	if staged.lifecycle != nil {
		defer staged.lifecycle.Teardown()
	}
	if err != nil {
		return keep(result, failed(err))
	}
	result.WorkDir = staged.workDir.Root()
	result.Reused = staged.workDir.State() == extract.StateReused

	var extra []string
	if cfg.Mode == runtime.ModeServer {
		extra = append(extra, staged.workDir.Root())
	}
	ld, err := loader.Build(staged.workDir.Root(), staged.modules, extra...)
	if err != nil {
		return keep(result, failed(err))
	}
	staged.lifecycle.Release(ld)

	// configuration problems are reported ahead of a missing java
	java, javaErr := runtime.ResolveJava(cfg.JavaHome)
	adapter, err := runtime.New(cfg.Mode, runtime.Deps{
		Archive: h,
		WorkDir: staged.workDir,
		Loader:  ld,
		JVM: runtime.JVM{
			Java:    java,
			Options: cfg.JVMArgs,
			Runner:  opts.Runner,
			Stdin:   opts.Stdin,
			Stdout:  opts.Stdout,
			Stderr:  opts.Stderr,
		},
	})
	if err != nil {
		return keep(result, failed(err))
	}
	if err := adapter.Configure(cfg.Settings(argv)); err != nil {
		return keep(result, failed(err))
	}
	if javaErr != nil {
		return keep(result, failed(javaErr))
	}

	outcome, err := adapter.Run(ctx)
	if err != nil {
		logger.Debug().Err(runtime.RootCause(err)).Msg("runtime failed")
		return keep(result, failed(err))
	}
	result.ExitCode = outcome.ExitCode()
	logger.Debug().Int("exit_code", result.ExitCode).Bool("present", outcome.Present).Msg("runtime finished")
	return result
}

// keep carries the resolved flags onto a failure result.
func keep(base Result, r Result) Result {
	r.Debug = base.Debug
	r.SkipExit = base.SkipExit
	r.WorkDir = base.WorkDir
	r.Reused = base.Reused
	return r
}

func openArchive(opts Options) (*archive.Handle, error) {
	if opts.ArchivePath != "" {
		return archive.Open(opts.ArchivePath)
	}
	return archive.Locator{Executable: opts.Executable}.Locate()
}

// ResolveConfig reads the packaged manifest, if any, and layers the
// environment and overrides over it.
func ResolveConfig(h *archive.Handle, lookup config.LookupFunc, overrides map[string]string) (config.Config, error) {
	manifest := config.Manifest{}
	data, err := h.ReadEntry(config.ManifestEntry)
	switch {
	case err == nil:
		manifest, err = config.ParseManifest(data)
		if err != nil {
			return config.Config{}, err
		}
	case errors.Is(err, archive.ErrEntryNotFound):
	default:
		return config.Config{}, fmt.Errorf("%w: %v", config.ErrManifest, err)
	}
	return config.Resolve(manifest, lookup, overrides)
}

type staging struct {
	workDir   *extract.WorkDir
	modules   []string
	lifecycle *lifecycle.Lifecycle
}

// stage produces the work directory and its module list. The lifecycle is
// armed as soon as a directory exists, even when a later step fails.
func stage(h *archive.Handle, cfg config.Config, metrics *observability.Metrics) (staging, error) {
	rule := cfg.Rule()
	extractor := extract.Extractor{Metrics: metrics}

	if !cfg.Cache {
		wd, err := extract.NewWorkDir("warboot")
		if err != nil {
			return staging{}, err
		}
		s := staging{workDir: wd, lifecycle: lifecycle.New(wd, lifecycle.Options{Metrics: metrics})}
		plan, err := extractor.Extract(h, rule, wd)
		if err != nil {
			return s, err
		}
		s.modules = plan.Modules()
		return s, nil
	}

	c, err := cache.New(cfg.CacheDir, metrics)
	if err != nil {
		return staging{}, err
	}
	fp := cache.FingerprintOf(h)
	wd, hit, err := c.Lookup(fp, rule.Name)
	if err != nil {
		return staging{}, err
	}
	if hit {
		s := staging{workDir: wd, lifecycle: lifecycle.New(wd, lifecycle.Options{KeepDir: true, Metrics: metrics})}
		s.modules, err = cache.Rescan(wd, rule)
		return s, err
	}

	wd, err = c.Prepare(fp, rule.Name)
	if err != nil {
		return staging{}, err
	}
	s := staging{workDir: wd, lifecycle: lifecycle.New(wd, lifecycle.Options{KeepDir: true, Metrics: metrics})}
	start := time.Now()
	plan, err := extractor.Extract(h, rule, wd)
	if err != nil {
		return s, err
	}
	if err := c.Store(fp, h, plan); err != nil {
		return s, err
	}
	log.Debug().Str("fingerprint", string(fp)).Dur("duration", time.Since(start)).Msg("cache populated")
	s.modules = plan.Modules()
	return s, nil
}
