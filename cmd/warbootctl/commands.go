package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/warboot/internal/cache"
	"github.com/danmuck/warboot/internal/config"
	"github.com/danmuck/warboot/internal/extract"
	"github.com/danmuck/warboot/internal/launcher"
	"github.com/danmuck/warboot/internal/runtime"
	"github.com/spf13/cobra"
)

// planRoot stands in for the work directory, which only exists at launch.
const planRoot = "<workdir>"

type planView struct {
	Archive string       `json:"archive" yaml:"archive"`
	Mode    runtime.Mode `json:"mode" yaml:"mode"`
	extract.Plan `yaml:",inline"`
}

func newPlanCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plan ARCHIVE",
		Short: "Show which entries a launch would stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, cfg, err := opts.openConfigured(args[0])
			if err != nil {
				return err
			}
			defer h.Close()

			view := planView{
				Archive: h.Path(),
				Mode:    cfg.Mode,
				Plan:    extract.BuildPlan(h, cfg.Rule(), planRoot),
			}
			return opts.render(cmd.OutOrStdout(), view, func(w io.Writer) error {
				fmt.Fprintf(w, "archive: %s\nmode:    %s\nrule:    %s\n", view.Archive, view.Mode, view.Rule)
				for _, item := range view.Items {
					kind := "file"
					switch {
					case item.Dir:
						kind = "dir"
					case item.Module:
						kind = "module"
					}
					fmt.Fprintf(w, "  %-6s %s\n", kind, item.Dest)
				}
				for _, skipped := range view.Skipped {
					fmt.Fprintf(w, "  skip   %s (%s)\n", skipped.Entry, skipped.Reason)
				}
				return nil
			})
		},
	}
}

type fingerprintView struct {
	Archive     string `json:"archive" yaml:"archive"`
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`
	Size        int64  `json:"size" yaml:"size"`
	ModTime     string `json:"mod_time" yaml:"mod_time"`
}

func newFingerprintCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint ARCHIVE",
		Short: "Print the cache key of an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, _, err := opts.openConfigured(args[0])
			if err != nil {
				return err
			}
			defer h.Close()
			view := fingerprintView{
				Archive:     h.Path(),
				Fingerprint: string(cache.FingerprintOf(h)),
				Size:        h.Size(),
				ModTime:     h.ModTime().UTC().Format("2006-01-02T15:04:05.000000000Z"),
			}
			return opts.render(cmd.OutOrStdout(), view, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, view.Fingerprint)
				return err
			})
		},
	}
}

func newServerArgsCmd(opts *rootOptions) *cobra.Command {
	var webroot string
	cmd := &cobra.Command{
		Use:   "server-args ARCHIVE [-- ARGS...]",
		Short: "Resolve the web server main class and argument vector",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, cfg, err := opts.openConfigured(args[0])
			if err != nil {
				return err
			}
			defer h.Close()

			data, err := h.ReadEntry(extract.ServerPropertiesEntry)
			if err != nil {
				return err
			}
			props, err := runtime.LoadServerProperties(data)
			if err != nil {
				return err
			}
			settings := cfg.Settings(args[1:])
			plan, err := runtime.ResolveServer(props, runtime.ServerTokens(h, webroot, settings), settings.Argv)
			if err != nil {
				return err
			}
			return opts.render(cmd.OutOrStdout(), plan, func(w io.Writer) error {
				fmt.Fprintf(w, "mainclass: %s\n", plan.MainClass)
				for _, arg := range plan.Args {
					fmt.Fprintf(w, "  %s\n", arg)
				}
				for _, key := range sortedKeys(plan.SystemProps) {
					fmt.Fprintf(w, "  -D%s=%s\n", key, plan.SystemProps[key])
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&webroot, "webroot", planRoot, "value substituted for {{webroot}}")
	return cmd
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run ARCHIVE [-- ARGS...]",
		Short: "Launch an archive through the full bootstrap pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := opts.overrideMap()
			if err != nil {
				return err
			}
			launchArgs := make([]string, 0, len(overrides)+len(args)-1)
			for _, key := range sortedKeys(overrides) {
				launchArgs = append(launchArgs, config.OverridePrefix+key+"="+overrides[key])
			}
			launchArgs = append(launchArgs, args[1:]...)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			result := launcher.Run(ctx, launcher.Options{
				Args:        launchArgs,
				ArchivePath: args[0],
				Lookup:      opts.lookup,
				Stdin:       cmd.InOrStdin(),
				Stdout:      cmd.OutOrStdout(),
				Stderr:      cmd.ErrOrStderr(),
			})
			launcher.Report(cmd.ErrOrStderr(), result)
			if result.ExitCode != 0 {
				return exitError{code: result.ExitCode}
			}
			return nil
		},
	}
}

func newTemplateCmd() *cobra.Command {
	var path string
	var force bool
	cmd := &cobra.Command{
		Use:       "template KIND",
		Short:     "Write a starter manifest (scripting|server) or webserver.properties (webserver)",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"scripting", "server", "webserver"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				body, err := config.Template(args[0])
				if err != nil {
					return err
				}
				_, err = io.WriteString(cmd.OutOrStdout(), body)
				return err
			}
			if err := config.WriteTemplate(path, args[0], force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s template to %s\n", args[0], path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "write to this file instead of stdout")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate MANIFEST",
		Short: "Check a warboot.toml and print the resolved config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			manifest, err := config.ParseManifest(data)
			if err != nil {
				return err
			}
			overrides, err := opts.overrideMap()
			if err != nil {
				return err
			}
			cfg, err := config.Resolve(manifest, nil, overrides)
			if err != nil {
				return err
			}
			return opts.render(cmd.OutOrStdout(), cfg, func(w io.Writer) error {
				fmt.Fprintf(w, "mode=%s port=%d host=%s cache=%t\n", cfg.Mode, cfg.Port, cfg.Host, cfg.Cache)
				if len(cfg.JVMArgs) > 0 {
					fmt.Fprintf(w, "jvm_args=%s\n", strings.Join(cfg.JVMArgs, " "))
				}
				return nil
			})
		},
	}
}
