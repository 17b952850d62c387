package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/danmuck/warboot/internal/archive"
	"github.com/danmuck/warboot/internal/config"
	"github.com/danmuck/warboot/internal/launcher"
	"github.com/danmuck/warboot/internal/logging"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type rootOptions struct {
	debug     bool
	output    string
	overrides []string
	lookup    config.LookupFunc
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{lookup: config.OSLookup}
	root := &cobra.Command{
		Use:           "warbootctl",
		Short:         "Inspect and run self-extracting warboot archives",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.debug {
				logging.SetDebug(true)
			}
		},
	}
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format: text|yaml|json")
	root.PersistentFlags().StringArrayVarP(&opts.overrides, "set", "D", nil, "config override key=value (same keys as -Dwarboot.<key>)")

	root.AddCommand(
		newPlanCmd(opts),
		newFingerprintCmd(opts),
		newServerArgsCmd(opts),
		newRunCmd(opts),
		newTemplateCmd(),
		newValidateCmd(opts),
	)
	return root
}

// overrideMap parses --set values into config overrides.
func (o *rootOptions) overrideMap() (map[string]string, error) {
	args := make([]string, 0, len(o.overrides))
	for _, raw := range o.overrides {
		args = append(args, config.OverridePrefix+raw)
	}
	overrides, rest := config.SplitOverrides(args)
	if len(rest) > 0 {
		return nil, fmt.Errorf("invalid --set value %q (want key=value)", o.overrides[len(args)-len(rest)])
	}
	return overrides, nil
}

// openConfigured opens an archive and resolves its launch config.
func (o *rootOptions) openConfigured(path string) (*archive.Handle, config.Config, error) {
	overrides, err := o.overrideMap()
	if err != nil {
		return nil, config.Config{}, err
	}
	h, err := archive.Open(path)
	if err != nil {
		return nil, config.Config{}, err
	}
	cfg, err := launcher.ResolveConfig(h, o.lookup, overrides)
	if err != nil {
		h.Close()
		return nil, config.Config{}, err
	}
	return h, cfg, nil
}

// render writes v as yaml or json, or calls text for the default format.
func (o *rootOptions) render(w io.Writer, v any, text func(io.Writer) error) error {
	switch o.output {
	case "", "text":
		return text(w)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", o.output)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
