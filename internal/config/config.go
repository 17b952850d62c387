package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/warboot/internal/extract"
	"github.com/danmuck/warboot/internal/runtime"
)

var (
	ErrInvalid  = errors.New("config: invalid value")
	ErrManifest = errors.New("config: manifest unreadable")
)

const (
	DefaultPort = 8080
	DefaultHost = "0.0.0.0"
)

// Config is built once at start and passed by value everywhere after.
type Config struct {
	Mode            runtime.Mode      `json:"mode" yaml:"mode"`
	Cache           bool              `json:"cache" yaml:"cache"`
	CacheDir        string            `json:"cache_dir,omitempty" yaml:"cache_dir,omitempty"`
	Port            int               `json:"port" yaml:"port"`
	Host            string            `json:"host" yaml:"host"`
	WebserverConfig string            `json:"webserver_config,omitempty" yaml:"webserver_config,omitempty"`
	Debug           bool              `json:"debug" yaml:"debug"`
	SkipExit        bool              `json:"skip_exit" yaml:"skip_exit"`
	JavaHome        string            `json:"java_home,omitempty" yaml:"java_home,omitempty"`
	JRubyHome       string            `json:"jruby_home,omitempty" yaml:"jruby_home,omitempty"`
	JVMArgs         []string          `json:"jvm_args,omitempty" yaml:"jvm_args,omitempty"`
	ModulePrefix    string            `json:"module_prefix" yaml:"module_prefix"`
	ModuleSuffix    string            `json:"module_suffix" yaml:"module_suffix"`
	Stage           []string          `json:"stage,omitempty" yaml:"stage,omitempty"`
	MetricsFile     string            `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty"`
	Env             map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

func Default() Config {
	return Config{
		Mode:         runtime.ModeScripting,
		Port:         DefaultPort,
		Host:         DefaultHost,
		ModulePrefix: extract.DefaultModulePrefix,
		ModuleSuffix: extract.DefaultModuleSuffix,
	}
}

// Resolve layers defaults, manifest, environment and launcher overrides,
// lowest to highest.
func Resolve(m Manifest, lookup LookupFunc, overrides map[string]string) (Config, error) {
	cfg := Default()
	if err := m.apply(&cfg); err != nil {
		return Config{}, err
	}
	if lookup != nil {
		for _, binding := range envBindings {
			value, ok := lookup(binding.env)
			if !ok || strings.TrimSpace(value) == "" {
				continue
			}
			if err := cfg.set(binding.key, value); err != nil {
				return Config{}, fmt.Errorf("%s: %w", binding.env, err)
			}
		}
	}
	for _, key := range sortedKeys(overrides) {
		if err := cfg.set(key, overrides[key]); err != nil {
			return Config{}, fmt.Errorf("%s%s: %w", OverridePrefix, key, err)
		}
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, cfg.Port)
	}
	if strings.TrimSpace(cfg.Host) == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalid)
	}
	if cfg.Mode != runtime.ModeScripting && cfg.Mode != runtime.ModeServer {
		return fmt.Errorf("%w: mode %s", ErrInvalid, cfg.Mode)
	}
	return cfg.Rule().Validate()
}

// Rule is the extraction rule for the configured mode.
func (c Config) Rule() extract.Rule {
	if c.Mode == runtime.ModeServer {
		return extract.ServerRule()
	}
	return extract.ScriptingRule(c.ModulePrefix, c.ModuleSuffix, c.Stage)
}

// Settings translates the config into runtime adapter settings.
func (c Config) Settings(argv []string) runtime.Settings {
	return runtime.Settings{
		Argv:         argv,
		Home:         c.JRubyHome,
		Env:          c.Env,
		Port:         c.Port,
		Host:         c.Host,
		ServerConfig: c.WebserverConfig,
	}
}

// set applies one string-valued key from the environment or an override.
func (c *Config) set(key string, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "mode":
		mode, err := runtime.ParseMode(value)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		c.Mode = mode
	case "cache":
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		c.Cache = b
	case "cache_dir":
		c.CacheDir = value
	case "port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: port %q", ErrInvalid, value)
		}
		c.Port = port
	case "host":
		c.Host = value
	case "webserver_config":
		c.WebserverConfig = value
	case "debug":
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		c.Debug = b
	case "skip_exit":
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		c.SkipExit = b
	case "java_home":
		c.JavaHome = value
	case "jruby_home":
		c.JRubyHome = value
	case "jvm_args":
		c.JVMArgs = strings.Fields(value)
	case "module_prefix":
		c.ModulePrefix = value
	case "module_suffix":
		c.ModuleSuffix = value
	case "metrics_file":
		c.MetricsFile = value
	default:
		return fmt.Errorf("%w: unknown key %q", ErrInvalid, key)
	}
	return nil
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%w: boolean %q", ErrInvalid, raw)
	}
}
