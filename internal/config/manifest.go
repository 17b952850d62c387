package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/warboot/internal/archive"
	"github.com/danmuck/warboot/internal/runtime"
)

// ManifestEntry is the launch manifest packaged inside every archive. Its
// presence is also how the locator recognizes a packaged archive.
const ManifestEntry = archive.DefaultMarker

// warboot.toml key mapping to launcher settings.
type fileConfig struct {
	Mode            string            `toml:"mode"`
	Cache           bool              `toml:"cache"`
	CacheDir        string            `toml:"cache_dir"`
	Port            int               `toml:"port"`
	Host            string            `toml:"host"`
	WebserverConfig string            `toml:"webserver_config"`
	Debug           bool              `toml:"debug"`
	SkipExit        bool              `toml:"skip_exit"`
	JavaHome        string            `toml:"java_home"`
	JRubyHome       string            `toml:"jruby_home"`
	JVMArgs         []string          `toml:"jvm_args"`
	ModulePrefix    string            `toml:"module_prefix"`
	ModuleSuffix    string            `toml:"module_suffix"`
	Stage           []string          `toml:"stage"`
	MetricsFile     string            `toml:"metrics_file"`
	Env             map[string]string `toml:"env"`
}

// Manifest is a decoded warboot.toml. Only keys present in the file
// override defaults.
type Manifest struct {
	raw  fileConfig
	meta toml.MetaData
	set  bool
}

// ParseManifest decodes manifest bytes. Unknown keys are rejected so typos
// do not silently fall back to defaults.
func ParseManifest(data []byte) (Manifest, error) {
	var raw fileConfig
	meta, err := toml.Decode(string(data), &raw)
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrManifest, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return Manifest{}, fmt.Errorf("%w: unknown keys %s", ErrManifest, strings.Join(keys, ", "))
	}
	return Manifest{raw: raw, meta: meta, set: true}, nil
}

func (m Manifest) IsDefined(key string) bool {
	return m.set && m.meta.IsDefined(key)
}

func (m Manifest) apply(cfg *Config) error {
	if !m.set {
		return nil
	}
	raw := m.raw
	if m.IsDefined("mode") {
		mode, err := runtime.ParseMode(raw.Mode)
		if err != nil {
			return fmt.Errorf("%w: manifest: %v", ErrInvalid, err)
		}
		cfg.Mode = mode
	}
	if m.IsDefined("cache") {
		cfg.Cache = raw.Cache
	}
	if m.IsDefined("cache_dir") {
		cfg.CacheDir = strings.TrimSpace(raw.CacheDir)
	}
	if m.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if m.IsDefined("host") {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if m.IsDefined("webserver_config") {
		cfg.WebserverConfig = strings.TrimSpace(raw.WebserverConfig)
	}
	if m.IsDefined("debug") {
		cfg.Debug = raw.Debug
	}
	if m.IsDefined("skip_exit") {
		cfg.SkipExit = raw.SkipExit
	}
	if m.IsDefined("java_home") {
		cfg.JavaHome = strings.TrimSpace(raw.JavaHome)
	}
	if m.IsDefined("jruby_home") {
		cfg.JRubyHome = strings.TrimSpace(raw.JRubyHome)
	}
	if m.IsDefined("jvm_args") {
		cfg.JVMArgs = append([]string(nil), raw.JVMArgs...)
	}
	if m.IsDefined("module_prefix") {
		cfg.ModulePrefix = strings.TrimSpace(raw.ModulePrefix)
	}
	if m.IsDefined("module_suffix") {
		cfg.ModuleSuffix = strings.TrimSpace(raw.ModuleSuffix)
	}
	if m.IsDefined("stage") {
		cfg.Stage = append([]string{}, raw.Stage...)
	}
	if m.IsDefined("metrics_file") {
		cfg.MetricsFile = strings.TrimSpace(raw.MetricsFile)
	}
	if m.IsDefined("env") {
		cfg.Env = make(map[string]string, len(raw.Env))
		for key, value := range raw.Env {
			cfg.Env[key] = value
		}
	}
	return nil
}
