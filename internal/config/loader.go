package config

import (
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gitlab.com/tozd/go/errors"
)

// FileName is the configuration file looked up in the working directory.
const FileName = ".snippy"

// Loader resolves configuration with the priority (highest to lowest):
// bound flags, SNIPPY_* environment variables, the config file, defaults.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader. configFile, when set, names the config file
// explicitly; otherwise .snippy.yaml is looked up in rootDir.
func NewLoader(rootDir, configFile string) *Loader {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Clean(rootDir))
	}

	v.SetEnvPrefix("SNIPPY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return &Loader{v: v}
}

// BindFlag lets a command-line flag override key when it was set.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return errors.Errorf("no flag for config key %q", key)
	}
	if err := l.v.BindPFlag(key, flag); err != nil {
		return errors.Errorf("binding flag %s: %w", flag.Name, err)
	}
	return nil
}

// Load reads, merges and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, errors.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Apply.Extensions = NormalizeExtensions(cfg.Apply.Extensions)

	if err := Validate(cfg); err != nil {
		return nil, errors.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ConfigFileUsed returns the config file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("dir", d.Dir)
	v.SetDefault("annotation", d.Annotation)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("search_window", d.SearchWindow)
	v.SetDefault("history", d.History)
	v.SetDefault("history_limit", d.HistoryLimit)
	v.SetDefault("nvim_reload", d.NvimReload)

	v.SetDefault("copy.no_markdown", d.Copy.NoMarkdown)
	v.SetDefault("copy.xml", d.Copy.XML)
	v.SetDefault("copy.line_number", d.Copy.LineNumber)
	v.SetDefault("copy.prefix", d.Copy.Prefix)
	v.SetDefault("copy.filename_format", d.Copy.FilenameFormat)
	v.SetDefault("copy.first_line", d.Copy.FirstLine)
	v.SetDefault("copy.stdout", d.Copy.Stdout)
	v.SetDefault("copy.ignore", d.Copy.Ignore)
	v.SetDefault("copy.model", d.Copy.Model)
	v.SetDefault("copy.no_stats", d.Copy.NoStats)

	v.SetDefault("watch.interval", d.Watch.Interval)
	v.SetDefault("watch.first_line", d.Watch.FirstLine)
	v.SetDefault("watch.source_file", d.Watch.SourceFile)
	v.SetDefault("watch.apply_existing", d.Watch.ApplyExisting)
	v.SetDefault("watch.concurrency", d.Watch.Concurrency)

	v.SetDefault("apply.dry_run", d.Apply.DryRun)
	v.SetDefault("apply.plain", d.Apply.Plain)
	v.SetDefault("apply.extensions", d.Apply.Extensions)
}

// NormalizeExtensions adds the leading dot to extensions given without one.
func NormalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		if ext[0] != '.' {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}
