package config

// Config is the complete snippy configuration.
type Config struct {
	// Dir is the base directory every relative path is resolved against.
	Dir string `mapstructure:"dir"`
	// Annotation selects the recognised filename annotations: auto, heading
	// or first-line.
	Annotation   string `mapstructure:"annotation"`
	LogLevel     string `mapstructure:"log_level"`
	SearchWindow int    `mapstructure:"search_window"`
	History      bool   `mapstructure:"history"`
	HistoryLimit int    `mapstructure:"history_limit"`
	NvimReload   bool   `mapstructure:"nvim_reload"`

	Copy  CopyConfig  `mapstructure:"copy"`
	Watch WatchConfig `mapstructure:"watch"`
	Apply ApplyConfig `mapstructure:"apply"`
}

// CopyConfig configures serializing files for pasting.
type CopyConfig struct {
	NoMarkdown     bool     `mapstructure:"no_markdown"`
	XML            bool     `mapstructure:"xml"`
	LineNumber     int      `mapstructure:"line_number"`
	Prefix         string   `mapstructure:"prefix"`
	FilenameFormat string   `mapstructure:"filename_format"`
	FirstLine      string   `mapstructure:"first_line"`
	Stdout         bool     `mapstructure:"stdout"`
	Ignore         []string `mapstructure:"ignore"`
	// Model selects the tokenizer used for the copy statistics.
	Model   string `mapstructure:"model"`
	NoStats bool   `mapstructure:"no_stats"`
}

// WatchConfig configures the clipboard watcher.
type WatchConfig struct {
	// Interval is the polling period in milliseconds.
	Interval      int    `mapstructure:"interval"`
	FirstLine     string `mapstructure:"first_line"`
	SourceFile    string `mapstructure:"source_file"`
	ApplyExisting bool   `mapstructure:"apply_existing"`
	Concurrency   int    `mapstructure:"concurrency"`
}

// ApplyConfig configures one-shot application.
type ApplyConfig struct {
	DryRun     bool     `mapstructure:"dry_run"`
	Plain      bool     `mapstructure:"plain"`
	Extensions []string `mapstructure:"extensions"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Dir:          ".",
		Annotation:   "auto",
		LogLevel:     "info",
		SearchWindow: 3,
		History:      true,
		HistoryLimit: 20,
		NvimReload:   true,
		Copy: CopyConfig{
			Prefix:         "|",
			FilenameFormat: "heading",
			FirstLine:      "# Relevant Code\n",
			Ignore:         []string{},
			Model:          "gpt-4o",
		},
		Watch: WatchConfig{
			Interval:    1000,
			FirstLine:   "# Relevant Code",
			Concurrency: 4,
		},
		Apply: ApplyConfig{
			Extensions: []string{},
		},
	}
}
