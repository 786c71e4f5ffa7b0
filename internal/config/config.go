package config

// Config holds the pruner configuration as given by flags or a config file.
type Config struct {
	World           string `yaml:"world" json:"world,omitempty"`
	RegionDir       string `yaml:"region" json:"region,omitempty"`
	PoiDir          string `yaml:"poi" json:"poi,omitempty"`
	EntitiesDir     string `yaml:"entities" json:"entities,omitempty"`
	Time            string `yaml:"time" json:"time,omitempty"`           // inhabited time threshold, e.g. "5 min"
	Radius          int    `yaml:"radius" json:"radius"`                 // in chunks
	Whitelist       string `yaml:"whitelist" json:"whitelist,omitempty"` // CSV path or go-getter URL
	WhitelistOnly   bool   `yaml:"whitelist_only" json:"whitelist_only"`
	ContinueOnError bool   `yaml:"continue_on_error" json:"continue_on_error"`
	Workers         int    `yaml:"workers" json:"workers"`
	Report          string `yaml:"report" json:"report,omitempty"`             // SQLite database path
	MetricsFile     string `yaml:"metrics_file" json:"metrics_file,omitempty"` // Prometheus textfile
	Output          string `yaml:"output" json:"output,omitempty"`             // directory for run.json and keep.csv
	LogLevel        string `yaml:"log_level" json:"log_level,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Time:     "0s",
		Radius:   0,
		Workers:  1,
		LogLevel: "info",
	}
}

// Merge applies file-loaded config values into cfg, but only for fields
// that were NOT explicitly set via CLI flags. explicitFlags contains the
// flag names that were explicitly provided on the command line.
func Merge(cfg *Config, fromFile *Config, explicitFlags map[string]bool) {
	if !explicitFlags["world"] {
		cfg.World = fromFile.World
	}
	if !explicitFlags["region"] {
		cfg.RegionDir = fromFile.RegionDir
	}
	if !explicitFlags["poi"] {
		cfg.PoiDir = fromFile.PoiDir
	}
	if !explicitFlags["entities"] {
		cfg.EntitiesDir = fromFile.EntitiesDir
	}
	if !explicitFlags["time"] {
		cfg.Time = fromFile.Time
	}
	if !explicitFlags["radius"] {
		cfg.Radius = fromFile.Radius
	}
	if !explicitFlags["whitelist"] {
		cfg.Whitelist = fromFile.Whitelist
	}
	if !explicitFlags["whitelist-only"] {
		cfg.WhitelistOnly = fromFile.WhitelistOnly
	}
	if !explicitFlags["continue-on-error"] {
		cfg.ContinueOnError = fromFile.ContinueOnError
	}
	if !explicitFlags["workers"] {
		cfg.Workers = fromFile.Workers
	}
	if !explicitFlags["report"] {
		cfg.Report = fromFile.Report
	}
	if !explicitFlags["metrics-file"] {
		cfg.MetricsFile = fromFile.MetricsFile
	}
	if !explicitFlags["output"] {
		cfg.Output = fromFile.Output
	}
	if !explicitFlags["log-level"] {
		cfg.LogLevel = fromFile.LogLevel
	}
}
