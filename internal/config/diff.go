package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider and
// storage changes require a restart and are deliberately ignored.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// CatalogPathChanged means the episode catalog should be reloaded.
	CatalogPathChanged bool
	NewCatalogPath     string

	// DirectorChanged means the model call budgets were retuned.
	DirectorChanged bool
	NewDirector     DirectorConfig
}

// Empty reports whether the diff contains no reloadable changes.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.CatalogPathChanged && !d.DirectorChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Episodes.CatalogPath != new.Episodes.CatalogPath {
		d.CatalogPathChanged = true
		d.NewCatalogPath = new.Episodes.CatalogPath
	}
	if old.Director != new.Director {
		d.DirectorChanged = true
		d.NewDirector = new.Director
	}
	return d
}
