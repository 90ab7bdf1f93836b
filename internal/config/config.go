// Package config resolves the playersdb configuration from defaults, JSONC
// config files, PLAYERSDB_* environment variables and CLI flags.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/caarlos0/env/v11"
	"github.com/tailscale/hujson"

	"github.com/calvinalkan/playersdb/internal/playersdb"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PLAYERSDB_"

// FileName is the default project config file name.
const FileName = ".playersdb.json"

// Config holds all configuration options.
type Config struct {
	// From config files and the environment (serialized)
	DataDir              string   `env:"DATA_DIR"                 json:"data_dir"`
	DBFile               string   `env:"DB_FILE"                  json:"db_file"`
	BackupFile           string   `env:"BACKUP_FILE"              json:"backup_file"`
	FlushInterval        Duration `env:"FLUSH_INTERVAL"           json:"flush_interval"`
	BackupInterval       Duration `env:"BACKUP_INTERVAL"          json:"backup_interval"`
	WipePendingWLOnStart bool     `env:"WIPE_PENDING_WL_ON_START" json:"wipe_pending_wl_on_start"`
	Pretty               bool     `env:"PRETTY"                   json:"pretty"`
	Verbose              bool     `env:"VERBOSE"                  json:"verbose"`

	// Resolved paths (computed, not serialized)
	EffectiveCwd string `json:"-"`
	DataDirAbs   string `json:"-"`
	DBPath       string `json:"-"`
	BackupPath   string `json:"-"`

	// Sources tracks where values came from (for diagnostics)
	Sources Sources `json:"-"`
}

// Sources tracks which config files and environment variables were applied.
type Sources struct {
	Global  string   // Path to global config if loaded, empty otherwise
	Project string   // Path to project or explicit config if loaded, empty otherwise
	Env     []string // Names of applied PLAYERSDB_* variables, sorted
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		DataDir:        "data",
		DBFile:         playersdb.DefaultDBFile,
		BackupFile:     playersdb.DefaultBackupFile,
		FlushInterval:  Duration(playersdb.DefaultFlushInterval),
		BackupInterval: Duration(playersdb.DefaultBackupInterval),
	}
}

// fileConfig is one config file. Pointers distinguish "absent" from an
// explicit zero value so a later file can switch a flag back off.
type fileConfig struct {
	DataDir              *string   `json:"data_dir"`
	DBFile               *string   `json:"db_file"`
	BackupFile           *string   `json:"backup_file"`
	FlushInterval        *Duration `json:"flush_interval"`
	BackupInterval       *Duration `json:"backup_interval"`
	WipePendingWLOnStart *bool     `json:"wipe_pending_wl_on_start"`
	Pretty               *bool     `json:"pretty"`
	Verbose              *bool     `json:"verbose"`
}

// globalPath returns $XDG_CONFIG_HOME/playersdb/config.json, falling back to
// ~/.config/playersdb/config.json. Empty if neither variable is set.
func globalPath(environ map[string]string) string {
	if xdgConfig := environ["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "playersdb", "config.json")
	}

	if home := environ["HOME"]; home != "" {
		return filepath.Join(home, ".config", "playersdb", "config.json")
	}

	return ""
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	DataDirOverride string            // --data-dir flag value; empty means no override
	Verbose         bool              // -v/--verbose; only ever turns verbose on
	Env             map[string]string // environment variables
}

// Load resolves configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config ($XDG_CONFIG_HOME/playersdb/config.json)
// 3. Project config file (.playersdb.json) or the explicit ConfigPath
// 4. PLAYERSDB_* environment variables
// 5. CLI overrides.
//
// All paths in the returned Config are absolute.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	} else if !filepath.IsAbs(workDir) {
		abs, err := filepath.Abs(workDir)
		if err != nil {
			return Config{}, fmt.Errorf("cannot resolve working directory: %w", err)
		}

		workDir = abs
	}

	cfg := Default()

	globalCfg, loadedGlobal, err := loadGlobal(input.Env)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Global = loadedGlobal
	cfg = merge(cfg, globalCfg)

	projectCfg, loadedProject, err := loadProject(workDir, input.ConfigPath)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Project = loadedProject
	cfg = merge(cfg, projectCfg)

	applied, err := applyEnv(&cfg, input.Env)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Env = applied

	if input.DataDirOverride != "" {
		cfg.DataDir = input.DataDirOverride
	}

	if input.Verbose {
		cfg.Verbose = true
	}

	err = validate(cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	if filepath.IsAbs(cfg.DataDir) {
		cfg.DataDirAbs = filepath.Clean(cfg.DataDir)
	} else {
		cfg.DataDirAbs = filepath.Join(workDir, cfg.DataDir)
	}

	cfg.DBPath = filepath.Join(cfg.DataDirAbs, cfg.DBFile)
	cfg.BackupPath = filepath.Join(cfg.DataDirAbs, cfg.BackupFile)

	return cfg, nil
}

// StoreOptions returns the [playersdb.Options] for opening this config's
// database with logger.
func (c Config) StoreOptions(logger *slog.Logger) playersdb.Options {
	return playersdb.Options{
		DBPath:               c.DBPath,
		BackupPath:           c.BackupPath,
		Logger:               logger,
		FlushInterval:        c.FlushInterval.Std(),
		BackupInterval:       c.BackupInterval.Std(),
		Pretty:               c.Pretty,
		WipePendingWLOnStart: c.WipePendingWLOnStart,
	}
}

func loadGlobal(environ map[string]string) (fileConfig, string, error) {
	path := globalPath(environ)
	if path == "" {
		return fileConfig{}, "", nil
	}

	cfg, loaded, err := loadFile(path, false)
	if err != nil || !loaded {
		return fileConfig{}, "", err
	}

	return cfg, path, nil
}

// loadProject loads .playersdb.json from workDir or the explicit configPath,
// which must exist.
func loadProject(workDir, configPath string) (fileConfig, string, error) {
	path := filepath.Join(workDir, FileName)
	mustExist := false

	if configPath != "" {
		path = configPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}

		mustExist = true

		_, statErr := os.Stat(path)
		if statErr != nil {
			return fileConfig{}, "", fmt.Errorf("%w: %s", ErrConfigFileNotFound, configPath)
		}
	}

	cfg, loaded, err := loadFile(path, mustExist)
	if err != nil || !loaded {
		return fileConfig{}, "", err
	}

	return cfg, path, nil
}

// loadFile loads a config file. If mustExist is false a missing file yields
// a zero config and loaded=false.
func loadFile(path string, mustExist bool) (fileConfig, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if mustExist || !os.IsNotExist(err) {
			return fileConfig{}, false, fmt.Errorf("%w %s: %w", ErrConfigFileRead, path, err)
		}

		return fileConfig{}, false, nil
	}

	cfg, err := parse(data)
	if err != nil {
		return fileConfig{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	if cfg.DataDir != nil && *cfg.DataDir == "" {
		return fileConfig{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, ErrDataDirEmpty)
	}

	return cfg, true, nil
}

func parse(data []byte) (fileConfig, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg fileConfig

	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()

	err = dec.Decode(&cfg)
	if err != nil {
		return fileConfig{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return cfg, nil
}

func merge(base Config, overlay fileConfig) Config {
	if overlay.DataDir != nil {
		base.DataDir = *overlay.DataDir
	}

	if overlay.DBFile != nil {
		base.DBFile = *overlay.DBFile
	}

	if overlay.BackupFile != nil {
		base.BackupFile = *overlay.BackupFile
	}

	if overlay.FlushInterval != nil {
		base.FlushInterval = *overlay.FlushInterval
	}

	if overlay.BackupInterval != nil {
		base.BackupInterval = *overlay.BackupInterval
	}

	if overlay.WipePendingWLOnStart != nil {
		base.WipePendingWLOnStart = *overlay.WipePendingWLOnStart
	}

	if overlay.Pretty != nil {
		base.Pretty = *overlay.Pretty
	}

	if overlay.Verbose != nil {
		base.Verbose = *overlay.Verbose
	}

	return base
}

// applyEnv overlays set PLAYERSDB_* variables onto cfg. Unset variables
// leave the file values in place. Returns the applied variable names.
func applyEnv(cfg *Config, environ map[string]string) ([]string, error) {
	opts := env.Options{
		Environment: environ,
		Prefix:      EnvPrefix,
	}

	err := env.ParseWithOptions(cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnvInvalid, err)
	}

	params, err := env.GetFieldParamsWithOptions(&Config{}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnvInvalid, err)
	}

	var applied []string

	for _, p := range params {
		if environ[p.Key] != "" {
			applied = append(applied, p.Key)
		}
	}

	slices.Sort(applied)

	return applied, nil
}

func validate(cfg Config) error {
	if cfg.DataDir == "" {
		return ErrDataDirEmpty
	}

	if cfg.DBFile == "" || cfg.BackupFile == "" {
		return ErrFileNameEmpty
	}

	if filepath.Clean(cfg.DBFile) == filepath.Clean(cfg.BackupFile) {
		return ErrSameFile
	}

	if cfg.FlushInterval.Std() <= 0 || cfg.BackupInterval.Std() <= 0 {
		return fmt.Errorf("%w: flush_interval=%s backup_interval=%s",
			ErrIntervalInvalid, cfg.FlushInterval, cfg.BackupInterval)
	}

	return nil
}
