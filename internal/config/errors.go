package config

import "errors"

// Error variables for configuration loading.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrEnvInvalid         = errors.New("invalid environment override")
	ErrDataDirEmpty       = errors.New("data_dir cannot be empty")
	ErrFileNameEmpty      = errors.New("db_file and backup_file cannot be empty")
	ErrSameFile           = errors.New("db_file and backup_file must differ")
	ErrIntervalInvalid    = errors.New("intervals must be positive")
)
