package cli

import "errors"

// Error variables for CLI usage.
var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrMissingArgs    = errors.New("missing arguments")
	ErrInvalidFormat  = errors.New("invalid output format")
	ErrBackupInvalid  = errors.New("backup file is not a valid database")
)
