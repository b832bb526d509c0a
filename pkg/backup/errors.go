package backup

import "errors"

// Transfer errors
var (
	// ErrVaultNotFound indicates there is no vault file to export.
	ErrVaultNotFound = errors.New("backup: vault not found")

	// ErrSourceNotFound indicates the import source does not exist.
	ErrSourceNotFound = errors.New("backup: import source not found")

	// ErrSameFile indicates source and destination are the same file.
	ErrSameFile = errors.New("backup: source and destination are the same file")

	// ErrNotRegularFile indicates a source that is a directory or device.
	ErrNotRegularFile = errors.New("backup: source is not a regular file")
)
