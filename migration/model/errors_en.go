package model

const (
	ErrUnknownInternalServer           = "POSM.01: Unknown Internal Server Error"
	ErrMigrationCodeVersionDNE         = "POSM.02: Migration code/version does not exist"
	ErrMigrationNotInstalled           = "POSM.03: Migrations library not installed"
	ErrMigrationNone                   = "POSM.04: No migrations exist yet"
	ErrMigrationFileNameInvalid        = "POSM.05: Invalid migration file name"
	ErrMigrationFileNameVersionInvalid = "POSM.06: Invalid migration file name version"
	ErrMigrationInstallFailed          = "POSM.07: Migrator installation failed"
)
