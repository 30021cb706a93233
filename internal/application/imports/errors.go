package imports

import "errors"

var (
	ErrMissingColumns = errors.New("Missing required columns")
	ErrInvalidSource  = errors.New("Import source must be excel, csv, google_sheets or api")
	ErrInvalidMode    = errors.New("Import mode must be upsert or sync")
	ErrNoRows         = errors.New("Import contains no rows")
	ErrImportAborted  = errors.New("Import aborted, no budgets were changed")
	ErrImportNotFound = errors.New("Import not found")
	ErrActorRequired  = errors.New("Actor identity is required")
)
