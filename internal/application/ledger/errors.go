package ledger

import "errors"

var (
	ErrBudgetNotFound     = errors.New("Budget not found")
	ErrInvalidAmount      = errors.New("Amount must be a positive number")
	ErrInvalidReleaseType = errors.New("Release type must be committed or reserved")
	ErrSelectorRequired   = errors.New("Department and fiscal period are required")
	ErrActorRequired      = errors.New("Actor identity is required")
)
