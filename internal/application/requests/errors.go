package requests

import "errors"

var (
	ErrRequestNotFound   = errors.New("Request not found")
	ErrNotPending        = errors.New("Only pending requests can be reviewed")
	ErrMissingFields     = errors.New("Supplier, description, department and fiscal period are required")
	ErrInvalidAmount     = errors.New("Amount must be a positive number")
	ErrRequesterRequired = errors.New("Requester is required")
	ErrReasonRequired    = errors.New("A rejection reason is required")
	ErrNoBudget          = errors.New("No budget matches this request")
	ErrInvalidStatus     = errors.New("Invalid request status")
)
