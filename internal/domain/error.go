package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid executor in context")
	ErrForbidden          = errors.New("operation not permitted")
	ErrLocked             = errors.New("resource is locked")

	// Payment and fulfillment
	ErrRateUnavailable  = errors.New("exchange rate unavailable")
	ErrRailUnavailable  = errors.New("payment rail unavailable")
	ErrProvisionFailed  = errors.New("credential provisioning failed")
	ErrAlreadySettled   = errors.New("transaction already settled")
	ErrAlreadyReviewed  = errors.New("document already reviewed")
	ErrInvalidMetadata  = errors.New("invalid settlement metadata")
	ErrUnderpaid        = errors.New("transfer amount below invoice")
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// Users and referrals
	ErrTrialUsed           = errors.New("trial already used")
	ErrInsufficientBalance = errors.New("referral balance below withdrawal minimum")
	ErrNotRegistered       = errors.New("user not registered")
)
