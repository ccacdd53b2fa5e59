package services

import (
	apperrors "armpose/internal/errors"
)

// Service errors
var (
	ErrNoFiles       = apperrors.NewAppValidationError("at least one file is required")
	ErrInvalidAction = apperrors.NewAppValidationError("invalid playback action")
)
