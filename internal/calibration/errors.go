package calibration

import (
	"fmt"

	apperrors "armpose/internal/errors"
)

// ConfigurationError means the statistics cannot standardize data, for
// instance a channel with zero spread.
type ConfigurationError struct {
	Channel string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if e.Channel == "" {
		return "calibration: " + e.Reason
	}
	return fmt.Sprintf("calibration: channel %s: %s", e.Channel, e.Reason)
}

func (e *ConfigurationError) ErrorType() apperrors.ErrorType { return apperrors.ErrTypeConfiguration }

func (e *ConfigurationError) ProblemExtensions() map[string]interface{} {
	if e.Channel == "" {
		return nil
	}
	return map[string]interface{}{"channel": e.Channel}
}
