package repositories

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// wrapAWSError tags err with a stage error kind and, when available, the
// service error code.
func wrapAWSError(kind error, op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s: %s: %w", kind, op, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("%w: %s: %w", kind, op, err)
}
