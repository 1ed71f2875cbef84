package anthropic

import (
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
)

// HTTPError carries the status of a failed Messages call so the gateway can tell
// auth or request errors apart from transient ones.
type HTTPError struct {
	StatusCode int
	Err        error
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "anthropic http error"
	}
	return fmt.Sprintf("anthropic http error: status=%d: %v", e.StatusCode, e.Err)
}

func (e *HTTPError) Unwrap() error { return e.Err }

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func wrapError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		return &HTTPError{StatusCode: apiErr.StatusCode, Err: err}
	}
	return err
}
