package pi

import (
	"errors"
	"fmt"
	"net/http"
)

// ServiceError is returned for any non-2xx answer of the platform.
type ServiceError struct {
	StatusCode int
	Code       string
	Message    string
	// Body is the raw response body.
	Body string
}

func (e *ServiceError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("pi platform error, status code %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("pi platform error, status code %d: %s (%s)", e.StatusCode, e.Message, e.Code)
}

func IsNotFound(err error) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.StatusCode == http.StatusNotFound
}

func IsConflict(err error) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.StatusCode == http.StatusConflict
}
