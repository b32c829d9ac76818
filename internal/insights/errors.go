package insights

import "fmt"

// UpstreamError reports a failed or unusable response from the generation
// service.
type UpstreamError struct {
	Detail string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation service: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("generation service: %s", e.Detail)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamError creates a new UpstreamError
func NewUpstreamError(detail string, err error) *UpstreamError {
	return &UpstreamError{Detail: detail, Err: err}
}
