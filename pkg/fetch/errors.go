package fetch

import "fmt"

// TransientError marks a response worth retrying: rate limiting,
// server-side failures, or transport errors.
type TransientError struct {
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transient: status %d", e.Status)
	}
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// QueryError marks a request the API rejected outright. Retrying a
// malformed filter never helps, so this halts the fetch immediately.
type QueryError struct {
	Status int
	Body   string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query rejected: status %d: %s", e.Status, e.Body)
}

// AbortedError marks a fetch abandoned because another run claimed
// the endpoint's progress checkpoint mid-pagination.
type AbortedError struct {
	Endpoint string
	Err      error
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("fetch of %s aborted: %v", e.Endpoint, e.Err)
}

func (e *AbortedError) Unwrap() error { return e.Err }
