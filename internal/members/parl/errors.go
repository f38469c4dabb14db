package parl

import (
	"fmt"
)

// FetchError is returned when a page could not be retrieved: a transport
// failure (Err set) or a non-200 response (StatusCode set).
type FetchError struct {
	MemberID   string
	URL        string
	StatusCode int
	Status     string
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError is returned when a page body could not be read as HTML.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parse member page: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }
