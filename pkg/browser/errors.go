package browser

import (
	"errors"
	"fmt"

	"github.com/srodi/tabmem/pkg/types"
)

var (
	errSessionClosed = errors.New("session closed")
	errNotConnected  = errors.New("session not connected")
)

// LaunchError means the browser server process could not be started.
type LaunchError struct {
	Browser types.BrowserKind
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching %s: %v", e.Browser, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ConnectError means the control connection failed or timed out.
type ConnectError struct {
	Browser  types.BrowserKind
	Endpoint string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connecting to %s at %s: %v", e.Browser, e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// NavigationError means one tab did not reach its load event in time.
type NavigationError struct {
	URL   string
	Index int
	Err   error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("tab %d: navigating to %s: %v", e.Index+1, e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }
