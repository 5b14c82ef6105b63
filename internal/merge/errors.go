package merge

import (
	"fmt"
	"net/http"
)

// Machine-readable codes attached to provisioning failures. The HTTP layer
// forwards them verbatim to clients.
const (
	CodeRequestInvalid  = "merge.request_invalid"
	CodeFetchFailed     = "merge.image_fetch_failed"
	CodeTooLarge        = "merge.image_too_large"
	CodeCacheFailed     = "merge.image_cache_failed"
	CodeProvisionFailed = "merge.image_provision_failed"
)

// Issue describes a single validation problem with a request field.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

// ValidationError reports one or more request-shape problems. It is always
// raised before any network or storage I/O.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("merge request validation failed (%d issues)", len(e.Issues))
}

// FetchError reports a failed remote image retrieval. Status carries the
// upstream HTTP status when one applies (408 for timeouts, 0 when no status
// is meaningful, e.g. a bad scheme).
type FetchError struct {
	URL    string
	Status int
	Msg    string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("failed to fetch image: %s", e.URL)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ProvisionError classifies a failed attempt to resolve a descriptor to
// image bytes. Status defaults to 502 Bad Gateway.
type ProvisionError struct {
	ID     string
	Status int
	Code   string
	Msg    string
	Err    error
}

func (e *ProvisionError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("failed to provision image %s", e.ID)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

func newProvisionError(id string, status int, code, msg string, cause error) *ProvisionError {
	if status == 0 {
		status = http.StatusBadGateway
	}
	if code == "" {
		code = CodeProvisionFailed
	}
	return &ProvisionError{ID: id, Status: status, Code: code, Msg: msg, Err: cause}
}
