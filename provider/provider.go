// Package provider defines the outcome model shared by the transfer
// clients.
//
// A transfer attempt against an upstream drive API ends in one of three
// ways, and callers need to tell them apart:
//
//   - success: the resource was copied and re-shared, a new share URL
//     exists and may be substituted into the caller's text;
//   - soft failure: the copy into the destination was confirmed, but a
//     later step (locating the copy, creating the share) failed. There
//     is nothing to substitute, yet the attempt must not be reported as
//     an outright failure either;
//   - hard failure: the attempt failed before a confirmed copy.
//
// Steps report these outcomes as values rather than errors so the
// nine-step protocol can thread them explicitly.
package provider

import (
	"context"
	"errors"
	"net"
)

// Kind is a stable, per-match failure classification.
type Kind string

// The available failure kinds.
const (
	KindFormat      Kind = "FormatError"
	KindCodeInvalid Kind = "CodeInvalidError"
	KindEmptyShare  Kind = "EmptyShareError"
	KindPageParse   Kind = "PageParseError"
	KindTransfer    Kind = "TransferError"
	KindTimeout     Kind = "TimeoutError"
	KindUnknown     Kind = "UnknownError"
)

// Status tags a Result.
type Status int

// The possible result states.
const (
	// StatusSuccess: transfer completed. ShareURL is set for primary
	// transfers and empty for inject transfers, which are never
	// re-shared.
	StatusSuccess Status = iota

	// StatusSaved: the copy was confirmed but no share link was
	// produced (soft failure).
	StatusSaved

	// StatusFailed: hard failure before a confirmed copy.
	StatusFailed
)

// Result is the tagged outcome of one transfer attempt.
type Result struct {
	Status Status

	// New public share URL. Set only on primary-transfer success.
	ShareURL string

	// Provider-specific identifier of the saved copy: the file id for
	// Quark, the destination path for Baidu. Set on success.
	ResourceID string

	// Human-readable reason. Set on StatusSaved and StatusFailed.
	Message string

	// Failure classification. Set on StatusFailed.
	Kind Kind
}

// OK returns a primary-transfer success carrying the new share URL.
func OK(shareURL, resourceID string) Result {
	return Result{Status: StatusSuccess, ShareURL: shareURL, ResourceID: resourceID}
}

// Injected returns an inject-transfer success. No share URL exists.
func Injected(resourceID string) Result {
	return Result{Status: StatusSuccess, ResourceID: resourceID}
}

// Saved returns a soft failure: copied, but not shared.
func Saved(message string) Result {
	return Result{Status: StatusSaved, Message: message}
}

// Fail returns a hard failure of the given kind.
func Fail(kind Kind, message string) Result {
	return Result{Status: StatusFailed, Message: message, Kind: kind}
}

// Shared reports whether r is a primary-transfer success whose URL may
// be substituted into the caller's text.
func (r Result) Shared() bool {
	return r.Status == StatusSuccess && r.ShareURL != ""
}

// Classify maps a transport-level error to a failure kind.
func Classify(err error) Kind {
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return KindTimeout
	}
	return KindUnknown
}
