package manifest

import "errors"

var (
	// ErrExcluded is returned when the requested source or flow is tagged
	// hls_exclude=true. It is a policy decision, not a failure, and maps to
	// 406 Not Acceptable at the HTTP boundary.
	ErrExcluded = errors.New("resource is tagged as hls_exclude")

	// ErrNoSegments is returned when a flow resolves to zero segments.
	// There is no first segment to anchor sequence and timestamp math, so
	// generation fails rather than emitting a degenerate playlist.
	ErrNoSegments = errors.New("flow has no segments")

	// ErrNoPlayableFlows is returned when a collection resolves to zero
	// playable leaf flows.
	ErrNoPlayableFlows = errors.New("collection has no playable flows")

	// ErrMalformedData is returned when upstream data is missing a field
	// required for synthesis, such as a presigned URL or a parsable
	// timerange.
	ErrMalformedData = errors.New("malformed upstream data")
)
