package tams

import (
	"strconv"
	"strings"
	"time"
)

// Format URNs used by the store. Formats outside this set are ignored when
// resolving flow hierarchies.
const (
	FormatVideo = "urn:x-nmos:format:video"
	FormatAudio = "urn:x-nmos:format:audio"
)

// FlowKind classifies a flow once at decode time so downstream code never
// re-inspects raw fields to work out what shape a flow has.
type FlowKind int

const (
	KindOther FlowKind = iota
	KindCollection
	KindVideo
	KindAudio
)

// Rational is a numerator/denominator pair as used for frame rates and
// segment durations. A zero denominator is treated as 1, matching the
// store's "denominator defaults to 1" convention.
type Rational struct {
	Numerator   int64 `json:"numerator"`
	Denominator int64 `json:"denominator,omitempty"`
}

// Float returns the rational as a float64.
func (r Rational) Float() float64 {
	d := r.Denominator
	if d == 0 {
		d = 1
	}
	return float64(r.Numerator) / float64(d)
}

// Tags is the raw loosely-typed tag map carried by sources and flows.
type Tags map[string]string

// FlowTags is the validated view of the tags this service acts on.
// Parsed once at the data-model boundary; synthesis code never reads the
// raw map.
type FlowTags struct {
	// HLSExclude suppresses the tagged source/flow and its whole subtree.
	HLSExclude bool
	// HLSSegments overrides the default segment count for media playlists.
	// Nil when the tag is absent or unparsable.
	HLSSegments *float64
	// Ingesting reports flow_status=ingesting, i.e. a live, growing flow.
	Ingesting bool
}

// ParseTags extracts the recognized tags from the raw map. Unknown tags are
// ignored; malformed values degrade to the zero value rather than failing,
// since tags are advisory configuration.
func ParseTags(raw Tags) FlowTags {
	var t FlowTags
	if raw == nil {
		return t
	}
	t.HLSExclude = strings.EqualFold(raw["hls_exclude"], "true")
	t.Ingesting = raw["flow_status"] == "ingesting"
	if s, ok := raw["hls_segments"]; ok {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			t.HLSSegments = &f
		}
	}
	return t
}

// Source is an addressable collection of flows sharing a timeline.
type Source struct {
	ID   string `json:"id"`
	Tags Tags   `json:"tags,omitempty"`
}

// Excluded reports whether the source is tagged hls_exclude=true.
func (s Source) Excluded() bool {
	return ParseTags(s.Tags).HLSExclude
}

// FlowRef is a reference to a child flow inside a flow_collection.
type FlowRef struct {
	ID string `json:"id"`
}

// EssenceParameters carries the per-format media parameters of a leaf flow.
type EssenceParameters struct {
	FrameWidth  int      `json:"frame_width,omitempty"`
	FrameHeight int      `json:"frame_height,omitempty"`
	FrameRate   Rational `json:"frame_rate,omitempty"`
	Channels    int      `json:"channels,omitempty"`
}

// Flow is a single essence track, or a virtual flow collecting other flows.
type Flow struct {
	ID                string            `json:"id"`
	Format            string            `json:"format"`
	Created           time.Time         `json:"created"`
	SegmentDuration   *Rational         `json:"segment_duration,omitempty"`
	Tags              Tags              `json:"tags,omitempty"`
	FlowCollection    []FlowRef         `json:"flow_collection,omitempty"`
	EssenceParameters EssenceParameters `json:"essence_parameters,omitempty"`
	Codec             string            `json:"codec,omitempty"`
	MaxBitRate        int64             `json:"max_bit_rate,omitempty"`
	AvgBitRate        int64             `json:"avg_bit_rate,omitempty"`
	Description       string            `json:"description,omitempty"`
}

// Kind resolves the flow's closed variant: a collection, a video leaf, an
// audio leaf, or something this service does not handle.
func (f Flow) Kind() FlowKind {
	switch {
	case len(f.FlowCollection) > 0:
		return KindCollection
	case f.Format == FormatVideo:
		return KindVideo
	case f.Format == FormatAudio:
		return KindAudio
	default:
		return KindOther
	}
}

// HLSTags returns the validated tag view for the flow.
func (f Flow) HLSTags() FlowTags {
	return ParseTags(f.Tags)
}

// SegmentDurationSeconds returns the nominal segment duration in seconds,
// or 0 when the flow does not declare one.
func (f Flow) SegmentDurationSeconds() float64 {
	if f.SegmentDuration == nil {
		return 0
	}
	return f.SegmentDuration.Float()
}

// GetURL is one retrieval URL offered for a segment.
type GetURL struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// presignedLabel marks the direct-retrieval URL among a segment's get_urls.
const presignedLabel = "s3.presigned"

// Segment is a discrete time-ranged unit of a leaf flow's essence.
type Segment struct {
	TimeRange string   `json:"timerange"`
	GetURLs   []GetURL `json:"get_urls"`
	TSOffset  string   `json:"ts_offset,omitempty"`
}

// PresignedURL returns the first get_url whose label identifies a presigned
// direct-retrieval URL, or "" when the segment carries none.
func (s Segment) PresignedURL() string {
	for _, u := range s.GetURLs {
		if strings.Contains(u.Label, presignedLabel) {
			return u.URL
		}
	}
	return ""
}

// Range parses the segment's timerange string.
func (s Segment) Range() (TimeRange, error) {
	return ParseTimeRange(s.TimeRange)
}
