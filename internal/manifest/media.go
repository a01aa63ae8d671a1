package manifest

import (
	"fmt"
	"math"
	"strings"

	"tams-hls-gateway/internal/tams"
)

// programDateTimeLayout renders millisecond precision with an explicit UTC
// offset, as players expect for EXT-X-PROGRAM-DATE-TIME.
const programDateTimeLayout = "2006-01-02T15:04:05.000+00:00"

// BuildMediaPlaylist synthesizes a media playlist for one leaf flow from its
// segments as fetched from the store, newest first. Segments are reversed to
// chronological order before emission. An ingesting flow yields an EVENT
// playlist with a media sequence derived from the flow's nominal segment
// cadence; a finished flow yields a VOD playlist starting at sequence 1 and
// terminated with an end-of-list marker.
func BuildMediaPlaylist(flow tams.Flow, segments []tams.Segment) (string, error) {
	if len(segments) == 0 {
		return "", fmt.Errorf("%w: flow %s", ErrNoSegments, flow.ID)
	}

	// The store returns newest first; HLS media sequence order is strictly
	// chronological.
	ordered := make([]tams.Segment, len(segments))
	for i, seg := range segments {
		ordered[len(segments)-1-i] = seg
	}

	durations := make([]float64, len(ordered))
	for i, seg := range ordered {
		tr, err := seg.Range()
		if err != nil {
			return "", fmt.Errorf("%w: segment timerange %q", ErrMalformedData, seg.TimeRange)
		}
		length, err := tr.LengthSeconds()
		if err != nil {
			return "", fmt.Errorf("%w: segment timerange %q", ErrMalformedData, seg.TimeRange)
		}
		durations[i] = length
	}

	firstRange, err := ordered[0].Range()
	if err != nil || firstRange.Start == nil {
		return "", fmt.Errorf("%w: first segment has no start timestamp", ErrMalformedData)
	}
	firstStart := firstRange.Start

	segmentDuration := flow.SegmentDurationSeconds()
	targetDuration := segmentDuration
	if targetDuration <= 0 {
		// Flow does not declare a cadence; fall back to the first segment.
		targetDuration = durations[0]
	}

	tags := flow.HLSTags()

	mediaSequence := int64(1)
	if tags.Ingesting && segmentDuration > 0 {
		mediaSequence = int64((firstStart.Float() - float64(flow.Created.Unix())) / segmentDuration)
	}

	playlistType := "VOD"
	if tags.Ingesting {
		playlistType = "EVENT"
	}

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:4\n")
	b.WriteString(fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", int(math.Ceil(targetDuration))))
	b.WriteString(fmt.Sprintf("#EXT-X-MEDIA-SEQUENCE:%d\n", mediaSequence))
	b.WriteString("#EXT-X-PLAYLIST-TYPE:" + playlistType + "\n")
	b.WriteString("#EXT-X-PROGRAM-DATE-TIME:" + firstStart.Time().Format(programDateTimeLayout) + "\n")

	prevOffset := ""
	for i, seg := range ordered {
		if i > 0 && seg.TSOffset != prevOffset {
			b.WriteString("#EXT-X-DISCONTINUITY\n")
		}
		prevOffset = seg.TSOffset

		url := seg.PresignedURL()
		if url == "" {
			return "", fmt.Errorf("%w: segment %q has no presigned URL", ErrMalformedData, seg.TimeRange)
		}

		b.WriteString(fmt.Sprintf("#EXTINF:%.3f,\n", durations[i]))
		b.WriteString(url)
		b.WriteString("\n")
	}

	if !tags.Ingesting {
		b.WriteString("#EXT-X-ENDLIST\n")
	}

	return b.String(), nil
}
