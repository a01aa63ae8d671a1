package manifest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"tams-hls-gateway/internal/tams"
)

// fakeStore is an in-memory StoreClient for service tests.
type fakeStore struct {
	sources  map[string]tams.Source
	flows    map[string]tams.Flow
	bySource map[string][]tams.Flow
	segments map[string][]tams.Segment

	flowsBySourceCalls int
	segmentLimit       float64
}

func (s *fakeStore) Source(_ context.Context, id string) (tams.Source, error) {
	src, ok := s.sources[id]
	if !ok {
		return tams.Source{}, &tams.UpstreamError{Status: 404, URL: "/sources/" + id}
	}
	return src, nil
}

func (s *fakeStore) Flow(_ context.Context, id string) (tams.Flow, error) {
	flow, ok := s.flows[id]
	if !ok {
		return tams.Flow{}, &tams.UpstreamError{Status: 404, URL: "/flows/" + id}
	}
	return flow, nil
}

func (s *fakeStore) FlowsBySource(_ context.Context, sourceID string) ([]tams.Flow, error) {
	s.flowsBySourceCalls++
	flows, ok := s.bySource[sourceID]
	if !ok {
		return nil, &tams.UpstreamError{Status: 404, URL: "/flows?source_id=" + sourceID}
	}
	return flows, nil
}

func (s *fakeStore) Segments(_ context.Context, flowID string, limit float64) ([]tams.Segment, error) {
	s.segmentLimit = limit
	return s.segments[flowID], nil
}

func leafVideo(id string) tams.Flow {
	return tams.Flow{
		ID:         id,
		Format:     tams.FormatVideo,
		Codec:      "video/h264",
		Created:    time.Unix(1000, 0).UTC(),
		MaxBitRate: 5_000_000,
		AvgBitRate: 4_000_000,
		EssenceParameters: tams.EssenceParameters{
			FrameWidth:  1920,
			FrameHeight: 1080,
			FrameRate:   tams.Rational{Numerator: 25},
		},
	}
}

func leafSegments(n int) []tams.Segment {
	segs := make([]tams.Segment, n)
	for i := 0; i < n; i++ {
		start := 1000 + int64(n-1-i)*2
		segs[i] = tams.Segment{
			TimeRange: fmt.Sprintf("[%d:0_%d:0)", start, start+2),
			GetURLs:   []tams.GetURL{{Label: "s3.presigned", URL: fmt.Sprintf("https://store/%d.ts", start)}},
		}
	}
	return segs
}

func TestService_sourceManifest(t *testing.T) {
	store := &fakeStore{
		sources:  map[string]tams.Source{"s1": {ID: "s1"}},
		bySource: map[string][]tams.Flow{"s1": {leafVideo("v1")}},
	}
	svc := NewService(store, NewStaticCodecTable(testMappings), 0, "")

	out, err := svc.SourceManifest(context.Background(), "s1")
	if err != nil {
		t.Fatalf("SourceManifest: %v", err)
	}
	if !strings.Contains(out, "#EXT-X-STREAM-INF:") || !strings.Contains(out, "/flows/v1/output.m3u8") {
		t.Errorf("expected master playlist for source:\n%s", out)
	}
}

func TestService_sourceManifest_excluded(t *testing.T) {
	store := &fakeStore{
		sources: map[string]tams.Source{"s1": {ID: "s1", Tags: tams.Tags{"hls_exclude": "true"}}},
	}
	svc := NewService(store, NewStaticCodecTable(nil), 0, "")

	_, err := svc.SourceManifest(context.Background(), "s1")
	if !errors.Is(err, ErrExcluded) {
		t.Fatalf("expected ErrExcluded, got %v", err)
	}
	if store.flowsBySourceCalls != 0 {
		t.Error("excluded source must not have its flows fetched")
	}
}

func TestService_flowManifest_leaf(t *testing.T) {
	flow := leafVideo("v1")
	store := &fakeStore{
		flows:    map[string]tams.Flow{"v1": flow},
		segments: map[string][]tams.Segment{"v1": leafSegments(3)},
	}
	svc := NewService(store, NewStaticCodecTable(nil), 0, "")

	out, err := svc.FlowManifest(context.Background(), "v1")
	if err != nil {
		t.Fatalf("FlowManifest: %v", err)
	}
	if !strings.Contains(out, "#EXTINF:") {
		t.Errorf("leaf flow should yield a media playlist:\n%s", out)
	}
	if store.segmentLimit != DefaultSegmentCount {
		t.Errorf("expected default segment limit, got %v", store.segmentLimit)
	}
}

func TestService_flowManifest_collection(t *testing.T) {
	collection := tams.Flow{
		ID:             "c1",
		Format:         tams.FormatVideo,
		FlowCollection: []tams.FlowRef{{ID: "v1"}},
	}
	store := &fakeStore{
		flows: map[string]tams.Flow{"c1": collection, "v1": leafVideo("v1")},
	}
	svc := NewService(store, NewStaticCodecTable(testMappings), 0, "")

	out, err := svc.FlowManifest(context.Background(), "c1")
	if err != nil {
		t.Fatalf("FlowManifest: %v", err)
	}
	if !strings.Contains(out, "#EXT-X-STREAM-INF:") {
		t.Errorf("collection flow should yield a master playlist:\n%s", out)
	}
}

func TestService_flowManifest_excluded(t *testing.T) {
	flow := leafVideo("v1")
	flow.Tags = tams.Tags{"hls_exclude": "True"}
	store := &fakeStore{flows: map[string]tams.Flow{"v1": flow}}
	svc := NewService(store, NewStaticCodecTable(nil), 0, "")

	if _, err := svc.FlowManifest(context.Background(), "v1"); !errors.Is(err, ErrExcluded) {
		t.Errorf("expected ErrExcluded, got %v", err)
	}
}

func TestService_flowManifest_segment_tag_override(t *testing.T) {
	flow := leafVideo("v1")
	flow.Tags = tams.Tags{"hls_segments": "7"}
	store := &fakeStore{
		flows:    map[string]tams.Flow{"v1": flow},
		segments: map[string][]tams.Segment{"v1": leafSegments(3)},
	}
	svc := NewService(store, NewStaticCodecTable(nil), 150, "")

	if _, err := svc.FlowManifest(context.Background(), "v1"); err != nil {
		t.Fatalf("FlowManifest: %v", err)
	}
	if store.segmentLimit != 7 {
		t.Errorf("hls_segments tag should override the default limit, got %v", store.segmentLimit)
	}
}

func TestService_flowManifest_upstream_error(t *testing.T) {
	store := &fakeStore{flows: map[string]tams.Flow{}}
	svc := NewService(store, NewStaticCodecTable(nil), 0, "")

	_, err := svc.FlowManifest(context.Background(), "missing")
	var ue *tams.UpstreamError
	if !errors.As(err, &ue) {
		t.Errorf("expected UpstreamError, got %v", err)
	}
}

func TestService_flowManifest_no_segments(t *testing.T) {
	store := &fakeStore{
		flows:    map[string]tams.Flow{"v1": leafVideo("v1")},
		segments: map[string][]tams.Segment{},
	}
	svc := NewService(store, NewStaticCodecTable(nil), 0, "")

	if _, err := svc.FlowManifest(context.Background(), "v1"); !errors.Is(err, ErrNoSegments) {
		t.Errorf("expected ErrNoSegments, got %v", err)
	}
}
