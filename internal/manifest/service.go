package manifest

import (
	"context"
	"fmt"

	"tams-hls-gateway/internal/tams"
)

// DefaultSegmentCount is the segment count used for media playlists when
// neither configuration nor the flow's hls_segments tag overrides it.
const DefaultSegmentCount = 150

// StoreClient is the upstream store surface the service needs.
// *tams.Client satisfies it.
type StoreClient interface {
	Source(ctx context.Context, id string) (tams.Source, error)
	Flow(ctx context.Context, id string) (tams.Flow, error)
	FlowsBySource(ctx context.Context, sourceID string) ([]tams.Flow, error)
	Segments(ctx context.Context, flowID string, limit float64) ([]tams.Segment, error)
}

// Service runs the resolve-then-synthesize pipeline for one request at a
// time. All state it touches is either read-only (the codec table) or scoped
// to the request, so it is safe for concurrent use.
type Service struct {
	store           StoreClient
	codecs          *CodecTable
	resolver        *Resolver
	defaultSegments float64
	pathPrefix      string
}

// NewService returns a Service over the given store and codec table.
// defaultSegments bounds media playlist length when the flow does not
// override it; pass a non-positive value to use DefaultSegmentCount.
func NewService(store StoreClient, codecs *CodecTable, defaultSegments float64, pathPrefix string) *Service {
	if defaultSegments <= 0 {
		defaultSegments = DefaultSegmentCount
	}
	return &Service{
		store:           store,
		codecs:          codecs,
		resolver:        NewResolver(store),
		defaultSegments: defaultSegments,
		pathPrefix:      pathPrefix,
	}
}

// SourceManifest synthesizes the master playlist for all non-excluded flows
// of a source. A source tagged hls_exclude=true yields ErrExcluded before
// any of its flows are fetched.
func (s *Service) SourceManifest(ctx context.Context, sourceID string) (string, error) {
	source, err := s.store.Source(ctx, sourceID)
	if err != nil {
		return "", err
	}
	if source.Excluded() {
		return "", fmt.Errorf("%w: source %s", ErrExcluded, sourceID)
	}

	flows, err := s.store.FlowsBySource(ctx, sourceID)
	if err != nil {
		return "", err
	}

	video, audio, err := s.resolver.Resolve(ctx, flows)
	if err != nil {
		return "", err
	}
	return BuildMasterPlaylist(video, audio, s.codecs, s.pathPrefix)
}

// FlowManifest synthesizes a playlist for one flow: a master playlist when
// the flow is a collection, otherwise a media playlist over the flow's own
// segments. A flow tagged hls_exclude=true yields ErrExcluded.
func (s *Service) FlowManifest(ctx context.Context, flowID string) (string, error) {
	flow, err := s.store.Flow(ctx, flowID)
	if err != nil {
		return "", err
	}
	if flow.HLSTags().HLSExclude {
		return "", fmt.Errorf("%w: flow %s", ErrExcluded, flowID)
	}

	if flow.Kind() == tams.KindCollection {
		video, audio, err := s.resolver.Resolve(ctx, []tams.Flow{flow})
		if err != nil {
			return "", err
		}
		return BuildMasterPlaylist(video, audio, s.codecs, s.pathPrefix)
	}

	limit := s.defaultSegments
	if override := flow.HLSTags().HLSSegments; override != nil {
		limit = *override
	}
	segments, err := s.store.Segments(ctx, flowID, limit)
	if err != nil {
		return "", err
	}
	return BuildMediaPlaylist(flow, segments)
}
