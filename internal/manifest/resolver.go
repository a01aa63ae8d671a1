package manifest

import (
	"context"

	"golang.org/x/sync/errgroup"

	"tams-hls-gateway/internal/tams"
)

// FlowFetcher fetches a flow's metadata by id. *tams.Client satisfies it.
type FlowFetcher interface {
	Flow(ctx context.Context, id string) (tams.Flow, error)
}

// Resolver expands nested flow collections into their leaf flows.
type Resolver struct {
	flows FlowFetcher
}

// NewResolver returns a Resolver that fetches child flows via flows.
func NewResolver(flows FlowFetcher) *Resolver {
	return &Resolver{flows: flows}
}

// Resolve expands the seed flows into deduplicated video and audio leaf
// sequences.
//
// Seeds are processed in last-in-first-out order: the last seed is expanded
// first, and a collection's children are expanded before flows pushed
// earlier. This is the reference traversal order; the master synthesizer's
// stable bit-rate sort depends on it for tie-breaking, so it must not be
// changed casually.
//
// A flow tagged hls_exclude=true is dropped together with its entire
// subtree. Formats other than video and audio are ignored. A visited set
// keyed by flow id guards against self-referential collections and drops
// duplicates.
func (r *Resolver) Resolve(ctx context.Context, seeds []tams.Flow) (video, audio []tams.Flow, err error) {
	stack := make([]tams.Flow, len(seeds))
	copy(stack, seeds)
	visited := make(map[string]bool, len(seeds))

	for len(stack) > 0 {
		flow := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[flow.ID] {
			continue
		}
		visited[flow.ID] = true

		if flow.HLSTags().HLSExclude {
			continue
		}

		switch flow.Kind() {
		case tams.KindCollection:
			children, err := r.fetchChildren(ctx, flow.FlowCollection)
			if err != nil {
				return nil, nil, err
			}
			stack = append(stack, children...)
		case tams.KindVideo:
			video = append(video, flow)
		case tams.KindAudio:
			audio = append(audio, flow)
		}
	}

	return video, audio, nil
}

// fetchChildren fetches a collection's children concurrently and returns
// them in declaration order, so parallelism never changes traversal order.
func (r *Resolver) fetchChildren(ctx context.Context, refs []tams.FlowRef) ([]tams.Flow, error) {
	children := make([]tams.Flow, len(refs))
	g, ctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			flow, err := r.flows.Flow(ctx, ref.ID)
			if err != nil {
				return err
			}
			children[i] = flow
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return children, nil
}
