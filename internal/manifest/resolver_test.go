package manifest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"tams-hls-gateway/internal/tams"
)

// mapFetcher serves child flows from a map and records fetched ids.
// Sibling fetches run concurrently, so the record is mutex-guarded.
type mapFetcher struct {
	flows map[string]tams.Flow

	mu      sync.Mutex
	fetched []string
}

func (f *mapFetcher) Flow(_ context.Context, id string) (tams.Flow, error) {
	flow, ok := f.flows[id]
	if !ok {
		return tams.Flow{}, fmt.Errorf("no such flow %s", id)
	}
	f.mu.Lock()
	f.fetched = append(f.fetched, id)
	f.mu.Unlock()
	return flow, nil
}

func videoFlow(id string, maxBitRate int64) tams.Flow {
	return tams.Flow{ID: id, Format: tams.FormatVideo, MaxBitRate: maxBitRate}
}

func audioFlow(id string) tams.Flow {
	return tams.Flow{ID: id, Format: tams.FormatAudio}
}

func collectionFlow(id string, children ...string) tams.Flow {
	refs := make([]tams.FlowRef, len(children))
	for i, c := range children {
		refs[i] = tams.FlowRef{ID: c}
	}
	return tams.Flow{ID: id, Format: tams.FormatVideo, FlowCollection: refs}
}

func TestResolver_partitions_leaves(t *testing.T) {
	fetcher := &mapFetcher{flows: map[string]tams.Flow{
		"v1": videoFlow("v1", 5_000_000),
		"v2": videoFlow("v2", 2_000_000),
		"a1": audioFlow("a1"),
	}}
	r := NewResolver(fetcher)

	video, audio, err := r.Resolve(context.Background(), []tams.Flow{collectionFlow("root", "v1", "v2", "a1")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(video) != 2 || len(audio) != 1 {
		t.Fatalf("expected 2 video + 1 audio, got %d + %d", len(video), len(audio))
	}
}

func TestResolver_nested_collections(t *testing.T) {
	fetcher := &mapFetcher{flows: map[string]tams.Flow{
		"ladder": collectionFlow("ladder", "v1", "v2"),
		"v1":     videoFlow("v1", 5_000_000),
		"v2":     videoFlow("v2", 2_000_000),
		"a1":     audioFlow("a1"),
	}}
	r := NewResolver(fetcher)

	video, audio, err := r.Resolve(context.Background(), []tams.Flow{collectionFlow("root", "ladder", "a1")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(video) != 2 {
		t.Errorf("nested collection should yield 2 video leaves, got %d", len(video))
	}
	if len(audio) != 1 {
		t.Errorf("expected 1 audio leaf, got %d", len(audio))
	}
}

func TestResolver_excluded_subtree_dropped(t *testing.T) {
	excluded := collectionFlow("sub", "v2")
	excluded.Tags = tams.Tags{"hls_exclude": "true"}

	fetcher := &mapFetcher{flows: map[string]tams.Flow{
		"v1":  videoFlow("v1", 5_000_000),
		"sub": excluded,
		"v2":  videoFlow("v2", 2_000_000),
	}}
	r := NewResolver(fetcher)

	video, _, err := r.Resolve(context.Background(), []tams.Flow{collectionFlow("root", "v1", "sub")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(video) != 1 || video[0].ID != "v1" {
		t.Errorf("excluded subtree should be dropped entirely, got %+v", video)
	}
	for _, id := range fetcher.fetched {
		if id == "v2" {
			t.Error("children of an excluded collection must not be fetched")
		}
	}
}

func TestResolver_deduplicates_by_id(t *testing.T) {
	fetcher := &mapFetcher{flows: map[string]tams.Flow{
		"v1": videoFlow("v1", 5_000_000),
	}}
	r := NewResolver(fetcher)

	video, _, err := r.Resolve(context.Background(), []tams.Flow{
		collectionFlow("c1", "v1"),
		collectionFlow("c2", "v1"),
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(video) != 1 {
		t.Errorf("duplicate leaf should appear once, got %d", len(video))
	}
}

func TestResolver_self_referential_collection_terminates(t *testing.T) {
	fetcher := &mapFetcher{flows: map[string]tams.Flow{}}
	fetcher.flows["loop"] = collectionFlow("loop", "loop", "v1")
	fetcher.flows["v1"] = videoFlow("v1", 1_000_000)
	r := NewResolver(fetcher)

	video, _, err := r.Resolve(context.Background(), []tams.Flow{fetcher.flows["loop"]})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(video) != 1 {
		t.Errorf("cycle should not prevent leaf resolution, got %d video leaves", len(video))
	}
}

func TestResolver_ignores_other_formats(t *testing.T) {
	data := tams.Flow{ID: "d1", Format: "urn:x-nmos:format:data"}
	r := NewResolver(&mapFetcher{})

	video, audio, err := r.Resolve(context.Background(), []tams.Flow{data, videoFlow("v1", 1)})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(video) != 1 || len(audio) != 0 {
		t.Errorf("data format should be ignored, got %d video %d audio", len(video), len(audio))
	}
}

func TestResolver_lifo_seed_order(t *testing.T) {
	r := NewResolver(&mapFetcher{})

	video, _, err := r.Resolve(context.Background(), []tams.Flow{
		videoFlow("first", 1),
		videoFlow("second", 1),
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// Seeds are popped last-in-first-out; downstream stable sorts rely on it.
	if video[0].ID != "second" || video[1].ID != "first" {
		t.Errorf("expected LIFO seed order [second first], got [%s %s]", video[0].ID, video[1].ID)
	}
}
