package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// AVCCodecToken is the HLS codec family token that takes a profile/level
// suffix derived from resolution and frame rate.
const AVCCodecToken = "avc1"

// CodecMapping pairs a store-native codec identifier with its HLS CODECS
// attribute token.
type CodecMapping struct {
	TAMS string `json:"tams"`
	HLS  string `json:"hls"`
}

// Loader retrieves the raw codec-mapping table.
type Loader interface {
	Load(ctx context.Context) ([]CodecMapping, error)
}

// FileLoader reads the mapping table from a local JSON file.
type FileLoader struct {
	Path string
}

func (l FileLoader) Load(context.Context) ([]CodecMapping, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("read codec table: %w", err)
	}
	return decodeMappings(data)
}

// S3Loader reads the mapping table from an S3 object.
type S3Loader struct {
	Client *s3.Client
	Bucket string
	Key    string
}

func (l S3Loader) Load(ctx context.Context) ([]CodecMapping, error) {
	out, err := l.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.Bucket),
		Key:    aws.String(l.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch codec table s3://%s/%s: %w", l.Bucket, l.Key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read codec table body: %w", err)
	}
	return decodeMappings(data)
}

func decodeMappings(data []byte) ([]CodecMapping, error) {
	var mappings []CodecMapping
	if err := json.Unmarshal(data, &mappings); err != nil {
		return nil, fmt.Errorf("decode codec table: %w", err)
	}
	return mappings, nil
}

// CodecTable maps between store codec identifiers and HLS codec tokens.
// The mapping set is refreshed as a whole: readers always see either the
// previous or the new complete table, never a partial update.
type CodecTable struct {
	loader   Loader
	mappings atomic.Pointer[[]CodecMapping]
}

// NewCodecTable returns a table backed by loader, initially empty. Call
// Refresh before first use; Map falls back gracefully on an empty table.
func NewCodecTable(loader Loader) *CodecTable {
	t := &CodecTable{loader: loader}
	t.mappings.Store(&[]CodecMapping{})
	return t
}

// NewStaticCodecTable returns a table with a fixed mapping set, for tests
// and deployments without an external table.
func NewStaticCodecTable(mappings []CodecMapping) *CodecTable {
	t := &CodecTable{}
	t.mappings.Store(&mappings)
	return t
}

// Refresh loads a fresh mapping set and swaps it in whole.
func (t *CodecTable) Refresh(ctx context.Context) error {
	if t.loader == nil {
		return nil
	}
	mappings, err := t.loader.Load(ctx)
	if err != nil {
		return err
	}
	t.mappings.Store(&mappings)
	return nil
}

// Run refreshes the table every interval until ctx is canceled. A failed
// refresh keeps the current table and is logged; the table stays usable.
func (t *CodecTable) Run(ctx context.Context, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Refresh(ctx); err != nil {
				log.Warn("codec table refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Len returns the number of loaded mappings.
func (t *CodecTable) Len() int {
	return len(*t.mappings.Load())
}

// Map translates a codec identifier using the mapping table, matching in
// either direction. With no table match, a MIME-type-shaped input yields
// its subtype; anything else passes through unchanged. Map never fails.
func (t *CodecTable) Map(codec string) string {
	for _, m := range *t.mappings.Load() {
		if codec == m.TAMS {
			return m.HLS
		}
		if codec == m.HLS {
			return m.TAMS
		}
	}
	if i := strings.LastIndex(codec, "/"); i >= 0 {
		return codec[i+1:]
	}
	return codec
}

// AVCLevelSuffix derives the profile/level suffix appended to the AVC codec
// token, from resolution and frame rate. Breakpoints are checked in
// descending order of frame area; crossing a breakpoint on either axis
// counts. Malformed input falls back to level 3.1.
func AVCLevelSuffix(width, height int, fps float64) string {
	const profile = ".6400"

	var level string
	switch {
	case width >= 3840 || height >= 2160:
		level = "32"
	case width >= 1920 || height >= 1080:
		if fps > 30 {
			level = "2c"
		} else {
			level = "28"
		}
	case width >= 0 || height >= 0:
		level = "1f"
	default:
		// Negative on both axes: no breakpoint matched.
		return profile + "1f"
	}
	return profile + level
}
