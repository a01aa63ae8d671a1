package manifest

import (
	"fmt"
	"sort"
	"strings"

	"tams-hls-gateway/internal/tams"
)

const audioGroupID = "audio"

// BuildMasterPlaylist synthesizes a master playlist from resolved leaf
// flows. Video variants are ordered by descending max bit rate; ties keep
// resolver encounter order. With no video leaves, each audio leaf becomes a
// variant stream of its own instead of an alternate rendition. Media
// playlist URIs are path-relative, prefixed with pathPrefix when deployed
// behind a path-based gateway stage.
func BuildMasterPlaylist(video, audio []tams.Flow, codecs *CodecTable, pathPrefix string) (string, error) {
	if len(video) == 0 && len(audio) == 0 {
		return "", ErrNoPlayableFlows
	}

	sorted := make([]tams.Flow, len(video))
	copy(sorted, video)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MaxBitRate > sorted[j].MaxBitRate
	})

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:4\n")
	b.WriteString("#EXT-X-INDEPENDENT-SEGMENTS\n")

	if len(sorted) == 0 {
		// Audio-only ladder: one variant per audio leaf, no grouping.
		for _, flow := range audio {
			b.WriteString(fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d,AVERAGE-BANDWIDTH=%d,CODECS=%q\n",
				flow.MaxBitRate, flow.AvgBitRate, codecs.Map(flow.Codec)))
			b.WriteString(mediaPlaylistURI(pathPrefix, flow.ID))
			b.WriteString("\n")
		}
		return b.String(), nil
	}

	firstAudioCodec := ""
	for i, flow := range audio {
		codec := codecs.Map(flow.Codec)
		if i == 0 {
			firstAudioCodec = codec
		}
		defaultAttr := "NO"
		if i == 0 {
			defaultAttr = "YES"
		}
		b.WriteString(fmt.Sprintf("#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID=%q,NAME=%q,DEFAULT=%s,AUTOSELECT=YES,CHANNELS=%q,CODECS=%q,URI=%q\n",
			audioGroupID, flow.Description, defaultAttr,
			fmt.Sprintf("%d", flow.EssenceParameters.Channels), codec,
			mediaPlaylistURI(pathPrefix, flow.ID)))
	}

	for _, flow := range sorted {
		width := flow.EssenceParameters.FrameWidth
		height := flow.EssenceParameters.FrameHeight
		frameRate := flow.EssenceParameters.FrameRate.Float()

		codec := codecs.Map(flow.Codec)
		if codec == AVCCodecToken {
			codec += AVCLevelSuffix(width, height, frameRate)
		}
		// Only the first alternate-audio codec is declared per variant.
		// Known limitation: players selecting a non-default audio track may
		// see an under-declared codec set.
		if firstAudioCodec != "" {
			codec += "," + firstAudioCodec
		}

		b.WriteString(fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d,AVERAGE-BANDWIDTH=%d,CODECS=%q,RESOLUTION=%dx%d,FRAME-RATE=%.3f",
			flow.MaxBitRate, flow.AvgBitRate, codec, width, height, frameRate))
		if len(audio) > 0 {
			b.WriteString(fmt.Sprintf(",AUDIO=%q", audioGroupID))
		}
		b.WriteString("\n")
		b.WriteString(mediaPlaylistURI(pathPrefix, flow.ID))
		b.WriteString("\n")
	}

	return b.String(), nil
}

func mediaPlaylistURI(pathPrefix, flowID string) string {
	return pathPrefix + "/flows/" + flowID + "/output.m3u8"
}
