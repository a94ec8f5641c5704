// Package hls parses HLS playlists into a model of variants and segments.
//
// Parsing is pure: it never touches the network. Every URI stored in the
// model has already been resolved against the playlist's own location.
package hls

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind distinguishes master playlists from media playlists.
type Kind int

const (
	KindMedia Kind = iota
	KindMaster
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindMaster:
		return "master"
	case KindMedia:
		return "media"
	default:
		return "unknown"
	}
}

// Manifest is a parsed playlist.
// A master manifest owns Variants, a media manifest owns Segments.
type Manifest struct {
	Kind           Kind
	URI            string // absolute location the manifest was parsed against
	Version        int
	TargetDuration float64
	MediaSequence  int64
	Ended          bool // #EXT-X-ENDLIST seen

	Variants []VariantRef
	Segments []SegmentRef
}

// IsMaster reports whether the manifest lists variant streams.
func (m *Manifest) IsMaster() bool {
	return m.Kind == KindMaster
}

// SegmentURIs returns the segment URIs in manifest order.
func (m *Manifest) SegmentURIs() []string {
	uris := make([]string, len(m.Segments))
	for i, s := range m.Segments {
		uris[i] = s.URI
	}
	return uris
}

// TotalDuration returns the sum of all segment durations in seconds.
func (m *Manifest) TotalDuration() float64 {
	var total float64
	for _, s := range m.Segments {
		total += s.Duration
	}
	return total
}

// Resolution is a WIDTHxHEIGHT pair.
type Resolution struct {
	Width  int
	Height int
}

// IsZero reports whether the resolution is unset.
func (r Resolution) IsZero() bool {
	return r.Width == 0 && r.Height == 0
}

// String formats the resolution as "1920x1080".
func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// ParseResolution parses "1920x1080".
func ParseResolution(s string) (Resolution, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Resolution{}, fmt.Errorf("resolution %q: missing 'x'", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return Resolution{}, fmt.Errorf("resolution %q: bad width", s)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return Resolution{}, fmt.Errorf("resolution %q: bad height", s)
	}
	return Resolution{Width: width, Height: height}, nil
}

// VariantRef is one #EXT-X-STREAM-INF entry of a master manifest.
// Zero values mean the attribute was not advertised.
type VariantRef struct {
	URI              string
	Bandwidth        int64 // bits/sec
	AverageBandwidth int64 // bits/sec
	Resolution       Resolution
	Codecs           string
	FrameRate        float64
	VideoRange       string
}

// HasBandwidth reports whether BANDWIDTH was advertised.
func (v VariantRef) HasBandwidth() bool {
	return v.Bandwidth > 0
}

// HasResolution reports whether RESOLUTION was advertised.
func (v VariantRef) HasResolution() bool {
	return !v.Resolution.IsZero()
}

// SegmentRef is one media segment of a media manifest.
type SegmentRef struct {
	URI      string
	Duration float64 // seconds, from #EXTINF
	Sequence int64   // media sequence number
	Title    string
}
