// Package probe extracts media facts (bitrate, resolution, frame rate,
// codecs) from manifests and variant streams through an inspection backend.
package probe

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/samber/mo"

	"github.com/randomizedcoder/go-hls-analyzer/internal/hls"
)

// Role says what a probe target represents.
type Role int

const (
	RoleManifest Role = iota // the manifest the user asked about
	RoleVariant              // one variant stream of a master manifest
)

func (r Role) String() string {
	switch r {
	case RoleManifest:
		return "manifest"
	case RoleVariant:
		return "variant"
	default:
		return "unknown"
	}
}

// Hint carries attributes advertised by the manifest for a target.
// The bandwidth is used when the backend reports no bitrate at all.
type Hint struct {
	Bandwidth  int64
	Resolution hls.Resolution
	Codecs     string
	FrameRate  float64
	VideoRange string
}

// HintFromVariant copies the advertised attributes of v.
func HintFromVariant(v hls.VariantRef) Hint {
	return Hint{
		Bandwidth:  v.Bandwidth,
		Resolution: v.Resolution,
		Codecs:     v.Codecs,
		FrameRate:  v.FrameRate,
		VideoRange: v.VideoRange,
	}
}

// Target is one URI to inspect.
type Target struct {
	URI  string
	Role Role
	Hint Hint
}

// BitrateSource records where a bitrate value came from.
type BitrateSource string

const (
	BitrateFromStream  BitrateSource = "stream"
	BitrateFromProgram BitrateSource = "program"
	BitrateFromFormat  BitrateSource = "format"
	BitrateFromHint    BitrateSource = "advertised"
)

// FrameRate is a rational frame rate such as 30000/1001.
type FrameRate struct {
	Num int64
	Den int64
}

// Float returns the frame rate in frames per second.
func (f FrameRate) Float() float64 {
	if f.Den == 0 {
		return 0
	}
	return float64(f.Num) / float64(f.Den)
}

func (f FrameRate) String() string {
	if f.Den == 1 {
		return strconv.FormatInt(f.Num, 10)
	}
	return fmt.Sprintf("%d/%d", f.Num, f.Den)
}

var errMalformedRate = errors.New("malformed frame rate")

// ParseFrameRate parses "30000/1001", "25" or "29.97".
// Empty, "N/A" and "0/0" are absent rather than malformed.
func ParseFrameRate(s string) (mo.Option[FrameRate], error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" || s == "0/0" {
		return mo.None[FrameRate](), nil
	}

	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseInt(num, 10, 64)
		d, err2 := strconv.ParseInt(den, 10, 64)
		if err1 != nil || err2 != nil || n < 0 || d <= 0 {
			return mo.None[FrameRate](), fmt.Errorf("%w: %q", errMalformedRate, s)
		}
		if n == 0 {
			return mo.None[FrameRate](), nil
		}
		return mo.Some(reduce(n, d)), nil
	}

	r, ok := new(big.Rat).SetString(s)
	if !ok || r.Sign() < 0 {
		return mo.None[FrameRate](), fmt.Errorf("%w: %q", errMalformedRate, s)
	}
	if r.Sign() == 0 {
		return mo.None[FrameRate](), nil
	}
	if !r.Num().IsInt64() || !r.Denom().IsInt64() {
		return mo.None[FrameRate](), fmt.Errorf("%w: %q", errMalformedRate, s)
	}
	return mo.Some(FrameRate{Num: r.Num().Int64(), Den: r.Denom().Int64()}), nil
}

func reduce(n, d int64) FrameRate {
	a, b := n, d
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return FrameRate{Num: n, Den: d}
	}
	return FrameRate{Num: n / a, Den: d / a}
}

// MediaFacts are the normalised properties of one probed target.
type MediaFacts struct {
	BitrateMbps   mo.Option[float64]
	BitrateSource BitrateSource
	Resolution    mo.Option[hls.Resolution]
	FrameRate     mo.Option[FrameRate]
	Codecs        []string // video codecs first, then audio, deduplicated
	Container     string
	Duration      mo.Option[float64] // seconds
	VideoRange    string             // SDR, PQ or HLG; empty without video
}

// CodecString joins the codecs as "h264,aac".
func (m *MediaFacts) CodecString() string {
	return strings.Join(m.Codecs, ",")
}

// FailureKind classifies a probe failure.
type FailureKind string

const (
	FailureBackend   FailureKind = "backend"   // the backend could not run or returned an error
	FailureTimeout   FailureKind = "timeout"   // the probe exceeded its deadline
	FailureMalformed FailureKind = "malformed" // a reported value could not be interpreted
	FailureNoStreams FailureKind = "no_streams"
)

// Failure explains why a target produced no facts.
type Failure struct {
	Kind   FailureKind
	Reason string
}

func (f *Failure) Error() string {
	return string(f.Kind) + ": " + f.Reason
}

// Result is the outcome of probing one target.
// Exactly one of Facts and Failure is non-nil.
type Result struct {
	Target  Target
	Facts   *MediaFacts
	Failure *Failure
}

// OK reports whether the probe produced facts.
func (r Result) OK() bool {
	return r.Facts != nil
}

// mbps converts bits per second to megabits per second.
func mbps(bps float64) float64 {
	return bps / 1e6
}
