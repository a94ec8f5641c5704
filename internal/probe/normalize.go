package probe

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/samber/mo"

	"github.com/randomizedcoder/go-hls-analyzer/internal/hls"
)

// Normalize turns raw backend output into MediaFacts.
// It fails when no audio or video stream is present or when a reported
// bitrate or frame rate cannot be interpreted.
func Normalize(raw *Raw, hint Hint) (*MediaFacts, *Failure) {
	if raw == nil {
		return nil, &Failure{Kind: FailureNoStreams, Reason: "no probe output"}
	}

	video := lo.Filter(raw.Streams, func(s RawStream, _ int) bool { return s.CodecType == "video" })
	audio := lo.Filter(raw.Streams, func(s RawStream, _ int) bool { return s.CodecType == "audio" })
	if len(video) == 0 && len(audio) == 0 {
		return nil, &Failure{Kind: FailureNoStreams, Reason: "no audio or video stream"}
	}

	facts := &MediaFacts{
		Container: canonicalContainer(raw.Format.FormatName),
		Duration:  parseDuration(raw.Format.Duration),
	}

	// video codecs first so the codec string reads "h264,aac"
	names := lo.FilterMap(append(append([]RawStream{}, video...), audio...), func(s RawStream, _ int) (string, bool) {
		return s.CodecName, s.CodecName != ""
	})
	facts.Codecs = lo.Uniq(names)

	bitrate, src, err := pickBitrate(raw, video, hint)
	if err != nil {
		return nil, &Failure{Kind: FailureMalformed, Reason: err.Error()}
	}
	facts.BitrateMbps = bitrate
	facts.BitrateSource = src

	if len(video) > 0 {
		v := video[0]
		if v.Width > 0 && v.Height > 0 {
			facts.Resolution = mo.Some(hls.Resolution{Width: v.Width, Height: v.Height})
		} else if !hint.Resolution.IsZero() {
			facts.Resolution = mo.Some(hint.Resolution)
		}

		rate, err := ParseFrameRate(v.AvgFrameRate)
		if err != nil {
			return nil, &Failure{Kind: FailureMalformed, Reason: err.Error()}
		}
		if rate.IsAbsent() {
			if rate, err = ParseFrameRate(v.RFrameRate); err != nil {
				return nil, &Failure{Kind: FailureMalformed, Reason: err.Error()}
			}
		}
		if rate.IsAbsent() && hint.FrameRate > 0 {
			rate, _ = ParseFrameRate(strconv.FormatFloat(hint.FrameRate, 'f', -1, 64))
		}
		facts.FrameRate = rate

		facts.VideoRange = videoRange(v.ColorTransfer, hint.VideoRange)
	}

	return facts, nil
}

// pickBitrate applies the precedence: video stream bit_rate, program
// variant_bitrate, format bit_rate, then the advertised bandwidth.
func pickBitrate(raw *Raw, video []RawStream, hint Hint) (mo.Option[float64], BitrateSource, error) {
	if len(video) > 0 {
		if bps, ok, err := parseBitrate("stream bit_rate", video[0].BitRate); err != nil || ok {
			return mo.Some(mbps(bps)), BitrateFromStream, err
		}
	}
	for _, p := range raw.Programs {
		if bps, ok, err := parseBitrate("program variant_bitrate", p.Tags.VariantBitrate); err != nil || ok {
			return mo.Some(mbps(bps)), BitrateFromProgram, err
		}
	}
	if bps, ok, err := parseBitrate("format bit_rate", raw.Format.BitRate); err != nil || ok {
		return mo.Some(mbps(bps)), BitrateFromFormat, err
	}
	if hint.Bandwidth > 0 {
		return mo.Some(mbps(float64(hint.Bandwidth))), BitrateFromHint, nil
	}
	return mo.None[float64](), "", nil
}

// parseBitrate returns ok=false for absent values ("", "N/A", "0").
func parseBitrate(field, s string) (float64, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0, false, nil
	}
	bps, err := strconv.ParseFloat(s, 64)
	if err != nil || bps < 0 || !finite(bps) {
		return 0, false, fmt.Errorf("malformed %s %q", field, s)
	}
	if bps == 0 {
		return 0, false, nil
	}
	return bps, true, nil
}

func parseDuration(s string) mo.Option[float64] {
	d, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || d <= 0 || !finite(d) {
		return mo.None[float64]()
	}
	return mo.Some(d)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// videoRange maps color_transfer to SDR, PQ or HLG. The advertised
// VIDEO-RANGE is used when ffprobe reports no transfer characteristic.
func videoRange(colorTransfer, advertised string) string {
	switch strings.ToLower(strings.TrimSpace(colorTransfer)) {
	case "smpte2084":
		return "PQ"
	case "arib-std-b67":
		return "HLG"
	case "", "unknown":
		if advertised != "" {
			return strings.ToUpper(advertised)
		}
		return "SDR"
	default:
		return "SDR"
	}
}
