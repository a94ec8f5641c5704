package probe

import (
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomizedcoder/go-hls-analyzer/internal/hls"
)

func videoStream() RawStream {
	return RawStream{
		Index:         0,
		CodecType:     "video",
		CodecName:     "h264",
		Width:         1920,
		Height:        1080,
		AvgFrameRate:  "30000/1001",
		RFrameRate:    "30000/1001",
		ColorTransfer: "bt709",
	}
}

func audioStream() RawStream {
	return RawStream{Index: 1, CodecType: "audio", CodecName: "aac"}
}

func TestNormalize_FullStream(t *testing.T) {
	v := videoStream()
	v.BitRate = "2450000"
	raw := &Raw{
		Streams: []RawStream{audioStream(), v},
		Format:  RawFormat{FormatName: "mpegts", BitRate: "2600000", Duration: "6.006"},
	}

	facts, fail := Normalize(raw, Hint{})
	require.Nil(t, fail)

	assert.Equal(t, mo.Some(2.45), facts.BitrateMbps)
	assert.Equal(t, BitrateFromStream, facts.BitrateSource)
	assert.Equal(t, mo.Some(hls.Resolution{Width: 1920, Height: 1080}), facts.Resolution)
	assert.Equal(t, mo.Some(FrameRate{Num: 30000, Den: 1001}), facts.FrameRate)
	assert.Equal(t, []string{"h264", "aac"}, facts.Codecs)
	assert.Equal(t, "h264,aac", facts.CodecString())
	assert.Equal(t, "ts", facts.Container)
	assert.Equal(t, mo.Some(6.006), facts.Duration)
	assert.Equal(t, "SDR", facts.VideoRange)
}

func TestNormalize_BitratePrecedence(t *testing.T) {
	tests := []struct {
		name       string
		streamRate string
		program    string
		format     string
		hint       int64
		want       mo.Option[float64]
		wantSource BitrateSource
	}{
		{"stream wins", "1000000", "2000000", "3000000", 4000000, mo.Some(1.0), BitrateFromStream},
		{"program next", "N/A", "2000000", "3000000", 4000000, mo.Some(2.0), BitrateFromProgram},
		{"format next", "", "", "3000000", 4000000, mo.Some(3.0), BitrateFromFormat},
		{"hint last", "", "N/A", "N/A", 4000000, mo.Some(4.0), BitrateFromHint},
		{"nothing", "", "", "", 0, mo.None[float64](), ""},
		{"zero is absent", "0", "", "980000", 0, mo.Some(0.98), BitrateFromFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := videoStream()
			v.BitRate = tt.streamRate
			raw := &Raw{
				Streams: []RawStream{v},
				Format:  RawFormat{FormatName: "hls", BitRate: tt.format},
			}
			if tt.program != "" {
				raw.Programs = []RawProgram{{ProgramID: 0, Tags: ProgramTags{VariantBitrate: tt.program}}}
			}

			facts, fail := Normalize(raw, Hint{Bandwidth: tt.hint})
			require.Nil(t, fail)
			assert.Equal(t, tt.want, facts.BitrateMbps)
			assert.Equal(t, tt.wantSource, facts.BitrateSource)
		})
	}
}

func TestNormalize_Failures(t *testing.T) {
	tests := []struct {
		name string
		raw  *Raw
		kind FailureKind
	}{
		{
			name: "nil output",
			raw:  nil,
			kind: FailureNoStreams,
		},
		{
			name: "data stream only",
			raw:  &Raw{Streams: []RawStream{{CodecType: "data", CodecName: "timed_id3"}}, Format: RawFormat{FormatName: "mpegts"}},
			kind: FailureNoStreams,
		},
		{
			name: "malformed stream bitrate",
			raw:  &Raw{Streams: []RawStream{{CodecType: "video", CodecName: "h264", BitRate: "fast"}}},
			kind: FailureMalformed,
		},
		{
			name: "malformed format bitrate",
			raw:  &Raw{Streams: []RawStream{audioStream()}, Format: RawFormat{BitRate: "-5"}},
			kind: FailureMalformed,
		},
		{
			name: "malformed frame rate",
			raw:  &Raw{Streams: []RawStream{{CodecType: "video", CodecName: "h264", AvgFrameRate: "30/zero"}}},
			kind: FailureMalformed,
		},
		{
			name: "NaN stream bitrate",
			raw:  &Raw{Streams: []RawStream{{CodecType: "video", CodecName: "h264", BitRate: "NaN"}}},
			kind: FailureMalformed,
		},
		{
			name: "infinite format bitrate",
			raw:  &Raw{Streams: []RawStream{audioStream()}, Format: RawFormat{BitRate: "+Inf"}},
			kind: FailureMalformed,
		},
		{
			name: "NaN frame rate",
			raw:  &Raw{Streams: []RawStream{{CodecType: "video", CodecName: "h264", AvgFrameRate: "NaN"}}},
			kind: FailureMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts, fail := Normalize(tt.raw, Hint{})
			assert.Nil(t, facts)
			require.NotNil(t, fail)
			assert.Equal(t, tt.kind, fail.Kind)
		})
	}
}

func TestNormalize_AudioOnly(t *testing.T) {
	raw := &Raw{
		Streams: []RawStream{audioStream()},
		Format:  RawFormat{FormatName: "aac", BitRate: "128000"},
	}
	facts, fail := Normalize(raw, Hint{})
	require.Nil(t, fail)

	assert.Equal(t, mo.Some(0.128), facts.BitrateMbps)
	assert.True(t, facts.Resolution.IsAbsent())
	assert.True(t, facts.FrameRate.IsAbsent())
	assert.Equal(t, "", facts.VideoRange)
	assert.Equal(t, []string{"aac"}, facts.Codecs)
}

func TestNormalize_FrameRateFallbacks(t *testing.T) {
	v := videoStream()
	v.AvgFrameRate = "0/0"
	v.RFrameRate = "25/1"
	facts, fail := Normalize(&Raw{Streams: []RawStream{v}}, Hint{})
	require.Nil(t, fail)
	assert.Equal(t, mo.Some(FrameRate{Num: 25, Den: 1}), facts.FrameRate)

	v.RFrameRate = ""
	facts, fail = Normalize(&Raw{Streams: []RawStream{v}}, Hint{FrameRate: 29.97})
	require.Nil(t, fail)
	assert.Equal(t, mo.Some(FrameRate{Num: 2997, Den: 100}), facts.FrameRate)
}

func TestNormalize_HintResolution(t *testing.T) {
	v := videoStream()
	v.Width, v.Height = 0, 0
	hint := Hint{Resolution: hls.Resolution{Width: 640, Height: 360}}

	facts, fail := Normalize(&Raw{Streams: []RawStream{v}}, hint)
	require.Nil(t, fail)
	assert.Equal(t, mo.Some(hls.Resolution{Width: 640, Height: 360}), facts.Resolution)
}

func TestVideoRange(t *testing.T) {
	tests := []struct {
		transfer   string
		advertised string
		want       string
	}{
		{"smpte2084", "", "PQ"},
		{"arib-std-b67", "", "HLG"},
		{"bt709", "", "SDR"},
		{"bt709", "PQ", "SDR"},
		{"", "pq", "PQ"},
		{"unknown", "", "SDR"},
		{"", "", "SDR"},
	}
	for _, tt := range tests {
		t.Run(tt.transfer+"/"+tt.advertised, func(t *testing.T) {
			assert.Equal(t, tt.want, videoRange(tt.transfer, tt.advertised))
		})
	}
}

func TestCanonicalContainer(t *testing.T) {
	assert.Equal(t, "ts", canonicalContainer("mpegts"))
	assert.Equal(t, "mov", canonicalContainer("mov,mp4,m4a,3gp,3g2,mj2"))
	assert.Equal(t, "hls", canonicalContainer("hls"))
	assert.Equal(t, "ts", canonicalContainer("foo, mpegts"))
	assert.Equal(t, "", canonicalContainer(""))
}
