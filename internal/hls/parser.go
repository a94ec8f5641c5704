package hls

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// Playlist tags understood by the parser. Unknown #EXT tags are ignored.
const (
	tagHeader         = "#EXTM3U"
	tagStreamInf      = "#EXT-X-STREAM-INF"
	tagInf            = "#EXTINF"
	tagVersion        = "#EXT-X-VERSION"
	tagTargetDuration = "#EXT-X-TARGETDURATION"
	tagMediaSequence  = "#EXT-X-MEDIA-SEQUENCE"
	tagEndList        = "#EXT-X-ENDLIST"
)

const utf8BOM = "\ufeff"

// line is one non-blank playlist line with its 1-based position.
type line struct {
	num  int
	text string
}

// parseState holds the in-progress declaration awaiting its URI line.
type parseState struct {
	base     *url.URL
	manifest *Manifest

	pendingVariant *VariantRef
	variantLine    int

	pendingSegment *SegmentRef
	segmentLine    int

	seenVariants map[string]int // URI -> declaring line
}

// Parse parses a playlist document and resolves every URI against baseURI.
//
// Master vs media is decided by the presence of #EXT-X-STREAM-INF.
// A malformed URI reference is fatal for the whole manifest: the first one
// encountered is reported with its line number.
func Parse(raw string, baseURI string) (*Manifest, error) {
	base, err := parseBase(baseURI)
	if err != nil {
		return nil, err
	}

	lines := significantLines(raw)
	if len(lines) == 0 || lines[0].text != tagHeader {
		lineNum := 0
		if len(lines) > 0 {
			lineNum = lines[0].num
		}
		return nil, newParseError(ErrMissingFormatTag, lineNum, "", nil)
	}

	st := &parseState{
		base: base,
		manifest: &Manifest{
			Kind: classify(lines),
			URI:  base.String(),
		},
		seenVariants: make(map[string]int),
	}

	for _, ln := range lines[1:] {
		if strings.HasPrefix(ln.text, "#") {
			if err := st.handleTag(ln); err != nil {
				return nil, err
			}
			continue
		}
		if err := st.handleURI(ln); err != nil {
			return nil, err
		}
	}

	if st.pendingVariant != nil {
		return nil, newParseError(ErrDanglingVariant, st.variantLine, "reached end of playlist", nil)
	}
	if st.pendingSegment != nil {
		return nil, newParseError(ErrDanglingSegment, st.segmentLine, "reached end of playlist", nil)
	}

	return st.manifest, nil
}

// parseBase validates the location the playlist is resolved against.
func parseBase(baseURI string) (*url.URL, error) {
	base, err := url.Parse(baseURI)
	if err != nil {
		return nil, newParseError(ErrBadReference, 0, fmt.Sprintf("base %q", baseURI), err)
	}
	if !base.IsAbs() {
		return nil, newParseError(ErrBadReference, 0, fmt.Sprintf("base %q is not absolute", baseURI), nil)
	}
	return base, nil
}

// significantLines drops blank lines and plain comments ("#" not followed
// by "EXT"), keeping original line numbers.
func significantLines(raw string) []line {
	var out []line
	for i, text := range strings.Split(raw, "\n") {
		num := i + 1
		text = strings.TrimSpace(text)
		if num == 1 {
			text = strings.TrimSpace(strings.TrimPrefix(text, utf8BOM))
		}
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "#") && !strings.HasPrefix(text, "#EXT") {
			continue
		}
		out = append(out, line{num: num, text: text})
	}
	return out
}

func classify(lines []line) Kind {
	for _, ln := range lines {
		if tag, _ := splitTag(ln.text); tag == tagStreamInf {
			return KindMaster
		}
	}
	return KindMedia
}

func (st *parseState) handleTag(ln line) error {
	tag, value := splitTag(ln.text)
	m := st.manifest

	switch tag {
	case tagStreamInf:
		if st.pendingVariant != nil {
			return newParseError(ErrDanglingVariant, st.variantLine, "followed by another declaration", nil)
		}
		v, err := parseStreamInf(value, ln.num)
		if err != nil {
			return err
		}
		st.pendingVariant = v
		st.variantLine = ln.num

	case tagInf:
		if m.Kind == KindMaster {
			return nil
		}
		if st.pendingSegment != nil {
			return newParseError(ErrDanglingSegment, st.segmentLine, "followed by another #EXTINF", nil)
		}
		seg, err := parseInf(value, ln.num)
		if err != nil {
			return err
		}
		st.pendingSegment = seg
		st.segmentLine = ln.num

	case tagVersion:
		v, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return newParseError(ErrBadAttribute, ln.num, "EXT-X-VERSION", err)
		}
		m.Version = v

	case tagTargetDuration:
		d, err := parseDecimal(strings.TrimSpace(value))
		if err != nil {
			return newParseError(ErrBadAttribute, ln.num, "EXT-X-TARGETDURATION", err)
		}
		m.TargetDuration = d

	case tagMediaSequence:
		seq, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return newParseError(ErrBadAttribute, ln.num, "EXT-X-MEDIA-SEQUENCE", err)
		}
		m.MediaSequence = seq

	case tagEndList:
		m.Ended = true
	}

	return nil
}

func (st *parseState) handleURI(ln line) error {
	m := st.manifest

	if m.Kind == KindMaster {
		if st.pendingVariant == nil {
			return newParseError(ErrUnexpectedURI, ln.num, ln.text, nil)
		}
		uri, err := st.resolve(ln)
		if err != nil {
			return err
		}
		if prev, dup := st.seenVariants[uri]; dup {
			return newParseError(ErrDuplicateVariant, ln.num, fmt.Sprintf("%s (first declared on line %d)", uri, prev), nil)
		}
		st.seenVariants[uri] = ln.num

		v := *st.pendingVariant
		v.URI = uri
		m.Variants = append(m.Variants, v)
		st.pendingVariant = nil
		return nil
	}

	if st.pendingSegment == nil {
		return newParseError(ErrMissingDuration, ln.num, ln.text, nil)
	}
	uri, err := st.resolve(ln)
	if err != nil {
		return err
	}

	seg := *st.pendingSegment
	seg.URI = uri
	seg.Sequence = m.MediaSequence + int64(len(m.Segments))
	m.Segments = append(m.Segments, seg)
	st.pendingSegment = nil
	return nil
}

// resolve turns a URI line into an absolute URI.
func (st *parseState) resolve(ln line) (string, error) {
	ref, err := url.Parse(ln.text)
	if err != nil {
		return "", newParseError(ErrBadReference, ln.num, ln.text, err)
	}
	abs := st.base.ResolveReference(ref)
	if !abs.IsAbs() {
		return "", newParseError(ErrBadReference, ln.num, ln.text+" does not resolve to an absolute URI", nil)
	}
	if (abs.Scheme == "http" || abs.Scheme == "https") && abs.Host == "" {
		return "", newParseError(ErrBadReference, ln.num, ln.text+" has no host", nil)
	}
	return abs.String(), nil
}

func parseStreamInf(value string, lineNum int) (*VariantRef, error) {
	attrs := parseAttributes(value)
	v := &VariantRef{
		Codecs:     attrs["CODECS"],
		VideoRange: attrs["VIDEO-RANGE"],
	}

	if s, ok := attrs["BANDWIDTH"]; ok {
		b, err := strconv.ParseInt(s, 10, 64)
		if err != nil || b < 0 {
			return nil, newParseError(ErrBadAttribute, lineNum, "BANDWIDTH="+s, err)
		}
		v.Bandwidth = b
	}
	if s, ok := attrs["AVERAGE-BANDWIDTH"]; ok {
		b, err := strconv.ParseInt(s, 10, 64)
		if err != nil || b < 0 {
			return nil, newParseError(ErrBadAttribute, lineNum, "AVERAGE-BANDWIDTH="+s, err)
		}
		v.AverageBandwidth = b
	}
	if s, ok := attrs["RESOLUTION"]; ok {
		r, err := ParseResolution(s)
		if err != nil {
			return nil, newParseError(ErrBadAttribute, lineNum, "RESOLUTION", err)
		}
		v.Resolution = r
	}
	if s, ok := attrs["FRAME-RATE"]; ok {
		f, err := parseDecimal(s)
		if err != nil || f < 0 {
			return nil, newParseError(ErrBadAttribute, lineNum, "FRAME-RATE="+s, err)
		}
		v.FrameRate = f
	}

	return v, nil
}

// parseInf parses "#EXTINF:<duration>,[<title>]".
func parseInf(value string, lineNum int) (*SegmentRef, error) {
	durStr, title, _ := strings.Cut(value, ",")
	durStr = strings.TrimSpace(durStr)
	if durStr == "" {
		return nil, newParseError(ErrMissingDuration, lineNum, "empty #EXTINF duration", nil)
	}
	d, err := parseDecimal(durStr)
	if err != nil || d < 0 {
		return nil, newParseError(ErrBadAttribute, lineNum, "EXTINF duration "+durStr, err)
	}
	return &SegmentRef{Duration: d, Title: strings.TrimSpace(title)}, nil
}

// parseDecimal is strconv.ParseFloat restricted to finite values.
func parseDecimal(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not a finite number", s)
	}
	return f, nil
}
