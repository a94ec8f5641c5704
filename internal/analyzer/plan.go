package analyzer

import (
	"context"

	"github.com/samber/lo"

	"github.com/randomizedcoder/go-hls-analyzer/internal/availability"
	"github.com/randomizedcoder/go-hls-analyzer/internal/hls"
	"github.com/randomizedcoder/go-hls-analyzer/internal/probe"
)

// plan is the work derived from a parsed manifest.
type plan struct {
	segments []hls.SegmentRef
	targets  []probe.Target

	// playlistFailures are variant playlists that could not be loaded or
	// parsed. They are reported as unreachable entries.
	playlistFailures []availability.Outcome
}

// distinctSegments is the number of URIs the checker will visit.
func (p *plan) distinctSegments() int {
	return len(lo.UniqBy(p.segments, func(s hls.SegmentRef) string { return s.URI }))
}

// buildPlan enumerates segments and probe targets for m.
func (a *Analyzer) buildPlan(ctx context.Context, m *hls.Manifest) *plan {
	p := &plan{segments: append([]hls.SegmentRef(nil), m.Segments...)}

	if a.cfg.ProbeEnabled {
		p.targets = append(p.targets, probe.Target{URI: m.URI, Role: probe.RoleManifest})
		if m.IsMaster() && a.cfg.ProbeVariants {
			for _, v := range m.Variants {
				p.targets = append(p.targets, probe.Target{
					URI:  v.URI,
					Role: probe.RoleVariant,
					Hint: probe.HintFromVariant(v),
				})
			}
		}
	}

	if m.IsMaster() && a.cfg.VariantSegments {
		for _, v := range m.Variants {
			segs, o, ok := a.loadVariant(ctx, v)
			if !ok {
				p.playlistFailures = append(p.playlistFailures, o)
				continue
			}
			p.segments = append(p.segments, segs...)
		}
	}

	return p
}

// loadVariant loads the media playlist of v. On failure it returns an
// unreachable outcome for the playlist URI.
func (a *Analyzer) loadVariant(ctx context.Context, v hls.VariantRef) ([]hls.SegmentRef, availability.Outcome, bool) {
	failed := availability.Outcome{URI: v.URI, Status: availability.Unreachable}

	raw, base, err := a.loader.Load(ctx, v.URI)
	if err != nil {
		failed.Category, failed.Code = availability.Classify(err)
		a.logger.Warn("variant_playlist_unreachable", "uri", v.URI, "category", string(failed.Category), "error", err)
		return nil, failed, false
	}

	vm, err := hls.Parse(raw, base)
	if err == nil && vm.IsMaster() {
		err = hls.ErrUnexpectedURI
	}
	if err != nil {
		failed.Category = availability.CategoryMalformed
		a.logger.Warn("variant_playlist_invalid", "uri", v.URI, "error", err)
		return nil, failed, false
	}

	a.logger.Debug("variant_playlist_loaded", "uri", v.URI, "segments", len(vm.Segments))
	return vm.Segments, availability.Outcome{}, true
}

// mergePlaylistFailures adds playlist failures after the checked segments,
// keeping first-appearance order and one entry per URI.
func mergePlaylistFailures(r availability.Result, failures []availability.Outcome) availability.Result {
	if r == nil {
		r = make(availability.Result, len(failures))
	}
	next := len(r)
	for _, o := range failures {
		if _, seen := r[o.URI]; seen {
			continue
		}
		o.Order = next
		next++
		r[o.URI] = o
	}
	return r
}
