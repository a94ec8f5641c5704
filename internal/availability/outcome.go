// Package availability verifies that media segments are retrievable.
//
// Each distinct segment URI gets exactly one lightweight request. A failed
// segment is data, recorded as an Unreachable outcome; only the case where
// nothing at all is reachable is reported as an error.
package availability

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"
)

// Status is the availability verdict for one URI.
type Status int

const (
	Available Status = iota
	Unreachable
)

func (s Status) String() string {
	switch s {
	case Available:
		return "available"
	case Unreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Category classifies why a URI was unreachable.
type Category string

const (
	CategoryNone              Category = ""
	CategoryHTTPStatus        Category = "http_status"
	CategoryTimeout           Category = "timeout"
	CategoryDNS               Category = "dns"
	CategoryConnectionRefused Category = "connection_refused"
	CategoryTLS               Category = "tls"
	CategoryCanceled          Category = "canceled"
	CategoryTransport         Category = "transport"
	CategoryNotFound          Category = "not_found"
	CategoryMalformed         Category = "malformed_playlist"
)

// Outcome is the result of checking one URI.
type Outcome struct {
	URI      string
	Order    int // position of first appearance in the input
	Status   Status
	Code     int // HTTP status code, 0 when no response was received
	Category Category
	Latency  time.Duration
}

// Reason renders a short human-readable failure reason.
func (o Outcome) Reason() string {
	if o.Status == Available {
		return ""
	}
	if o.Category == CategoryHTTPStatus && o.Code != 0 {
		return fmt.Sprintf("HTTP %d", o.Code)
	}
	return string(o.Category)
}

// Result maps each distinct URI to its outcome.
type Result map[string]Outcome

// Available returns the number of available URIs.
func (r Result) Available() int {
	return lo.CountBy(lo.Values(r), func(o Outcome) bool { return o.Status == Available })
}

// Unreachable returns the unreachable outcomes ordered by first appearance.
func (r Result) Unreachable() []Outcome {
	failed := lo.Filter(lo.Values(r), func(o Outcome, _ int) bool { return o.Status == Unreachable })
	sort.Slice(failed, func(i, j int) bool { return failed[i].Order < failed[j].Order })
	return failed
}

// Ordered returns every outcome ordered by first appearance.
func (r Result) Ordered() []Outcome {
	all := lo.Values(r)
	sort.Slice(all, func(i, j int) bool { return all[i].Order < all[j].Order })
	return all
}

// Err returns a *NoneReachableError when r is non-empty and holds no
// available outcome, nil otherwise.
func (r Result) Err() error {
	if len(r) == 0 || r.Available() > 0 {
		return nil
	}
	failed := r.Unreachable()
	return &NoneReachableError{Total: len(failed), Category: dominantCategory(failed)}
}

// ErrNoSegmentReachable is returned alongside a complete Result when at
// least one URI was checked and none was available.
var ErrNoSegmentReachable = errors.New("no segment reachable")

// dominantCategory returns the most frequent failure category. On a tie
// the category that reached the count first wins.
func dominantCategory(failed []Outcome) Category {
	counts := make(map[Category]int)
	var best Category
	for _, o := range failed {
		counts[o.Category]++
		if counts[o.Category] > counts[best] {
			best = o.Category
		}
	}
	return best
}
