package repository

import (
	"errors"
	"net"
	"time"

	"github.com/lance0/prefixd-sub000/internal/domain"
)

// ErrScopeConflict is returned when an insert would violate a uniqueness
// constraint (scope_hash+pop for mitigations, prefix for safelist, username
// for operators) — callers treat it as "someone else just created this",
// not a hard failure, falling into the correlator's coalescing path.
var ErrScopeConflict = errors.New("repository: uniqueness constraint violated")

func paginate[T any](items []T, limit, offset uint32) []T {
	start := int(offset)
	if start > len(items) {
		start = len(items)
	}
	end := start + int(limit)
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	out := make([]T, end-start)
	copy(out, items[start:end])
	return out
}

func matchesStatus(status domain.MitigationStatus, filter []domain.MitigationStatus) bool {
	if len(filter) == 0 {
		return true
	}
	for _, s := range filter {
		if s == status {
			return true
		}
	}
	return false
}

func containsIP(prefix, ipStr string) bool {
	_, network, err := net.ParseCIDR(prefix)
	if err != nil {
		return false
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	return network.Contains(ip)
}

// bucketize buckets timestamps into fixed-width windows ending now, oldest
// bucket first, for a range_hours/bucket_minutes timeseries query.
func bucketize(times []time.Time, rangeHours, bucketMinutes uint32) []TimeseriesBucket {
	if bucketMinutes == 0 {
		bucketMinutes = 5
	}
	bucketDur := time.Duration(bucketMinutes) * time.Minute
	rangeDur := time.Duration(rangeHours) * time.Hour
	now := time.Now().UTC()
	start := now.Add(-rangeDur)

	numBuckets := int(rangeDur / bucketDur)
	if numBuckets <= 0 {
		numBuckets = 1
	}
	buckets := make([]TimeseriesBucket, numBuckets)
	for i := range buckets {
		buckets[i].BucketStart = start.Add(time.Duration(i) * bucketDur)
	}

	for _, t := range times {
		if t.Before(start) || t.After(now) {
			continue
		}
		idx := int(t.Sub(start) / bucketDur)
		if idx >= 0 && idx < numBuckets {
			buckets[idx].Count++
		}
	}
	return buckets
}
