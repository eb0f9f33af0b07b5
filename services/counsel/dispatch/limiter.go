// Copyright (C) 2025 Waypoint AI (oss@waypointai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dispatch

import (
	"sync"
	"time"

	"github.com/WaypointAI/WaypointFOSS/services/counsel/datatypes"
)

// RateLimiter implements a sliding window rate limiter per domain worker.
//
// Description:
//
//	Limits worker invocations per minute per domain using a sliding window
//	of timestamps. When the limit is exceeded, returns the duration until
//	the next invocation can be made. Domains without a configured limit are
//	not limited.
//
// Thread Safety: Safe for concurrent use via sync.Mutex.
type RateLimiter struct {
	mu      sync.Mutex
	limits  map[datatypes.Domain]int
	windows map[datatypes.Domain][]int64 // timestamps in Unix milliseconds
}

// NewRateLimiter creates a rate limiter with per-domain limits.
//
// Inputs:
//   - limitsPerMin: Per-domain invocation limits (per minute). Domains not
//     in the map are not rate-limited.
func NewRateLimiter(limitsPerMin map[datatypes.Domain]int) *RateLimiter {
	limits := make(map[datatypes.Domain]int, len(limitsPerMin))
	for k, v := range limitsPerMin {
		limits[k] = v
	}
	return &RateLimiter{
		limits:  limits,
		windows: make(map[datatypes.Domain][]int64),
	}
}

// Allow checks whether an invocation of the given domain worker is within
// the rate limit. If allowed, the timestamp is recorded.
//
// Outputs:
//   - bool: True if the invocation is allowed.
//   - time.Duration: If limited, how long to wait before retrying. Zero if
//     allowed.
func (r *RateLimiter) Allow(domain datatypes.Domain) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	limit, exists := r.limits[domain]
	if !exists || limit == 0 {
		return true, 0 // no limit configured
	}

	now := time.Now().UnixMilli()
	windowStart := now - 60_000 // 1 minute ago

	// Prune expired entries
	timestamps := r.windows[domain]
	pruned := make([]int64, 0, len(timestamps))
	for _, ts := range timestamps {
		if ts > windowStart {
			pruned = append(pruned, ts)
		}
	}

	if len(pruned) >= limit {
		oldestInWindow := pruned[0]
		retryAfter := time.Duration(oldestInWindow+60_000-now) * time.Millisecond
		r.windows[domain] = pruned
		return false, retryAfter
	}

	pruned = append(pruned, now)
	r.windows[domain] = pruned
	return true, 0
}
