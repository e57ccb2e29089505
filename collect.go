// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package slurmmap

import (
	"context"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/retry"
)

// Missing is stored at an item's index when its result artifact did
// not appear within the collection retry budget. It is distinct from
// nil so that callers can tell an absent result from a task that
// legitimately returned a zero value.
var Missing missingValue

type missingValue struct{}

func (missingValue) String() string { return "<missing>" }

// collectPolicy spaces the collection passes. Jobs have already left
// the queue when collection starts, so the only thing being waited out
// is filesystem propagation; a short fixed interval with a bounded
// number of passes suffices.
var collectPolicy = retry.MaxRetries(retry.Backoff(500*time.Millisecond, 500*time.Millisecond, 1), 20)

// collector assembles the ordered result collection from the results
// subdirectory of a namespace.
type collector struct {
	store   store
	policy  retry.Policy
	refresh func(string)
}

// collect reads the result artifact of every item, retrying absent or
// unreadable artifacts on later passes until the policy is exhausted.
// Results land at their item's input index regardless of job
// completion order, and items with identical payloads resolve from the
// same artifact. Unresolved indices hold Missing in the returned
// slice; complete reports whether there are none.
func (c *collector) collect(ctx context.Context, items []encodedItem) (results []interface{}, complete bool) {
	results = make([]interface{}, len(items))
	resolved := make([]bool, len(items))
	remaining := len(items)
	for pass := 0; remaining > 0; pass++ {
		if c.refresh != nil {
			c.refresh(c.store.ns.resultsDir())
		}
		for i, item := range items {
			if resolved[i] {
				continue
			}
			p, err := c.store.get(c.store.ns.resultPath(item.key))
			if err != nil {
				if !errors.Is(errors.NotExist, err) {
					log.Debug.Printf("slurmmap: %v", err)
				}
				continue
			}
			v, err := decode(p)
			if err != nil {
				log.Debug.Printf("slurmmap: result for item %d: %v", item.index, err)
				continue
			}
			results[i] = v
			resolved[i] = true
			remaining--
		}
		if remaining == 0 {
			break
		}
		log.Printf("slurmmap: waiting for %d of %d results", remaining, len(items))
		if err := retry.Wait(ctx, c.policy, pass); err != nil {
			break
		}
	}
	for i := range items {
		if !resolved[i] {
			log.Error.Printf("slurmmap: no result for item %d (%s)", items[i].index, items[i].key)
			results[i] = Missing
		}
	}
	return results, remaining == 0
}
