// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package slurmmap

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/retry"
)

// removePolicy governs namespace deletion. Removal of a directory tree
// on a networked filesystem fails transiently ("directory not empty"
// while unlinks propagate), so deletion is retried with backoff.
var removePolicy = retry.MaxRetries(retry.Backoff(250*time.Millisecond, 4*time.Second, 2), 6)

// Cleanup removes the namespace directory at path, retrying transient
// failures. It operates regardless of whether the namespace's results
// are complete; Map itself only cleans up after full success.
func Cleanup(ctx context.Context, path string) error {
	return removeAll(ctx, path)
}

func removeAll(ctx context.Context, dir string) error {
	for retries := 0; ; retries++ {
		rmErr := os.RemoveAll(dir)
		if rmErr == nil {
			return nil
		}
		log.Debug.Printf("slurmmap: remove %s: %v (retrying)", dir, rmErr)
		if err := retry.Wait(ctx, removePolicy, retries); err != nil {
			return errors.E(rmErr, fmt.Sprintf("slurmmap: remove namespace %s", dir))
		}
	}
}

// CancelJobs cancels every job recorded in the ledger of the namespace
// at path. Cancellation is issued for each ledger entry regardless of
// the job's current state: cancelling a finished job is a no-op on the
// scheduler's side, and the ledger, not the queue, is the authority on
// which jobs this namespace owns.
func CancelJobs(ctx context.Context, path string) error {
	return cancelJobs(ctx, slurm{}, path)
}

func cancelJobs(ctx context.Context, sched Scheduler, path string) error {
	s := store{ns: namespace{dir: path}}
	ids, err := s.readLedger()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		log.Printf("slurmmap: no jobs recorded under %s", path)
		return nil
	}
	var firstErr error
	for _, id := range ids {
		if err := sched.Cancel(ctx, id); err != nil {
			log.Error.Printf("slurmmap: cancel job %s: %v", id, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
