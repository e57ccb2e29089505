// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package slurmmap

import (
	"context"
	"os"
	"testing"

	"github.com/grailbio/testutil/assert"
)

func TestCleanup(t *testing.T) {
	s, cleanup := testStore(t)
	defer cleanup()
	assert.NoError(t, s.put(s.ns.argPath("k"), []byte("x")))
	assert.NoError(t, Cleanup(context.Background(), s.ns.dir))
	if _, err := os.Stat(s.ns.dir); !os.IsNotExist(err) {
		t.Errorf("namespace still present: %v", err)
	}
	// Cleaning an already-removed namespace is not an error.
	assert.NoError(t, Cleanup(context.Background(), s.ns.dir))
}

func TestCancelJobs(t *testing.T) {
	ctx := context.Background()
	s, cleanup := testStore(t)
	defer cleanup()
	assert.NoError(t, s.writeLedger([]string{"201", "202", "203"}))

	// One cancel call per ledger entry, regardless of job state.
	fake := newFakeScheduler(0)
	assert.NoError(t, cancelJobs(ctx, fake, s.ns.dir))
	assert.EQ(t, fake.canceled, []string{"201", "202", "203"})
}

func TestCancelJobsEmpty(t *testing.T) {
	s, cleanup := testStore(t)
	defer cleanup()
	fake := newFakeScheduler(0)
	assert.NoError(t, cancelJobs(context.Background(), fake, s.ns.dir))
	assert.EQ(t, len(fake.canceled), 0)
}
