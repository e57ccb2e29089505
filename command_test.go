// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package slurmmap

import (
	"context"
	"fmt"
	"testing"

	"github.com/grailbio/testutil/assert"
)

var taskFail = Func("testtask-fail", func(x int) (int, error) {
	return 0, fmt.Errorf("task refused %d", x)
})

func writeArtifact(t *testing.T, s store, path string, v interface{}) {
	t.Helper()
	p, err := encode(v)
	assert.NoError(t, err)
	assert.NoError(t, s.put(path, p))
}

func stageJob(t *testing.T, s store, task string, arg interface{}) (funcPath, argPath, kwargsPath, resultPath string) {
	t.Helper()
	assert.NoError(t, s.init())
	ns := s.ns
	writeArtifact(t, s, ns.functionPath(), task)
	key := "testkey"
	writeArtifact(t, s, ns.argPath(key), arg)
	writeArtifact(t, s, ns.kwargsPath(), Args{})
	return ns.functionPath(), ns.argPath(key), ns.kwargsPath(), ns.resultPath(key)
}

func TestExecuteJob(t *testing.T) {
	ctx := context.Background()
	s, cleanup := testStore(t)
	defer cleanup()
	funcPath, argPath, kwargsPath, resultPath := stageJob(t, s, "testtask-double", 6)

	assert.NoError(t, executeJob(ctx, funcPath, argPath, kwargsPath, resultPath))
	// The consumed argument artifact is removed; the result artifact is
	// finalized.
	if s.exists(argPath) {
		t.Error("argument artifact not consumed")
	}
	p, err := s.get(resultPath)
	assert.NoError(t, err)
	v, err := decode(p)
	assert.NoError(t, err)
	assert.EQ(t, v, 12)
}

func TestExecuteJobTaskError(t *testing.T) {
	ctx := context.Background()
	s, cleanup := testStore(t)
	defer cleanup()
	funcPath, argPath, kwargsPath, resultPath := stageJob(t, s, "testtask-fail", 6)

	assert.NotNil(t, executeJob(ctx, funcPath, argPath, kwargsPath, resultPath))
	// A failed task writes no result, and the argument artifact is
	// still consumed: the item is resubmitted by the next map rather
	// than being misclassified as in flight.
	if s.exists(resultPath) {
		t.Error("failed task left a result artifact")
	}
	if s.exists(argPath) {
		t.Error("failed task left its argument artifact")
	}
}

func TestExecuteJobUnknownTask(t *testing.T) {
	ctx := context.Background()
	s, cleanup := testStore(t)
	defer cleanup()
	funcPath, argPath, kwargsPath, resultPath := stageJob(t, s, "testtask-unregistered", 6)
	assert.NotNil(t, executeJob(ctx, funcPath, argPath, kwargsPath, resultPath))
	if s.exists(resultPath) {
		t.Error("unknown task produced a result artifact")
	}
}
