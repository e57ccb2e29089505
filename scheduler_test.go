// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package slurmmap

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// fakeScheduler simulates the scheduler CLI boundary. Submitted jobs
// stay in the queue for activeFor Queue calls; onSubmit, if set, plays
// the role of the compute node.
type fakeScheduler struct {
	mu        sync.Mutex
	nextID    int
	activeFor int
	submitted []string // script paths, in submission order
	remaining map[string]int
	canceled  []string
	onSubmit  func(scriptPath, jobID string)
	// extraLines are emitted before the acceptance line of every
	// submission.
	extraLines []string
}

func newFakeScheduler(activeFor int) *fakeScheduler {
	return &fakeScheduler{
		nextID:    100,
		activeFor: activeFor,
		remaining: make(map[string]int),
	}
}

func (f *fakeScheduler) Submit(ctx context.Context, scriptPath string) ([]string, error) {
	f.mu.Lock()
	f.nextID++
	id := fmt.Sprint(f.nextID)
	f.submitted = append(f.submitted, scriptPath)
	f.remaining[id] = f.activeFor
	onSubmit := f.onSubmit
	f.mu.Unlock()
	if onSubmit != nil {
		onSubmit(scriptPath, id)
	}
	lines := append([]string{}, f.extraLines...)
	return append(lines, "Submitted batch job "+id), nil
}

func (f *fakeScheduler) Queue(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var active []string
	for id, n := range f.remaining {
		if n > 0 {
			f.remaining[id] = n - 1
			active = append(active, id)
		}
	}
	return strings.Join(active, "\n"), nil
}

func (f *fakeScheduler) Cancel(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, jobID)
	return nil
}

func (f *fakeScheduler) numSubmitted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

// executeScript runs the remote execution entrypoint in-process for a
// generated job script, standing in for the scheduled node.
func executeScript(scriptPath string) error {
	p, err := readScriptCommand(scriptPath)
	if err != nil {
		return err
	}
	return executeJob(context.Background(), p[0], p[1], p[2], p[3])
}

func readScriptCommand(scriptPath string) ([]string, error) {
	s := store{}
	p, err := s.get(scriptPath)
	if err != nil {
		return nil, err
	}
	lines := splitLines(string(p))
	if len(lines) == 0 {
		return nil, fmt.Errorf("empty script %s", scriptPath)
	}
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) < 5 {
		return nil, fmt.Errorf("malformed entrypoint line in %s", scriptPath)
	}
	return fields[len(fields)-4:], nil
}
