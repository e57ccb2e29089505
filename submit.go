// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package slurmmap

import (
	"context"
	"fmt"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
)

// An encodedItem is a work item after serialization: its position in
// the input collection, its serialized payload, and the payload's
// content key. The key is independent of the index, so items with
// identical payloads share artifacts and are computed once.
type encodedItem struct {
	index   int
	key     string
	payload []byte
}

func encodeItems(items []interface{}) ([]encodedItem, error) {
	encoded := make([]encodedItem, len(items))
	err := traverse.Each(len(items), func(i int) error {
		p, err := encode(items[i])
		if err != nil {
			return err
		}
		encoded[i] = encodedItem{index: i, key: contentKey(p), payload: p}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return encoded, nil
}

// submitter submits one batch job per undeduplicated work item.
type submitter struct {
	store      store
	sched      Scheduler
	fv         *FuncValue
	slurmArgs  string
	extraCmds  []string
	executable string
}

// submit writes artifacts and submits jobs for every item that has
// neither an argument nor a result artifact, then persists the union
// of newly assigned job ids with the namespace's ledger. Submission is
// best effort: a failed or unparseable submission for one item does
// not prevent submission of the rest, but a shortfall between items
// needing jobs and ids actually assigned is logged loudly, since those
// items will otherwise be waited on in vain.
func (s *submitter) submit(ctx context.Context, args Args, items []encodedItem) error {
	if err := s.store.init(); err != nil {
		return err
	}
	ns := s.store.ns
	funcArtifact, err := encode(s.fv.Name())
	if err != nil {
		return err
	}
	if err := s.store.put(ns.functionPath(), funcArtifact); err != nil {
		return err
	}
	if args == nil {
		args = Args{}
	}
	kwargsArtifact, err := encode(args)
	if err != nil {
		return err
	}
	if err := s.store.put(ns.kwargsPath(), kwargsArtifact); err != nil {
		return err
	}
	var (
		jobIDs []string
		needed int
		seen   = make(map[string]bool)
	)
	for _, item := range items {
		if seen[item.key] {
			continue
		}
		seen[item.key] = true
		// An existing argument artifact means a job was already
		// submitted for this payload; an existing result artifact means
		// it already ran to completion. Either way there is nothing to
		// submit.
		if s.store.exists(ns.argPath(item.key)) || s.store.exists(ns.resultPath(item.key)) {
			log.Debug.Printf("slurmmap: %s already submitted or computed; skipping", item.key)
			continue
		}
		needed++
		if err := s.store.put(ns.argPath(item.key), item.payload); err != nil {
			return err
		}
		script := s.renderScript(item.key)
		if err := s.store.put(ns.scriptPath(item.key), []byte(script)); err != nil {
			return err
		}
		lines, err := s.sched.Submit(ctx, ns.scriptPath(item.key))
		if err != nil {
			log.Error.Printf("slurmmap: submit job for item %d: %v", item.index, err)
		}
		for _, line := range lines {
			if id, ok := parseSubmitLine(line); ok {
				jobIDs = append(jobIDs, id)
			} else {
				log.Printf("%s", line)
			}
		}
	}
	if len(jobIDs) < needed {
		log.Error.Printf("slurmmap: submitted %d jobs but scheduler accepted only %d; "+
			"unaccepted items will not produce results", needed, len(jobIDs))
	}
	return s.store.writeLedger(jobIDs)
}

// renderScript produces the job script for one work item: scheduler
// directives pointing logs at the namespace (using the scheduler's
// job-id substitution), caller-supplied directives and pre-commands,
// and the invocation of the remote execution entrypoint.
func (s *submitter) renderScript(key string) string {
	ns := s.store.ns
	var b strings.Builder
	fmt.Fprintln(&b, "#!/bin/sh")
	fmt.Fprintf(&b, "#SBATCH --output %s\n", ns.logPattern())
	fmt.Fprintf(&b, "#SBATCH --error %s\n", ns.logPattern())
	if s.slurmArgs != "" {
		fmt.Fprintf(&b, "#SBATCH %s\n", s.slurmArgs)
	}
	for _, cmd := range s.extraCmds {
		fmt.Fprintln(&b, cmd)
	}
	fmt.Fprintf(&b, "%s execute %s %s %s %s\n",
		s.executable, ns.functionPath(), ns.argPath(key), ns.kwargsPath(), ns.resultPath(key))
	return b.String()
}
