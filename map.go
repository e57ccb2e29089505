// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package slurmmap

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
)

// Options configures a Map invocation. The zero value (and a nil
// *Options) is usable: jobs are submitted with no extra directives,
// output goes to stdout, and the namespace is cleaned up on full
// success.
type Options struct {
	// Root is the directory under which namespaces are created. It must
	// be on a filesystem shared with the compute nodes. Defaults to
	// DefaultRoot.
	Root string
	// SlurmArgs holds extra scheduler directives for every job, in
	// sbatch option syntax, e.g. "--mem=8G --partition=cpu".
	SlurmArgs string
	// ExtraCommands are shell commands run by each job script before
	// the task executes, e.g. "module load ...".
	ExtraCommands []string
	// Args is the keyword-argument set delivered to every task
	// invocation (see Kwargs). It participates in namespace identity.
	Args Args
	// NoCleanup retains the namespace even after a fully successful
	// map.
	NoCleanup bool
	// Scheduler overrides the batch scheduler. Defaults to the slurm
	// command line tools.
	Scheduler Scheduler
	// Emit receives job log lines streamed by the monitor's log
	// watchers. Defaults to printing to stdout.
	Emit func(line string)
	// RefreshHint is invoked with a directory before existence checks
	// to work around metadata caching on networked filesystems. It
	// defaults to listing the directory; set it to a no-op on
	// filesystems without the quirk.
	RefreshHint func(dir string)
	// PollInterval is the scheduler polling period. Defaults to one
	// second.
	PollInterval time.Duration
}

func (o *Options) withDefaults() Options {
	var opts Options
	if o != nil {
		opts = *o
	}
	if opts.Root == "" {
		opts.Root = DefaultRoot
	}
	if opts.Scheduler == nil {
		opts.Scheduler = slurm{}
	}
	if opts.Emit == nil {
		opts.Emit = func(line string) { fmt.Println(line) }
	}
	if opts.RefreshHint == nil {
		opts.RefreshHint = refreshDir
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return opts
}

// Map applies the registered task fv to every element of items, one
// slurm batch job per distinct element, and returns the results in
// input order. Map is idempotent and resumable: re-invoking it with
// the same task, keyword arguments, and caller reuses previously
// submitted jobs and previously computed results, submitting jobs only
// for items with no artifacts on disk.
//
// Map blocks until every submitted job has left the scheduler's queue
// and results have been collected, or until ctx is cancelled.
// Cancellation returns ctx's error and leaves both the jobs and the
// namespace intact for later resumption.
//
// Results that never materialized hold the Missing sentinel, in which
// case the namespace is left on disk for inspection, manual cleanup,
// or a retried Map. The namespace is deleted only when every item
// resolved (and NoCleanup is unset).
func Map(ctx context.Context, fv *FuncValue, items []interface{}, opts *Options) ([]interface{}, error) {
	must.Truef(fv != nil, "slurmmap.Map: nil task")
	o := opts.withDefaults()
	kwKey, err := kwargsKey(o.Args)
	if err != nil {
		return nil, err
	}
	ns := resolveNamespace(o.Root, callerIdentity(), sanitize(fv.Name()), kwKey)
	st := store{ns: ns}
	encoded, err := encodeItems(items)
	if err != nil {
		return nil, err
	}

	if prev, err := st.readLedger(); err != nil {
		return nil, err
	} else if len(prev) > 0 {
		log.Printf("slurmmap: jobs were already started under %s; reusing their results", ns)
	}

	executable, err := os.Executable()
	if err != nil {
		return nil, err
	}
	sub := &submitter{
		store:      st,
		sched:      o.Scheduler,
		fv:         fv,
		slurmArgs:  o.SlurmArgs,
		extraCmds:  o.ExtraCommands,
		executable: executable,
	}
	if err := sub.submit(ctx, o.Args, encoded); err != nil {
		return nil, err
	}

	ids, err := st.readLedger()
	if err != nil {
		return nil, err
	}
	jobs := make([]jobRecord, len(ids))
	for i, id := range ids {
		jobs[i] = jobRecord{id: id, logPath: ns.logPath(id)}
	}
	log.Printf("slurmmap: waiting for jobs %v", ids)
	mon := &monitor{
		sched:    o.Scheduler,
		interval: o.PollInterval,
		emit:     o.Emit,
		refresh:  o.RefreshHint,
	}
	if err := mon.wait(ctx, jobs); err != nil {
		return nil, err
	}

	col := &collector{store: st, policy: collectPolicy, refresh: o.RefreshHint}
	results, complete := col.collect(ctx, encoded)
	if !complete {
		log.Error.Printf("slurmmap: batch incomplete; namespace %s retained "+
			"(run `%s cleanup %s` to discard it)", ns, executable, ns)
		return results, nil
	}
	if o.NoCleanup {
		return results, nil
	}
	if err := removeAll(ctx, ns.dir); err != nil {
		return results, err
	}
	return results, nil
}

// MustMap is like Map but fails fatally on error.
func MustMap(ctx context.Context, fv *FuncValue, items []interface{}, opts *Options) []interface{} {
	results, err := Map(ctx, fv, items, opts)
	if err != nil {
		log.Fatalf("slurmmap.Map %s: %v", fv.Name(), err)
	}
	return results
}
