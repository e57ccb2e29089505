// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package slurmmap

import (
	"bufio"
	"context"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/grailbio/base/log"
	"golang.org/x/sync/errgroup"
)

// resultSentinel is printed by the remote entrypoint immediately after
// it finalizes a result artifact. Log watchers stop at this line; it
// has no other significance, and in particular the collector never
// depends on it.
const resultSentinel = "slurmmap: result saved"

// A jobRecord pairs a scheduler job id with the log file the job's
// script directs output to.
type jobRecord struct {
	id      string
	logPath string
}

// refreshDir is the default refresh hint: listing a directory prods
// networked filesystems into revalidating cached metadata, without
// which a freshly written artifact or log can take a long time to
// become visible to the submitting host. Errors are ignored; the hint
// is purely advisory.
func refreshDir(dir string) {
	ioutil.ReadDir(dir)
}

// monitor polls the scheduler until none of a set of jobs remains
// active.
type monitor struct {
	sched    Scheduler
	interval time.Duration
	emit     func(string)
	refresh  func(string)
}

// wait blocks until no job in jobs appears in the scheduler's queue,
// polling once per interval with a single batched query. Jobs active
// at the first poll get a log watcher that streams their output to the
// monitor's emit sink; watchers are purely observational and never
// delay a poll. On cancellation wait returns the context's error
// immediately, leaving the jobs running: interrupting the local
// process must never kill in-flight cluster work.
func (m *monitor) wait(ctx context.Context, jobs []jobRecord) error {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var watchers errgroup.Group
	first := true
	for {
		queue, err := m.sched.Queue(ctx)
		if err != nil {
			return err
		}
		var active int
		for _, job := range jobs {
			if !strings.Contains(queue, job.id) {
				continue
			}
			active++
			if first {
				job := job
				watchers.Go(func() error {
					m.watchLog(watchCtx, job)
					return nil
				})
			}
		}
		first = false
		if active == 0 {
			cancel()
			watchers.Wait()
			return nil
		}
		log.Debug.Printf("slurmmap: %d of %d jobs still active", active, len(jobs))
		select {
		case <-time.After(m.interval):
		case <-ctx.Done():
			log.Printf("slurmmap: interrupted; jobs remain queued or running (cancel is a separate operation)")
			return ctx.Err()
		}
	}
}

// watchLog streams new lines of a job's log to the emit sink. The log
// file may not exist yet (the job may still be queued, and shared
// filesystems propagate slowly), so the watcher first waits for it to
// appear, prodding the filesystem with the refresh hint between
// checks. Watching stops at the completion sentinel or on
// cancellation.
func (m *monitor) watchLog(ctx context.Context, job jobRecord) {
	for {
		if _, err := os.Stat(job.logPath); err == nil {
			break
		}
		if m.refresh != nil {
			m.refresh(filepath.Dir(job.logPath))
		}
		select {
		case <-time.After(m.interval):
		case <-ctx.Done():
			return
		}
	}
	f, err := os.Open(job.logPath)
	if err != nil {
		log.Debug.Printf("slurmmap: watch %s: %v", job.logPath, err)
		return
	}
	defer f.Close()
	r := bufio.NewReader(f)
	var partial strings.Builder
	for {
		line, err := r.ReadString('\n')
		partial.WriteString(line)
		if err == io.EOF {
			select {
			case <-time.After(m.interval):
				continue
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			log.Debug.Printf("slurmmap: watch %s: %v", job.logPath, err)
			return
		}
		full := strings.TrimSuffix(partial.String(), "\n")
		partial.Reset()
		if strings.Contains(full, resultSentinel) {
			return
		}
		m.emit(full)
	}
}
