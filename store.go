// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package slurmmap

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/fileio"
)

// store manages the artifacts of a namespace: job scripts, argument
// and result blobs, and the job-id ledger. All writes are atomic
// (temporary name, then rename), so a reader on another host never
// observes a partially written artifact; the result collector relies
// on this when it treats a result file's existence as the sole
// completion signal.
type store struct {
	ns namespace
}

// init creates the namespace's subdirectories. It is idempotent and
// called lazily before the first write.
func (s store) init() error {
	for _, dir := range s.ns.subdirs() {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return errors.E(err, fmt.Sprintf("slurmmap: create namespace %s", s.ns))
		}
	}
	return nil
}

func (s store) put(path string, p []byte) error {
	return atomicWrite(path, p)
}

func (s store) get(path string) ([]byte, error) {
	p, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("artifact %s", path))
	} else if err != nil {
		return nil, errors.E(err, fmt.Sprintf("read artifact %s", path))
	}
	return p, nil
}

func (s store) exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// readLedger returns the persisted job ids, or an empty ledger if none
// has been written yet.
func (s store) readLedger() ([]string, error) {
	p, err := ioutil.ReadFile(s.ns.ledgerPath())
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, errors.E(err, "slurmmap: read job ledger")
	}
	var ids []string
	if err := json.Unmarshal(p, &ids); err != nil {
		return nil, errors.E(err, fmt.Sprintf("slurmmap: parse job ledger %s", s.ns.ledgerPath()))
	}
	return ids, nil
}

// writeLedger persists the union of the current ledger and the
// provided ids, preserving submission order. The ledger is append-only
// between cleanups: ids are never removed, so that cancellation and
// resumption see every job ever submitted for the namespace.
func (s store) writeLedger(ids []string) error {
	prev, err := s.readLedger()
	if err != nil {
		return err
	}
	seen := make(map[string]bool)
	merged := make([]string, 0, len(prev)+len(ids))
	for _, id := range append(prev, ids...) {
		if seen[id] {
			continue
		}
		seen[id] = true
		merged = append(merged, id)
	}
	p, err := json.Marshal(merged)
	if err != nil {
		return errors.E(err, "slurmmap: encode job ledger")
	}
	return atomicWrite(s.ns.ledgerPath(), p)
}

// atomicWrite writes p to path via a temporary file in the same
// directory followed by a rename.
func atomicWrite(path string, p []byte) (err error) {
	dir, base := filepath.Split(path)
	f, err := ioutil.TempFile(dir, "."+base+".tmp")
	if err != nil {
		return errors.E(err, fmt.Sprintf("write artifact %s", path))
	}
	defer func() {
		if err != nil {
			os.Remove(f.Name())
		}
	}()
	if _, err = f.Write(p); err != nil {
		fileio.CloseAndReport(f, &err)
		return errors.E(err, fmt.Sprintf("write artifact %s", path))
	}
	fileio.CloseAndReport(f, &err)
	if err != nil {
		return errors.E(err, fmt.Sprintf("write artifact %s", path))
	}
	if err = os.Rename(f.Name(), path); err != nil {
		return errors.E(err, fmt.Sprintf("finalize artifact %s", path))
	}
	return nil
}
