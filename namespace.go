// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package slurmmap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultRoot is the root under which namespaces are created when
// Options.Root is empty. It is relative to the working directory of
// the submitting process, which must be on a filesystem shared with
// the compute nodes.
const DefaultRoot = ".slurmmap"

const (
	scriptsDir = "slurm-scripts"
	argsDir    = "args"
	resultsDir = "results"
	logsDir    = "logs"
	ledgerFile = "job-ids.json"
)

// A namespace scopes the artifacts and job ledger of one logical map:
// maps sharing a caller, task name, and keyword-argument set share a
// namespace, and with it previously submitted jobs and previously
// computed results. Resolution is pure path computation; directories
// are created lazily by the store.
type namespace struct {
	dir string
}

func resolveNamespace(root, caller, function, kwargsHash string) namespace {
	return namespace{dir: filepath.Join(root, caller, function, kwargsHash)}
}

func (n namespace) String() string { return n.dir }

func (n namespace) subdirs() []string {
	return []string{
		filepath.Join(n.dir, scriptsDir),
		filepath.Join(n.dir, argsDir),
		filepath.Join(n.dir, resultsDir),
		filepath.Join(n.dir, logsDir),
	}
}

func (n namespace) functionPath() string { return filepath.Join(n.dir, "function.gob") }
func (n namespace) kwargsPath() string   { return filepath.Join(n.dir, "kwargs.gob") }
func (n namespace) ledgerPath() string   { return filepath.Join(n.dir, ledgerFile) }

func (n namespace) scriptPath(key string) string {
	return filepath.Join(n.dir, scriptsDir, key+".slurm")
}

func (n namespace) argPath(key string) string {
	return filepath.Join(n.dir, argsDir, key+".gob")
}

func (n namespace) resultPath(key string) string {
	return filepath.Join(n.dir, resultsDir, key+".gob")
}

func (n namespace) resultsDir() string { return filepath.Join(n.dir, resultsDir) }

// logPattern is the log path handed to the scheduler, with the
// scheduler's own job-id substitution; logPath names the materialized
// log of a submitted job.
func (n namespace) logPattern() string {
	return filepath.Join(n.dir, logsDir, "job_%j.log")
}

func (n namespace) logPath(jobID string) string {
	return filepath.Join(n.dir, logsDir, fmt.Sprintf("job_%s.log", jobID))
}

// callerIdentity identifies the enclosing program: maps from distinct
// binaries never share a namespace even when task names coincide.
func callerIdentity() string {
	path, err := os.Executable()
	if err != nil {
		return "unknown"
	}
	return sanitize(filepath.Base(path))
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, s)
}
