// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package slurmmap

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"regexp"
	"strings"

	"github.com/grailbio/base/errors"
)

// Scheduler is the boundary to the cluster batch scheduler's command
// line interface. Implementations own job execution entirely: slurmmap
// never observes job state beyond queue membership, and never kills a
// job except through Cancel.
type Scheduler interface {
	// Submit submits the job script at the provided path, returning the
	// submit command's output lines. A successful submission is
	// signalled by a line matching the scheduler's acceptance pattern;
	// other lines are diagnostic.
	Submit(ctx context.Context, scriptPath string) ([]string, error)
	// Queue returns the scheduler's listing of the current user's
	// active jobs. A job is considered active iff its id appears as a
	// substring of the listing.
	Queue(ctx context.Context) (string, error)
	// Cancel cancels a single job.
	Cancel(ctx context.Context, jobID string) error
}

// submittedLine matches sbatch's acceptance output, capturing the
// assigned job id.
var submittedLine = regexp.MustCompile(`Submitted batch job ([0-9]+)`)

// parseSubmitLine extracts a job id from one line of submit-command
// output, reporting whether the line signals an accepted submission.
func parseSubmitLine(line string) (string, bool) {
	m := submittedLine.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// slurm is the Scheduler implementation backed by the slurm command
// line tools.
type slurm struct{}

func (slurm) Submit(ctx context.Context, scriptPath string) ([]string, error) {
	out, err := exec.CommandContext(ctx, "sbatch", scriptPath).CombinedOutput()
	lines := splitLines(string(out))
	if err != nil {
		return lines, errors.E(err, fmt.Sprintf("slurmmap: sbatch %s", scriptPath))
	}
	return lines, nil
}

func (slurm) Queue(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "squeue", "-u", currentUser()).CombinedOutput()
	if err != nil {
		return "", errors.E(err, "slurmmap: squeue")
	}
	return string(out), nil
}

func (slurm) Cancel(ctx context.Context, jobID string) error {
	if out, err := exec.CommandContext(ctx, "scancel", jobID).CombinedOutput(); err != nil {
		return errors.E(err, fmt.Sprintf("slurmmap: scancel %s: %s", jobID, strings.TrimSpace(string(out))))
	}
	return nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
