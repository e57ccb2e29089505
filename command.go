// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package slurmmap

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Init intercepts the slurmmap subcommands in the calling binary's
// arguments. Programs that call Map must call Init at the top of main,
// after all Func registrations: generated job scripts re-invoke the
// submitting executable as
//
//	<executable> execute <function> <arg> <kwargs> <result>
//
// and Init is what turns that invocation into the remote execution
// entrypoint. Init also provides the manual operations
//
//	<executable> cleanup <namespace>
//	<executable> cancel <namespace>
//
// When the subcommand is recognized Init runs it and exits the
// process; otherwise it returns and main proceeds as the driver.
func Init() {
	if len(os.Args) < 2 {
		return
	}
	ctx := context.Background()
	switch os.Args[1] {
	case "execute":
		if len(os.Args) != 6 {
			log.Fatal("usage: execute function arg kwargs result")
		}
		if err := executeJob(ctx, os.Args[2], os.Args[3], os.Args[4], os.Args[5]); err != nil {
			log.Fatalf("slurmmap: execute: %v", err)
		}
		os.Exit(0)
	case "cleanup":
		if len(os.Args) != 3 {
			log.Fatal("usage: cleanup namespace")
		}
		if err := Cleanup(ctx, os.Args[2]); err != nil {
			log.Fatal(err)
		}
		os.Exit(0)
	case "cancel":
		if len(os.Args) != 3 {
			log.Fatal("usage: cancel namespace")
		}
		if err := CancelJobs(ctx, os.Args[2]); err != nil {
			log.Fatal(err)
		}
		os.Exit(0)
	}
}

// executeJob is the remote execution entrypoint, run on a compute node
// by a generated job script. It decodes the task name, argument, and
// keyword arguments from their artifacts, runs the task, and finalizes
// the result artifact, printing the completion sentinel for any log
// watcher on the submitting host.
//
// The consumed argument artifact is removed before the task runs, so a
// failed task leaves neither artifact behind: the item shows up as
// missing in the current map and is resubmitted by the next one.
func executeJob(ctx context.Context, funcPath, argPath, kwargsPath, resultPath string) error {
	name, err := readValue(funcPath)
	if err != nil {
		return err
	}
	taskName, ok := name.(string)
	if !ok {
		return errors.E(errors.Invalid, fmt.Sprintf("function artifact %s does not hold a task name", funcPath))
	}
	fv, err := lookup(taskName)
	if err != nil {
		return err
	}
	arg, err := readValue(argPath)
	if err != nil {
		return err
	}
	kwargs, err := readValue(kwargsPath)
	if err != nil {
		return err
	}
	if err := os.Remove(argPath); err != nil && !os.IsNotExist(err) {
		log.Error.Printf("slurmmap: remove consumed argument %s: %v", argPath, err)
	}
	if args, ok := kwargs.(Args); ok && len(args) > 0 {
		ctx = withKwargs(ctx, args)
	}
	result, err := fv.apply(ctx, arg)
	if err != nil {
		return errors.E(err, fmt.Sprintf("task %s", taskName))
	}
	p, err := encode(result)
	if err != nil {
		return err
	}
	if err := atomicWrite(resultPath, p); err != nil {
		return err
	}
	fmt.Println(resultSentinel)
	return nil
}

func readValue(path string) (interface{}, error) {
	p, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.E(err, fmt.Sprintf("read artifact %s", path))
	}
	return decode(p)
}
