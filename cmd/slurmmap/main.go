// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Slurmmap is an operational tool for slurmmap namespaces, for use
// when the submitting binary is unavailable. It removes leftover
// namespaces and cancels the jobs recorded in their ledgers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/slurmmap"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Slurmmap manages leftover slurmmap namespaces.

Usage:

	slurmmap <command> <namespace>

The commands are:

	cleanup     remove a namespace directory and all of its artifacts
	cancel      cancel every job recorded in a namespace's ledger
`)
	os.Exit(2)
}

func main() {
	log.AddFlags()
	log.SetFlags(0)
	log.SetPrefix("slurmmap: ")
	must.Func = func(depth int, v ...interface{}) {
		log.Fatal(v...)
	}
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
	}
	ctx := context.Background()
	cmd, path := flag.Arg(0), flag.Arg(1)
	switch cmd {
	default:
		fmt.Fprintln(os.Stderr, "unknown command", cmd)
		flag.Usage()
	case "cleanup":
		if err := slurmmap.Cleanup(ctx, path); err != nil {
			log.Fatal(err)
		}
	case "cancel":
		if err := slurmmap.CancelJobs(ctx, path); err != nil {
			log.Fatal(err)
		}
	}
}
