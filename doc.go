// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
	Package slurmmap distributes a map over a slurm-managed cluster: each
	element of the input collection is computed by a separate batch job,
	and the results are collected back into a slice ordered like the
	input. Slurmmap does not run a scheduler of its own; it drives the
	cluster's sbatch, squeue and scancel commands and coordinates with
	the spawned jobs through a namespace directory on a filesystem shared
	between the submitting host and the compute nodes.

	Because Go cannot serialize code to be sent over the wire, mapped
	functions are tasks registered under an explicit, stable name with
	Func. The same binary acts as both driver and remote entrypoint: the
	generated job scripts re-invoke the submitting executable with the
	execute subcommand, which is intercepted by Init. A compliant program
	therefore registers its tasks in package scope and calls Init at the
	top of main:

		var square = slurmmap.Func("square", func(x int) int { return x * x })

		func main() {
			slurmmap.Init()
			results, err := slurmmap.Map(context.Background(), square,
				[]interface{}{1, 2, 3, 4}, nil)
			...
		}

	Work is content addressed: an item's artifacts are named by a digest
	of its serialized payload, so identical inputs are computed once, a
	re-run of an interrupted map resubmits only work that has neither an
	argument nor a result artifact on disk, and mapping a superset of a
	previous input submits jobs only for the new elements. All state
	needed to resume, inspect, or clean up lives in the namespace
	directory; it is deleted only after every item has resolved.

	Interrupting a map leaves the batch jobs running. Cancelling them is
	a separate, explicit operation (the cancel subcommand, or CancelJobs).
*/
package slurmmap
