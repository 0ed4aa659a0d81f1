/*
Package worker runs the producer and consumer loops of the pipeline and keeps
track of the live workers of each role.

# Overview

A Worker executes exactly one loop, chosen by its role:

  - producer: build a WorkItem with a per-worker increasing id, enqueue it,
    record it, then pause for a random interval in [ProduceDelayMin, ProduceDelayMax)
  - consumer: dequeue, measure the queue wait, simulate processing for a random
    interval in [ConsumeDelayMin, ConsumeDelayMax), roll the simulated error with
    ErrorProbability, record the result

Both pauses are interruptible. Cancellation, a closed queue and a drained queue
are normal termination, never errors.

# Registry

A Registry owns the workers of one role:

	reg, err := worker.NewRegistry(types.RoleProducer, q, agg, worker.DefaultConfig())
	if err != nil {
		log.Fatal(err)
	}

	h := reg.Add(ctx)        // starts "P1"
	reg.Add(ctx)             // starts "P2"
	reg.StopMostRecent()     // cancels "P2", returns at once
	reg.StopAll()            // cancels "P1"
	_ = reg.Wait(ctx)        // blocks until both goroutines returned
	fmt.Println(h.Name)

Names are "P<n>" or "C<n>", counted from 1 and never reused by the same
Registry. A handle leaves the registry at the moment its cancellation is
requested; Wait is the only call that waits for goroutines to finish.

# Randomness

Every worker owns its own *rand.Rand. With Config.Seed set, the sequence of
delays and error rolls depends only on the seed, the role and the worker number.
*/
package worker
