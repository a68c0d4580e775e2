// Package kcore is the concurrency core of a small operating system: a
// priority-based cooperative scheduler, counting semaphores and two kinds of
// bounded channels (a byte-stream FIFO and a four-lane priority FIFO), all
// running on a single logical core simulated over goroutines.
//
// The Service façade wires the components together and exposes them through
// Runtime:
//
//	srv, _ := kcore.New(kcore.WithConfig(cfg))
//	rt := srv.Runtime()
//	jobs, _ := rt.CreatePriority(ctx, "jobs", messaging.ModeReadWrite, 4096)
//	_, _ = rt.Spawn(ctx, producer, 5, process.WithName("producer"))
//	_ = rt.Run(ctx)
//	snapshot, _ := rt.SaveSnapshot(ctx)
//
// Process entries receive a context identifying the running process; every
// blocking call (Semaphore.Wait, channel Read/Recv, Yield) must be made with it.
package kcore
