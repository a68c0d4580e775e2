// Package model contains the serialisable, point-in-time views of kernel
// objects (processes, semaphores, channels) that are exported by the runtime
// and persisted by the snapshot store.
package model
