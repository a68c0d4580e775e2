package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/viant/kcore"
	"github.com/viant/kcore/errs"
	"github.com/viant/kcore/runtime/process"
	"github.com/viant/kcore/service/messaging"
)

const workloadChannel = "workload"

// workload drives producers and one consumer over a named channel
type workload struct {
	Kind      string
	Producers int
	Messages  int
	Size      int
}

type report struct {
	Messages   int
	Bytes      int
	SnapshotID string
}

func (w *workload) validate() error {
	if w.Producers <= 0 || w.Messages <= 0 || w.Size <= 0 {
		return fmt.Errorf("producers, messages and size must be positive: %w", errs.ErrInvalidArgument)
	}
	switch messaging.Kind(w.Kind) {
	case messaging.KindFIFO, messaging.KindPriority:
		return nil
	}
	return fmt.Errorf("channel kind %q: %w", w.Kind, errs.ErrInvalidArgument)
}

// Run executes the workload, then saves a snapshot of the drained kernel
func (w *workload) Run(ctx context.Context, rt *kcore.Runtime) (*report, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	ret := &report{}
	var err error
	if messaging.Kind(w.Kind) == messaging.KindFIFO {
		err = w.spawnFIFO(ctx, rt, ret)
	} else {
		err = w.spawnPriority(ctx, rt, ret)
	}
	if err != nil {
		return nil, err
	}
	if err = rt.Run(ctx); err != nil {
		return nil, err
	}
	snapshot, err := rt.SaveSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	ret.SnapshotID = snapshot.ID
	return ret, nil
}

func payload(producer, seq int) []byte {
	return []byte(fmt.Sprintf("p%d-m%d", producer, seq))
}

func (w *workload) spawnPriority(ctx context.Context, rt *kcore.Runtime, ret *report) error {
	if _, err := rt.CreatePriority(ctx, workloadChannel, messaging.ModeReadWrite, w.Size); err != nil {
		return err
	}
	consumer, err := rt.OpenPriority(ctx, workloadChannel, messaging.ModeRead)
	if err != nil {
		return err
	}
	for i := 0; i < w.Producers; i++ {
		producer, err := rt.OpenPriority(ctx, workloadChannel, messaging.ModeWrite)
		if err != nil {
			return err
		}
		id := i
		entry := func(ctx context.Context) {
			defer producer.Close()
			for seq := 0; seq < w.Messages; seq++ {
				priority := messaging.Priority(seq % messaging.Priorities)
				for {
					_, err := producer.Send(ctx, payload(id, seq), priority)
					if !errors.Is(err, errs.ErrChannelFull) {
						break
					}
					_ = rt.Yield(ctx)
				}
				_ = rt.Scheduler().Tick(ctx)
			}
		}
		if _, err = rt.Spawn(ctx, entry, 1, process.WithName(fmt.Sprintf("producer-%d", id))); err != nil {
			return err
		}
	}
	_, err = rt.Spawn(ctx, func(ctx context.Context) {
		defer consumer.Close()
		for {
			msg, err := consumer.Recv(ctx)
			if err != nil {
				return
			}
			ret.Messages++
			ret.Bytes += len(msg.Data)
		}
	}, 5, process.WithName("consumer"))
	return err
}

func (w *workload) spawnFIFO(ctx context.Context, rt *kcore.Runtime, ret *report) error {
	if _, err := rt.CreateFIFO(ctx, workloadChannel, messaging.ModeReadWrite, w.Size); err != nil {
		return err
	}
	consumer, err := rt.OpenFIFO(ctx, workloadChannel, messaging.ModeRead)
	if err != nil {
		return err
	}
	for i := 0; i < w.Producers; i++ {
		producer, err := rt.OpenFIFO(ctx, workloadChannel, messaging.ModeWrite)
		if err != nil {
			return err
		}
		id := i
		entry := func(ctx context.Context) {
			defer producer.Close()
			for seq := 0; seq < w.Messages; seq++ {
				if _, err := producer.Write(ctx, payload(id, seq)); err != nil {
					return
				}
				ret.Messages++
				_ = rt.Scheduler().Tick(ctx)
			}
		}
		if _, err = rt.Spawn(ctx, entry, 1, process.WithName(fmt.Sprintf("producer-%d", id))); err != nil {
			return err
		}
	}
	_, err = rt.Spawn(ctx, func(ctx context.Context) {
		defer consumer.Close()
		buf := make([]byte, 16)
		for {
			n, err := consumer.Read(ctx, buf)
			ret.Bytes += n
			if err != nil {
				if !errors.Is(err, io.EOF) {
					rt.Logger().Warn("consumer stopped", "error", err)
				}
				return
			}
		}
	}, 5, process.WithName("consumer"))
	return err
}
