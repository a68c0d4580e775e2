package memory

import (
	"context"

	"github.com/viant/kcore/runtime/process"
	"github.com/viant/kcore/service/dao"
	"github.com/viant/kcore/service/dao/criteria"
	"github.com/viant/kcore/service/dao/store"
)

// Service is the bounded process table: an in-memory, thread-safe store of
// process control blocks keyed by PID.
type Service struct {
	*store.MemoryStore[process.PID, process.Process]
}

var _ dao.Service[process.PID, process.Process] = (*Service)(nil)

// Save adds or replaces a process. A new PID is rejected with dao.ErrFull
// once the table holds its maximum number of entries.
func (s *Service) Save(ctx context.Context, p *process.Process) error {
	if p == nil {
		return dao.ErrNilEntity
	}
	if p.PID == 0 {
		return dao.ErrInvalidID
	}
	return s.MemoryStore.Save(ctx, p)
}

// List returns processes ordered by PID, filtered by the State parameter.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*process.Process, error) {
	all, err := s.MemoryStore.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(parameters) == 0 {
		return all, nil
	}
	out := make([]*process.Process, 0, len(all))
	for _, p := range all {
		if !criteria.FilterByState(p.State().String(), parameters) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// New creates a process table holding at most maxProcesses entries
func New(maxProcesses int) *Service {
	return &Service{
		MemoryStore: store.NewMemoryStore[process.PID, process.Process](
			func(p *process.Process) process.PID { return p.PID },
			maxProcesses,
			func(a, b process.PID) bool { return a < b },
		),
	}
}
