package allocator

import (
	"fmt"
	"sync"

	"github.com/viant/kcore/errs"
)

// Config represents allocator configuration
type Config struct {
	// Capacity is the total number of bytes that may be outstanding at once.
	Capacity int64 `json:"capacity" yaml:"capacity"`
}

// DefaultConfig returns the default allocator configuration
func DefaultConfig() Config {
	return Config{
		Capacity: 64 << 20,
	}
}

// Handle identifies one allocation. Handles are assigned by a bump counter and
// never reused.
type Handle uint64

// Block is an allocated region.
type Block struct {
	handle Handle
	data   []byte
}

// Handle returns the block handle
func (b *Block) Handle() Handle {
	if b == nil {
		return 0
	}
	return b.handle
}

// Bytes returns the block storage
func (b *Block) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// Size returns block size in bytes
func (b *Block) Size() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Service allocates blocks against a fixed byte budget
type Service struct {
	config Config
	mu     sync.Mutex
	next   Handle
	inUse  int64
	peak   int64
	live   map[Handle]int64
}

// Alloc reserves size bytes.
func (s *Service) Alloc(size int) (*Block, error) {
	if size <= 0 {
		return nil, fmt.Errorf("alloc %d bytes: %w", size, errs.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inUse+int64(size) > s.config.Capacity {
		return nil, fmt.Errorf("alloc %d bytes, %d/%d in use: %w", size, s.inUse, s.config.Capacity, errs.ErrResourceExhausted)
	}
	s.next++
	s.inUse += int64(size)
	if s.inUse > s.peak {
		s.peak = s.inUse
	}
	s.live[s.next] = int64(size)
	return &Block{handle: s.next, data: make([]byte, size)}, nil
}

// Free releases a block. Freeing twice, or freeing a block that this
// allocator did not hand out, reports ErrInvalidHandle.
func (s *Service) Free(block *Block) error {
	if block == nil {
		return fmt.Errorf("free nil block: %w", errs.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	size, ok := s.live[block.handle]
	if !ok {
		return fmt.Errorf("free block %d: %w", block.handle, errs.ErrInvalidHandle)
	}
	delete(s.live, block.handle)
	s.inUse -= size
	block.data = nil
	return nil
}

// InUse returns the number of outstanding bytes
func (s *Service) InUse() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inUse
}

// Peak returns the highest number of outstanding bytes observed
func (s *Service) Peak() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

// Blocks returns the number of outstanding blocks
func (s *Service) Blocks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Capacity returns the configured budget
func (s *Service) Capacity() int64 {
	return s.config.Capacity
}

// New creates an allocator
func New(config Config) *Service {
	if config.Capacity <= 0 {
		config.Capacity = DefaultConfig().Capacity
	}
	return &Service{config: config, live: map[Handle]int64{}}
}
