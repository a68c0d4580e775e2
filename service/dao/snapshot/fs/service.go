// Package fs persists kernel snapshots under a base URL through viant/afs,
// so any afs scheme (file, mem, cloud storage) can hold them.
package fs

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"
	"github.com/viant/kcore/internal/logger"
	"github.com/viant/kcore/model"
	"github.com/viant/kcore/service/dao"
)

// Config represents snapshot storage configuration
type Config struct {
	BaseURL string `json:"baseURL" yaml:"baseURL"`
	Codec   string `json:"codec" yaml:"codec"`
}

// DefaultConfig returns the default snapshot storage configuration
func DefaultConfig() Config {
	return Config{BaseURL: "mem://localhost/kcore/snapshot", Codec: string(CodecJSON)}
}

// Service implements a filesystem-based snapshot storage
type Service struct {
	baseURL string
	codec   Codec
	fs      afs.Service
	logger  *slog.Logger
	mu      sync.RWMutex
}

var _ dao.Service[string, model.Snapshot] = (*Service)(nil)

// Save persists a snapshot
func (s *Service) Save(ctx context.Context, snapshot *model.Snapshot) error {
	if snapshot == nil {
		return dao.ErrNilEntity
	}
	if snapshot.ID == "" {
		return dao.ErrInvalidID
	}
	data, err := s.codec.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	URL := s.snapshotURL(snapshot.ID)
	if err = s.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save snapshot to %s: %w", URL, err)
	}
	return nil
}

// Load retrieves a snapshot by id
func (s *Service) Load(ctx context.Context, id string) (*model.Snapshot, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	URL := s.snapshotURL(id)
	if ok, _ := s.fs.Exists(ctx, URL); !ok {
		return nil, fmt.Errorf("snapshot %s: %w", id, dao.ErrNotFound)
	}
	data, err := s.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", URL, err)
	}
	ret := &model.Snapshot{}
	if err = s.codec.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s: %w", URL, err)
	}
	return ret, nil
}

// Delete removes a snapshot
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	URL := s.snapshotURL(id)
	if ok, _ := s.fs.Exists(ctx, URL); !ok {
		return fmt.Errorf("snapshot %s: %w", id, dao.ErrNotFound)
	}
	if err := s.fs.Delete(ctx, URL); err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", URL, err)
	}
	return nil
}

// List returns stored snapshots ordered by capture time. Unreadable entries
// are logged and skipped.
func (s *Service) List(ctx context.Context, _ ...*dao.Parameter) ([]*model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ok, _ := s.fs.Exists(ctx, s.baseURL); !ok {
		return nil, nil
	}
	objects, err := s.fs.List(ctx, s.baseURL, option.NewRecursive(false))
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	var ret []*model.Snapshot
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), s.codec.Ext()) {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			s.logger.Warn("failed to read snapshot", "url", object.URL(), "error", err)
			continue
		}
		snapshot := &model.Snapshot{}
		if err = s.codec.Unmarshal(data, snapshot); err != nil {
			s.logger.Warn("failed to unmarshal snapshot", "url", object.URL(), "error", err)
			continue
		}
		ret = append(ret, snapshot)
	}
	sort.SliceStable(ret, func(i, j int) bool { return ret[i].TakenAt.Before(ret[j].TakenAt) })
	return ret, nil
}

// Codec returns the configured encoding
func (s *Service) Codec() Codec {
	return s.codec
}

// URL returns the location of a snapshot
func (s *Service) URL(id string) string {
	return s.snapshotURL(id)
}

func (s *Service) snapshotURL(id string) string {
	return url.Join(s.baseURL, path.Base(id)+s.codec.Ext())
}

// New creates a snapshot storage service
func New(config Config, log *slog.Logger) (*Service, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("snapshot base URL cannot be empty: %w", dao.ErrInvalidID)
	}
	codec, err := ParseCodec(config.Codec)
	if err != nil {
		return nil, err
	}
	return &Service{
		baseURL: url.Normalize(config.BaseURL, file.Scheme),
		codec:   codec,
		fs:      afs.New(),
		logger:  logger.OrDefault(log),
	}, nil
}
