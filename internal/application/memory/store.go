package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/execution-hub/agent-orchestrator/internal/domain/agent"
	"github.com/execution-hub/agent-orchestrator/internal/domain/task"
)

const (
	DefaultShortTermTTL = time.Hour
	DefaultWorkingLimit = 100

	loadTimeout = 5 * time.Second
)

var ErrUnknownWorker = errors.New("no memory for worker")

// Persister stores long-term entries outside the process.
type Persister interface {
	Save(ctx context.Context, worker, key string, value any) error
	Delete(ctx context.Context, worker, key string) error
	Load(ctx context.Context, worker string) (map[string]Entry, error)
}

// Entry is one remembered value.
type Entry struct {
	Value    any       `json:"value"`
	StoredAt time.Time `json:"storedAt"`
}

// Snapshot is a copy of one worker's memory.
type Snapshot struct {
	Worker    string           `json:"worker"`
	ShortTerm map[string]Entry `json:"shortTerm"`
	LongTerm  map[string]Entry `json:"longTerm"`
	Working   []*task.Message  `json:"working"`
}

type Config struct {
	ShortTermTTL time.Duration
	WorkingLimit int
}

type workerMemory struct {
	mu        sync.Mutex
	shortTerm map[string]Entry
	longTerm  map[string]Entry
	working   []*task.Message
}

func newWorkerMemory() *workerMemory {
	return &workerMemory{
		shortTerm: make(map[string]Entry),
		longTerm:  make(map[string]Entry),
	}
}

// Store keeps per-worker short-term, long-term and working memory.
// The outer lock guards only the worker map; each worker has its own lock.
type Store struct {
	mu        sync.RWMutex
	workers   map[string]*workerMemory
	ttl       time.Duration
	limit     int
	persister Persister
	now       func() time.Time
	logger    zerolog.Logger
}

// NewStore creates a memory store. persister may be nil.
func NewStore(cfg Config, persister Persister, logger zerolog.Logger) *Store {
	if cfg.ShortTermTTL <= 0 {
		cfg.ShortTermTTL = DefaultShortTermTTL
	}
	if cfg.WorkingLimit <= 0 {
		cfg.WorkingLimit = DefaultWorkingLimit
	}
	return &Store{
		workers:   make(map[string]*workerMemory),
		ttl:       cfg.ShortTermTTL,
		limit:     cfg.WorkingLimit,
		persister: persister,
		now:       time.Now,
		logger:    logger.With().Str("service", "memory").Logger(),
	}
}

// WorkerRegistered creates memory for w and loads persisted long-term entries.
func (s *Store) WorkerRegistered(w *agent.Worker) {
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()
	if err := s.Track(ctx, w.Name); err != nil {
		s.logger.Warn().Err(err).Str("agent", w.Name).Msg("failed to load long-term memory")
	}
}

// WorkerUnregistered drops the worker's memory.
func (s *Store) WorkerUnregistered(name string) {
	s.Drop(name)
}

// Track creates memory for worker if absent.
func (s *Store) Track(ctx context.Context, worker string) error {
	s.mu.Lock()
	m, ok := s.workers[worker]
	if !ok {
		m = newWorkerMemory()
		s.workers[worker] = m
	}
	s.mu.Unlock()

	if ok || s.persister == nil {
		return nil
	}
	entries, err := s.persister.Load(ctx, worker)
	if err != nil {
		return err
	}
	m.mu.Lock()
	for k, e := range entries {
		m.longTerm[k] = e
	}
	m.mu.Unlock()
	return nil
}

// Drop removes all memory of worker.
func (s *Store) Drop(worker string) {
	s.mu.Lock()
	delete(s.workers, worker)
	s.mu.Unlock()
}

func (s *Store) get(worker string) (*workerMemory, error) {
	s.mu.RLock()
	m, ok := s.workers[worker]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorker, worker)
	}
	return m, nil
}

// Remember stores value under key. Persistent values go to long-term memory
// and are written through to the persister; others expire after the TTL.
// Each short-term write sweeps the worker's expired entries.
func (s *Store) Remember(ctx context.Context, worker, key string, value any, persistent bool) error {
	m, err := s.get(worker)
	if err != nil {
		return err
	}
	now := s.now()
	entry := Entry{Value: value, StoredAt: now}

	m.mu.Lock()
	if persistent {
		m.longTerm[key] = entry
	} else {
		m.shortTerm[key] = entry
		s.sweepLocked(m, now)
	}
	m.mu.Unlock()

	if persistent && s.persister != nil {
		if err := s.persister.Save(ctx, worker, key, value); err != nil {
			return fmt.Errorf("persist memory %s/%s: %w", worker, key, err)
		}
	}
	return nil
}

func (s *Store) sweepLocked(m *workerMemory, now time.Time) {
	for k, e := range m.shortTerm {
		if now.Sub(e.StoredAt) > s.ttl {
			delete(m.shortTerm, k)
		}
	}
}

// Recall returns the value under key, short-term first. Expired short-term
// entries are ignored.
func (s *Store) Recall(worker, key string) (any, bool) {
	m, err := s.get(worker)
	if err != nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.shortTerm[key]; ok && s.now().Sub(e.StoredAt) <= s.ttl {
		return e.Value, true
	}
	if e, ok := m.longTerm[key]; ok {
		return e.Value, true
	}
	return nil, false
}

// Forget removes key from both tiers.
func (s *Store) Forget(ctx context.Context, worker, key string) error {
	m, err := s.get(worker)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.shortTerm, key)
	_, persisted := m.longTerm[key]
	delete(m.longTerm, key)
	m.mu.Unlock()

	if persisted && s.persister != nil {
		return s.persister.Delete(ctx, worker, key)
	}
	return nil
}

// AppendWorking adds msg to working memory, evicting the oldest over the limit.
func (s *Store) AppendWorking(worker string, msg *task.Message) error {
	m, err := s.get(worker)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.working = append(m.working, msg)
	if over := len(m.working) - s.limit; over > 0 {
		copy(m.working, m.working[over:])
		m.working = m.working[:s.limit]
	}
	return nil
}

// Working returns a copy of the worker's working memory, oldest first.
func (s *Store) Working(worker string) []*task.Message {
	m, err := s.get(worker)
	if err != nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*task.Message(nil), m.working...)
}

// Snapshot returns a copy of the worker's memory with expired entries omitted.
func (s *Store) Snapshot(worker string) (Snapshot, error) {
	m, err := s.get(worker)
	if err != nil {
		return Snapshot{}, err
	}
	now := s.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Worker:    worker,
		ShortTerm: make(map[string]Entry, len(m.shortTerm)),
		LongTerm:  make(map[string]Entry, len(m.longTerm)),
		Working:   append([]*task.Message(nil), m.working...),
	}
	for k, e := range m.shortTerm {
		if now.Sub(e.StoredAt) <= s.ttl {
			snap.ShortTerm[k] = e
		}
	}
	for k, e := range m.longTerm {
		snap.LongTerm[k] = e
	}
	return snap, nil
}

// Workers returns the tracked worker names.
func (s *Store) Workers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.workers))
	for name := range s.workers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
