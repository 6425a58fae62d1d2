package vector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// MergePolicy decides what a merge does while another merge is in flight.
type MergePolicy string

const (
	// PolicyQueue waits for the in-flight merge, cancellable through the context.
	PolicyQueue MergePolicy = "queue"
	// PolicyReject fails immediately with ErrStoreBusy.
	PolicyReject MergePolicy = "reject"
)

// verifyTimeout bounds the re-read after a failed persist; it runs even if the caller's context expired.
const verifyTimeout = 10 * time.Second

// Store owns the published snapshot and serializes load-merge-persist-publish.
// Readers never block on a merge. The published snapshot only serves queries; merges
// always start from durable state.
type Store struct {
	backend Backend
	policy  MergePolicy
	logger  *zap.Logger

	merge   *semaphore.Weighted
	current atomic.Pointer[Snapshot]
	loadMu  sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithMergePolicy sets the policy for concurrent merges. The default is PolicyQueue.
func WithMergePolicy(p MergePolicy) Option {
	return func(s *Store) {
		s.policy = p
	}
}

// NewStore creates a store over backend. Durable state is read lazily on first use or by Load.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		policy:  PolicyQueue,
		merge:   semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadSnapshot reads and decodes durable state. Absent state is the empty snapshot.
func LoadSnapshot(ctx context.Context, backend Backend) (*Snapshot, error) {
	data, err := backend.Read(ctx)
	if err != nil {
		if errors.Is(err, ErrNotExist) {
			return Empty(), nil
		}
		return nil, fmt.Errorf("failed to load index from %s: %w", backend.Location(), err)
	}
	snap, err := DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode index from %s: %w", backend.Location(), err)
	}
	return snap, nil
}

// Persist encodes snap and durably replaces the backend's state with it.
func Persist(ctx context.Context, backend Backend, snap *Snapshot) error {
	data, err := EncodeBytes(snap)
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if err := backend.Write(ctx, data); err != nil {
		return fmt.Errorf("failed to persist index to %s: %w", backend.Location(), err)
	}
	return nil
}

// Load reads durable state and publishes it, replacing whatever was published before.
// It waits for an in-flight merge so it cannot publish state older than that merge's result.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	if err := s.merge.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for merge lock: %w", err)
	}
	defer s.merge.Release(1)
	snap, err := LoadSnapshot(ctx, s.backend)
	if err != nil {
		return nil, err
	}
	s.current.Store(snap)
	s.logLoaded(snap)
	return snap, nil
}

// Snapshot returns the published snapshot, loading durable state on first use.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	if snap := s.current.Load(); snap != nil {
		return snap, nil
	}
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if snap := s.current.Load(); snap != nil {
		return snap, nil
	}
	snap, err := LoadSnapshot(ctx, s.backend)
	if err != nil {
		return nil, err
	}
	// a merge may have published while we were reading
	if !s.current.CompareAndSwap(nil, snap) {
		return s.current.Load(), nil
	}
	s.logLoaded(snap)
	return snap, nil
}

func (s *Store) logLoaded(snap *Snapshot) {
	if s.logger != nil {
		s.logger.Info("index loaded",
			zap.String("location", s.backend.Location()),
			zap.Int("entries", snap.Len()),
			zap.Int("dimensions", snap.Dims()))
	}
}

// Location returns the backend's location.
func (s *Store) Location() string {
	return s.backend.Location()
}

// MergeAndPersist appends entries to the durable state, persists the result and then
// publishes it. Durable state is re-read under the lock, so pages written by another
// Store over the same backend are kept. created reports whether the store was empty
// before this call. On any failure durable state is unchanged.
func (s *Store) MergeAndPersist(ctx context.Context, entries []models.IndexEntry) (created bool, total int, err error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return false, 0, err
	}
	defer unlock()

	start := time.Now()
	prior, err := LoadSnapshot(ctx, s.backend)
	if err != nil {
		return false, 0, err
	}
	if cur := s.current.Load(); cur == nil || !Equal(cur, prior) {
		if cur != nil && s.logger != nil {
			s.logger.Info("durable index changed by another writer",
				zap.Int("published", cur.Len()), zap.Int("durable", prior.Len()))
		}
		s.current.Store(prior)
	}
	next, err := Merge(prior, entries)
	if err != nil {
		return false, 0, err
	}
	if err := Persist(ctx, s.backend, next); err != nil {
		return false, 0, s.recoverPersist(ctx, prior, next, err)
	}
	s.current.Store(next)

	if s.logger != nil {
		s.logger.Info("index merged",
			zap.Int("added", len(entries)),
			zap.Int("total", next.Len()),
			zap.Bool("created", prior.IsEmpty()),
			zap.Duration("duration", time.Since(start)))
	}
	return prior.IsEmpty(), next.Len(), nil
}

// Reset removes durable state and publishes the empty snapshot. It takes the merge lock.
func (s *Store) Reset(ctx context.Context) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.backend.Remove(ctx); err != nil {
		return fmt.Errorf("failed to reset index: %w", err)
	}
	s.current.Store(Empty())
	if s.logger != nil {
		s.logger.Info("index reset", zap.String("location", s.backend.Location()))
	}
	return nil
}

// lock takes the in-process merge lock and, for backends shared between processes,
// the backend's own lock. Both follow the merge policy.
func (s *Store) lock(ctx context.Context) (func(), error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	l, ok := s.backend.(Locker)
	if !ok {
		return func() { s.merge.Release(1) }, nil
	}
	unlock, err := l.Lock(ctx, s.policy != PolicyReject)
	if err != nil {
		s.merge.Release(1)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("waiting for index lock: %w: %w", models.ErrUpstreamTimeout, err)
		}
		return nil, err
	}
	return func() {
		unlock()
		s.merge.Release(1)
	}, nil
}

func (s *Store) acquire(ctx context.Context) error {
	if s.policy == PolicyReject {
		if !s.merge.TryAcquire(1) {
			return fmt.Errorf("%w: another ingestion is merging", models.ErrStoreBusy)
		}
		return nil
	}
	if err := s.merge.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("waiting for merge lock: %w: %w", models.ErrUpstreamTimeout, err)
		}
		return fmt.Errorf("waiting for merge lock: %w", err)
	}
	return nil
}

// recoverPersist re-reads durable state after a failed persist. If it still equals prior the
// original error is returned. If the write landed after all, next is published and the call
// succeeds. Anything else is reported as ErrStateDiverged.
func (s *Store) recoverPersist(ctx context.Context, prior, next *Snapshot, persistErr error) error {
	if errors.Is(persistErr, context.DeadlineExceeded) {
		persistErr = fmt.Errorf("%w: %w", models.ErrUpstreamTimeout, persistErr)
	}

	vctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), verifyTimeout)
	defer cancel()
	durable, err := LoadSnapshot(vctx, s.backend)
	switch {
	case err != nil:
		s.logError("index state unverifiable after failed persist", persistErr, err)
		return errors.Join(persistErr, fmt.Errorf("%w: verify: %w", models.ErrStateDiverged, err))
	case Equal(durable, prior):
		return persistErr
	case Equal(durable, next):
		s.current.Store(next)
		if s.logger != nil {
			s.logger.Warn("persist reported failure but durable state holds the merged index",
				zap.Error(persistErr))
		}
		return nil
	default:
		s.logError("durable index diverged from published snapshot", persistErr, nil)
		return errors.Join(persistErr, fmt.Errorf("%w: durable state has %d entries, expected %d",
			models.ErrStateDiverged, durable.Len(), prior.Len()))
	}
}

func (s *Store) logError(msg string, persistErr, verifyErr error) {
	if s.logger == nil {
		return
	}
	fields := []zap.Field{zap.String("location", s.backend.Location()), zap.Error(persistErr)}
	if verifyErr != nil {
		fields = append(fields, zap.NamedError("verify_error", verifyErr))
	}
	s.logger.Error(msg, fields...)
}
