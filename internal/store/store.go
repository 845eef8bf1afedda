// Package store provides the knowledge brick store and its storage backends.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/rcliao/brick-matrix/internal/model"
)

var (
	// ErrNotFound is returned when an operation references a missing brick.
	ErrNotFound = errors.New("brick not found")
	// ErrMalformedPayload is returned when an import document fails structural checks.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrStorageUnavailable wraps any failure of the backing storage.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Backend persists the whole brick collection as a single blob.
// A missing blob loads as nil data and no error.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// Options configures a KnowledgeStore.
type Options struct {
	// SchemaVersion is stamped on created and imported bricks.
	SchemaVersion int
	// Environment tags exported matrices.
	Environment string
	// DefaultActor is used for authorizedBy when a call passes no actor.
	DefaultActor string
	Logger       *zap.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

const (
	DefaultSchemaVersion = 2
	DefaultEnvironment   = "production"
	DefaultActor         = "admin"
)

// KnowledgeStore owns the authoritative brick collection. Every mutation is
// a serialized load-modify-save against the backend.
type KnowledgeStore struct {
	backend Backend
	opts    Options
	log     *zap.Logger

	// mu serializes writers; readers take the read side so they never see a
	// half-applied save.
	mu      sync.RWMutex
	entropy *rand.Rand

	subs *subscribers
}

// New creates a store over backend.
func New(backend Backend, opts Options) *KnowledgeStore {
	if opts.SchemaVersion <= 0 {
		opts.SchemaVersion = DefaultSchemaVersion
	}
	if opts.Environment == "" {
		opts.Environment = DefaultEnvironment
	}
	if opts.DefaultActor == "" {
		opts.DefaultActor = DefaultActor
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &KnowledgeStore{
		backend: backend,
		opts:    opts,
		log:     log,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
		subs:    newSubscribers(),
	}
}

// SchemaVersion returns the version stamped on new bricks.
func (s *KnowledgeStore) SchemaVersion() int { return s.opts.SchemaVersion }

func (s *KnowledgeStore) now() time.Time {
	return s.opts.Now().UTC()
}

// newID must be called with mu held for writing.
func (s *KnowledgeStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(s.opts.Now()), s.entropy).String()
}

func (s *KnowledgeStore) actor(a string) string {
	if a == "" {
		return s.opts.DefaultActor
	}
	return a
}

func (s *KnowledgeStore) load(ctx context.Context) ([]model.Brick, error) {
	data, err := s.backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load: %w", ErrStorageUnavailable, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var bricks []model.Brick
	if err := json.Unmarshal(data, &bricks); err != nil {
		return nil, fmt.Errorf("%w: decode collection: %v", ErrStorageUnavailable, err)
	}
	return bricks, nil
}

func (s *KnowledgeStore) save(ctx context.Context, bricks []model.Brick) error {
	if bricks == nil {
		bricks = []model.Brick{}
	}
	data, err := json.Marshal(bricks)
	if err != nil {
		return fmt.Errorf("encode collection: %w", err)
	}
	// A cancelled call must not reach the backend.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.backend.Save(ctx, data); err != nil {
		return fmt.Errorf("%w: save: %w", ErrStorageUnavailable, err)
	}
	return nil
}

// mutateFunc receives a private copy of the collection and returns the
// collection to persist plus the ids it touched.
type mutateFunc func(bricks []model.Brick) ([]model.Brick, []string, error)

// mutate runs fn as one serialized read-modify-write and notifies
// subscribers on success. fn may return a nil collection with a nil error to
// signal that nothing changed.
func (s *KnowledgeStore) mutate(ctx context.Context, op Op, fn mutateFunc) error {
	s.mu.Lock()
	bricks, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	next, ids, err := fn(bricks)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if next == nil {
		s.mu.Unlock()
		return nil
	}
	if err := s.save(ctx, next); err != nil {
		s.mu.Unlock()
		s.log.Warn("store mutation failed", zap.String("op", string(op)), zap.Error(err))
		return err
	}
	s.mu.Unlock()

	s.log.Debug("store mutated", zap.String("op", string(op)), zap.Strings("ids", ids), zap.Int("size", len(next)))
	s.subs.publish(Event{Op: op, IDs: ids, At: s.now()})
	return nil
}

// snapshot loads the collection under the read lock.
func (s *KnowledgeStore) snapshot(ctx context.Context) ([]model.Brick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(ctx)
}

func indexOf(bricks []model.Brick, id string) int {
	for i := range bricks {
		if bricks[i].ID == id {
			return i
		}
	}
	return -1
}
