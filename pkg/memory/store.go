package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/guardianlabs/mindcore-go/pkg/search"
)

const (
	// defaultDecayRate is the per-hour exponential decay base for the
	// recency term.
	defaultDecayRate = 0.99

	// minSimilarity is the floor below which index hits are discarded.
	minSimilarity = 0.1

	// candidateMultiplier widens the index query so scoring has slack to
	// reorder beyond pure similarity.
	candidateMultiplier = 3

	// degradedWindow is how many recent records the fallback ranking
	// considers when the search index is unavailable.
	degradedWindow = 200
)

// Store is the memory store: an append-only journal plus a semantic index,
// with composite recency/importance/relevance retrieval.
//
// Writes for one owner are serialized by a per-owner mutex; reads are only
// bounded by the journal's own synchronization.
type Store struct {
	journal Journal
	index   search.Index
	node    *snowflake.Node

	logger     *zap.Logger
	now        func() time.Time
	decayRate  float64
	sharedTags map[string]struct{}

	mu     sync.Mutex
	owners map[string]*sync.Mutex
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store's logger.
func WithLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock overrides the store's time source. Intended for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithDecayRate overrides the hourly recency decay base.
func WithDecayRate(rate float64) StoreOption {
	return func(s *Store) {
		s.decayRate = rate
	}
}

// WithSharedTags replaces the cross-cutting tag allow-list. A record carrying
// any of these tags is visible to every agent's retrieval regardless of
// owner. Defaults: "system", "broadcast".
func WithSharedTags(tags ...string) StoreOption {
	return func(s *Store) {
		s.sharedTags = make(map[string]struct{}, len(tags))
		for _, tag := range tags {
			s.sharedTags[tag] = struct{}{}
		}
	}
}

// NewStore creates a memory store over a journal and a search index.
func NewStore(j Journal, idx search.Index, opts ...StoreOption) (*Store, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}

	s := &Store{
		journal:   j,
		index:     idx,
		node:      node,
		logger:    zap.NewNop(),
		now:       time.Now,
		decayRate: defaultDecayRate,
		sharedTags: map[string]struct{}{
			"system":    {},
			"broadcast": {},
		},
		owners: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Record writes a new record to the journal and forwards its text to the
// search index. Both timestamps are set to now. An index failure is logged
// and swallowed: the journal remains authoritative and retrieval degrades
// gracefully.
func (s *Store) Record(ctx context.Context, description string, importance float64, kind Kind, owner string, tags []string) (*Record, error) {
	importance = clamp(importance, 0, 10)

	lock := s.ownerLock(owner)
	lock.Lock()
	defer lock.Unlock()

	now := s.now()
	rec := &Record{
		ID:           s.node.Generate().Int64(),
		Description:  description,
		CreatedAt:    now,
		LastAccessed: now,
		Importance:   importance,
		Kind:         kind,
		Owner:        owner,
		Tags:         append([]string(nil), tags...),
	}

	if err := s.journal.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("memory store: record: %w", err)
	}

	err := s.index.Upsert(ctx, search.Document{
		ID:    strconv.FormatInt(rec.ID, 10),
		Owner: owner,
		Text:  description,
		Tags:  rec.Tags,
	})
	if err != nil {
		s.logger.Warn("memory index upsert failed, record kept journal-only",
			zap.Int64("record_id", rec.ID),
			zap.String("owner", owner),
			zap.Error(err))
	}

	return rec, nil
}

// Retrieve returns the top records for a query, scored by
//
//	score = recency + importance/10 + 2*relevance
//
// where recency decays exponentially with hours since last access. Results
// are restricted to the owner's records plus records carrying a shared tag.
// Every returned record has its LastAccessed advanced to now.
//
// An empty store or no candidate above the similarity floor yields an empty
// slice. If the search index is unavailable, retrieval degrades to
// recency+importance ranking over the journal's recent window instead of
// failing.
func (s *Store) Retrieve(ctx context.Context, query string, owner string, limit int) ([]*Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	candidates, err := s.semanticCandidates(ctx, query, owner, limit)
	if err != nil {
		s.logger.Warn("semantic search unavailable, degrading to recency+importance ranking",
			zap.String("owner", owner),
			zap.Error(err))
		candidates, err = s.degradedCandidates(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("memory store: retrieve: %w", err)
		}
	}

	now := s.now()
	sort.Slice(candidates, func(a, b int) bool {
		return s.score(candidates[a], now) > s.score(candidates[b], now)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	records := make([]*Record, 0, len(candidates))
	for _, cand := range candidates {
		if err := s.journal.Touch(ctx, cand.rec.ID, now); err != nil {
			s.logger.Warn("touch failed", zap.Int64("record_id", cand.rec.ID), zap.Error(err))
		}
		cand.rec.LastAccessed = now
		records = append(records, cand.rec)
	}

	return records, nil
}

// Recent returns up to n of the owner's records newest-first, straight from
// the journal. Used by reflection and planning; does not bump LastAccessed.
func (s *Store) Recent(ctx context.Context, owner string, n int) ([]*Record, error) {
	return s.journal.Recent(ctx, owner, n)
}

// candidate pairs a record with its semantic relevance for scoring.
type candidate struct {
	rec       *Record
	relevance float64
}

func (s *Store) semanticCandidates(ctx context.Context, query, owner string, limit int) ([]candidate, error) {
	hits, err := s.index.Query(ctx, query, limit*candidateMultiplier, minSimilarity)
	if err != nil {
		return nil, err
	}

	candidates := make([]candidate, 0, len(hits))
	for _, hit := range hits {
		id, err := strconv.ParseInt(hit.Document.ID, 10, 64)
		if err != nil {
			continue
		}
		rec, err := s.journal.Get(ctx, id)
		if err != nil {
			// Indexed but not journaled should not happen; skip quietly.
			continue
		}
		if !s.visibleTo(rec, owner) {
			continue
		}
		candidates = append(candidates, candidate{rec: rec, relevance: hit.Similarity})
	}

	return candidates, nil
}

func (s *Store) degradedCandidates(ctx context.Context, owner string) ([]candidate, error) {
	records, err := s.journal.Recent(ctx, "", degradedWindow)
	if err != nil {
		return nil, err
	}

	candidates := make([]candidate, 0, len(records))
	for _, rec := range records {
		if !s.visibleTo(rec, owner) {
			continue
		}
		candidates = append(candidates, candidate{rec: rec})
	}

	return candidates, nil
}

// visibleTo reports whether a record may be returned for the given owner
// filter: everything with an empty filter, the owner's own records, and any
// record carrying a shared tag.
func (s *Store) visibleTo(rec *Record, owner string) bool {
	if owner == "" || rec.Owner == owner {
		return true
	}
	for _, tag := range rec.Tags {
		if _, ok := s.sharedTags[tag]; ok {
			return true
		}
	}
	return false
}

func (s *Store) score(c candidate, now time.Time) float64 {
	hours := now.Sub(c.rec.LastAccessed).Hours()
	if hours < 0 {
		hours = 0
	}
	recency := math.Pow(s.decayRate, hours)
	return recency + c.rec.Importance/10.0 + 2.0*c.relevance
}

func (s *Store) ownerLock(owner string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.owners[owner]
	if !ok {
		lock = &sync.Mutex{}
		s.owners[owner] = lock
	}
	return lock
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
