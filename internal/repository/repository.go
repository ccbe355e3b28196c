// Package repository implements the Distributed State Repository: a
// write-through cache over a durable store for per-session state, with
// content-addressed integrity, optimistic versioning, and transient-
// failure retries.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/relaycore/relaycore/internal/codec"
	"github.com/relaycore/relaycore/internal/ports"
)

// ErrRepository is returned by Save/Delete after retry exhaustion
// against the durable store. PurgeStale does not return it: on
// exhaustion it reports a count of 0.
var ErrRepository = errors.New("repository: durable store error")

// StateRecord mirrors the durable/cache representation of session state,
// decoded from canonical JSON bytes into a structured payload.
type StateRecord struct {
	SessionID   string
	Payload     map[string]any
	PayloadHash string
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type cachedRecord struct {
	Payload   map[string]any `json:"payload"`
	Hash      string         `json:"hash"`
	Version   int            `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// LatencySink receives observational cache-latency samples. Errors are
// never surfaced to Save/Get callers.
type LatencySink interface {
	SetEX(ctx context.Context, key string, ttl time.Duration, value []byte) error
}

// Config tunes repository behavior.
type Config struct {
	CacheTTL        time.Duration
	LatencyTTL      time.Duration
	MaxRetries      int
	InitialBackoff  time.Duration
	Logger          *slog.Logger
	OnSaveLatencyMs func(float64)
	OnGetLatencyMs  func(float64)
	OnCacheHit      func()
	OnCacheMiss     func()
	OnRepoError     func(op string)
}

// DefaultConfig returns the defaults named in §4.2: a 3-attempt retry
// budget starting at a 50ms backoff, doubling per attempt.
func DefaultConfig() Config {
	return Config{
		CacheTTL:       10 * time.Minute,
		LatencyTTL:     5 * time.Minute,
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		Logger:         slog.Default(),
	}
}

// Repository composes a CachePort and a DurableStorePort to provide
// durable, integrity-checked session state with a hot cache read path.
type Repository struct {
	cache ports.CachePort
	store ports.DurableStorePort
	cfg   Config
}

// New constructs a Repository over the given ports.
func New(cache ports.CachePort, store ports.DurableStorePort, cfg Config) *Repository {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 50 * time.Millisecond
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.LatencyTTL <= 0 {
		cfg.LatencyTTL = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Repository{cache: cache, store: store, cfg: cfg}
}

func cacheKey(sessionID string) string   { return "state:" + sessionID }
func latencyKey(sessionID string) string { return "state:latency:" + sessionID }

// Save canonical-encodes payload, computes its hash, and performs the
// read-modify-write sequence from §4.2 inside a single durable
// transaction, then writes the result through to the cache.
func (r *Repository) Save(ctx context.Context, sessionID string, payload map[string]any) (*StateRecord, error) {
	start := time.Now()
	defer func() {
		if r.cfg.OnSaveLatencyMs != nil {
			r.cfg.OnSaveLatencyMs(float64(time.Since(start).Microseconds()) / 1000.0)
		}
	}()

	canon, err := codec.Canonicalize(payload)
	if err != nil {
		return nil, fmt.Errorf("repository: canonicalize payload: %w", err)
	}
	hash := codec.HashBytes(canon)

	var row *ports.StateRow
	err = r.retry(ctx, "save", func() error {
		var opErr error
		row, _, opErr = r.store.UpsertState(ctx, sessionID, canon, hash)
		return opErr
	})
	if err != nil {
		return nil, err
	}

	rec := &StateRecord{
		SessionID: sessionID, Payload: payload, PayloadHash: row.PayloadHash,
		Version: row.Version, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}
	r.writeThrough(ctx, rec)
	return rec, nil
}

// Get consults the cache first; on a hit it refreshes the TTL and returns
// immediately (recomputing the hash from the cached payload so that
// cache-side drift never fails an integrity check). On a miss it loads
// from the durable store, writing through to the cache on a hit. Retry
// exhaustion is swallowed: Get never faults callers.
func (r *Repository) Get(ctx context.Context, sessionID string) (*StateRecord, bool) {
	start := time.Now()
	defer func() {
		if r.cfg.OnGetLatencyMs != nil {
			r.cfg.OnGetLatencyMs(float64(time.Since(start).Microseconds()) / 1000.0)
		}
	}()

	if b, ok, err := r.cache.Get(ctx, cacheKey(sessionID)); err == nil && ok {
		var cr cachedRecord
		if err := json.Unmarshal(b, &cr); err == nil {
			if r.cfg.OnCacheHit != nil {
				r.cfg.OnCacheHit()
			}
			_ = r.cache.Expire(ctx, cacheKey(sessionID), r.cfg.CacheTTL)
			hash, _ := codec.HashPayload(cr.Payload)
			return &StateRecord{
				SessionID: sessionID, Payload: cr.Payload, PayloadHash: hash,
				Version: cr.Version, CreatedAt: cr.CreatedAt, UpdatedAt: cr.UpdatedAt,
			}, true
		}
	}
	if r.cfg.OnCacheMiss != nil {
		r.cfg.OnCacheMiss()
	}

	var row *ports.StateRow
	var found bool
	err := r.retry(ctx, "get", func() error {
		var opErr error
		row, found, opErr = r.store.GetState(ctx, sessionID)
		return opErr
	})
	if err != nil || !found {
		return nil, false
	}

	payload, derr := codec.Decode(row.Payload)
	if derr != nil {
		return nil, false
	}
	rec := &StateRecord{
		SessionID: sessionID, Payload: payload, PayloadHash: row.PayloadHash,
		Version: row.Version, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}
	r.writeThrough(ctx, rec)
	return rec, true
}

// Delete is an unconditional, idempotent cache-then-durable delete.
func (r *Repository) Delete(ctx context.Context, sessionID string) error {
	_ = r.cache.Delete(ctx, cacheKey(sessionID))
	err := r.retry(ctx, "delete", func() error {
		return r.store.DeleteState(ctx, sessionID)
	})
	if err != nil {
		r.cfg.Logger.Warn("repository delete failed after retries", "session_id", sessionID, "error", err)
		return err
	}
	return nil
}

// ValidateIntegrity fetches the record and verifies H(canonical(payload))
// == payload_hash, returning false (not an error) on drift or absence.
func (r *Repository) ValidateIntegrity(ctx context.Context, sessionID string) bool {
	rec, ok := r.Get(ctx, sessionID)
	if !ok {
		return false
	}
	hash, err := codec.HashPayload(rec.Payload)
	if err != nil {
		return false
	}
	return hash == rec.PayloadHash
}

// Touch extends the cache TTL only; it performs no durable write.
func (r *Repository) Touch(ctx context.Context, sessionID string, ttlExtension time.Duration) {
	ttl := ttlExtension
	if ttl <= 0 {
		ttl = r.cfg.CacheTTL
	}
	_ = r.cache.Expire(ctx, cacheKey(sessionID), ttl)
}

// SessionExists checks cache presence first, falling back to a single-
// column durable lookup; retry exhaustion is swallowed, returning false.
func (r *Repository) SessionExists(ctx context.Context, sessionID string) bool {
	if ok, err := r.cache.Exists(ctx, cacheKey(sessionID)); err == nil && ok {
		return true
	}
	var exists bool
	err := r.retry(ctx, "session_exists", func() error {
		var opErr error
		exists, opErr = r.store.StateExists(ctx, sessionID)
		return opErr
	})
	if err != nil {
		return false
	}
	return exists
}

// PurgeStale deletes durable rows whose updated_at precedes threshold and
// returns the affected row count; retry exhaustion is swallowed as 0.
func (r *Repository) PurgeStale(ctx context.Context, threshold time.Time) int64 {
	var n int64
	err := r.retry(ctx, "purge_stale", func() error {
		var opErr error
		n, opErr = r.store.PurgeStaleState(ctx, threshold)
		return opErr
	})
	if err != nil {
		return 0
	}
	return n
}

// RecordCacheLatency writes an observability sample to the cache; sink
// errors never fail the caller.
func (r *Repository) RecordCacheLatency(ctx context.Context, sessionID string, latencyMs float64) {
	b, err := json.Marshal(map[string]float64{"latency_ms": latencyMs})
	if err != nil {
		return
	}
	_ = r.cache.SetEX(ctx, latencyKey(sessionID), r.cfg.LatencyTTL, b)
}

func (r *Repository) writeThrough(ctx context.Context, rec *StateRecord) {
	b, err := json.Marshal(cachedRecord{
		Payload: rec.Payload, Hash: rec.PayloadHash, Version: rec.Version,
		CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt,
	})
	if err != nil {
		return
	}
	_ = r.cache.SetEX(ctx, cacheKey(rec.SessionID), r.cfg.CacheTTL, b)
}

// retry applies exponential backoff (doubling from cfg.InitialBackoff)
// up to cfg.MaxRetries attempts, wrapping exhaustion in ErrRepository.
func (r *Repository) retry(ctx context.Context, op string, fn func() error) error {
	delay := r.cfg.InitialBackoff
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxRetries; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt < r.cfg.MaxRetries-1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("%w: %s: %v", ErrRepository, op, ctx.Err())
			}
			delay *= 2
		}
	}
	if r.cfg.OnRepoError != nil {
		r.cfg.OnRepoError(op)
	}
	return fmt.Errorf("%w: %s: %v", ErrRepository, op, lastErr)
}

// backoffForAttempt exposes the exponential schedule for tests, mirroring
// §4.2's "initial delay ~50ms, doubling per attempt" policy.
func backoffForAttempt(initial time.Duration, attempt int) time.Duration {
	return time.Duration(float64(initial) * math.Pow(2, float64(attempt)))
}
