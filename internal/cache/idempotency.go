package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultIdempotencyPrefix = "intake:idempotency:"

const (
	markerPending = "pending"
	markerDone    = "done"
)

// Reservation is the outcome of claiming an Idempotency-Key
type Reservation int

const (
	// Reserved means the caller owns the key and must Complete or Release it
	Reserved Reservation = iota
	// InFlight means another request holds the key and has not finished
	InFlight
	// Completed means an earlier request with the key succeeded
	Completed
)

func (r Reservation) String() string {
	switch r {
	case Reserved:
		return "reserved"
	case InFlight:
		return "in_flight"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

type localEntry struct {
	expiresAt time.Time
	done      bool
}

// IdempotencyStore remembers recently accepted Idempotency-Key values.
// A key is pending while its request runs and done once it succeeded.
// Redis is used when available; otherwise keys live in process memory.
type IdempotencyStore struct {
	redisClient *redis.Client
	ttl         time.Duration
	prefix      string
	logger      *logrus.Entry

	// In-memory fallback when Redis is unavailable
	local   map[string]localEntry
	localMu sync.Mutex
	now     func() time.Time
}

// NewIdempotencyStore creates a store. redisClient may be nil.
func NewIdempotencyStore(redisClient *redis.Client, ttl time.Duration, logger *logrus.Logger) *IdempotencyStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &IdempotencyStore{
		redisClient: redisClient,
		ttl:         ttl,
		prefix:      defaultIdempotencyPrefix,
		logger:      logger.WithField("component", "idempotency_store"),
		local:       make(map[string]localEntry),
		now:         time.Now,
	}
}

// Reserve claims key as pending for the TTL, or reports who already holds it
func (s *IdempotencyStore) Reserve(ctx context.Context, key string) (Reservation, error) {
	if s.redisClient != nil {
		state, err := s.reserveRedis(ctx, s.prefix+key)
		if err == nil {
			return state, nil
		}
		s.logger.WithError(err).Warn("Redis reservation failed, using local fallback")
	}

	s.localMu.Lock()
	defer s.localMu.Unlock()

	if entry, exists := s.local[key]; exists && s.now().Before(entry.expiresAt) {
		if entry.done {
			return Completed, nil
		}
		return InFlight, nil
	}
	s.local[key] = localEntry{expiresAt: s.now().Add(s.ttl)}
	return Reserved, nil
}

func (s *IdempotencyStore) reserveRedis(ctx context.Context, key string) (Reservation, error) {
	ok, err := s.redisClient.SetNX(ctx, key, markerPending, s.ttl).Result()
	if err != nil {
		return Reserved, err
	}
	if ok {
		return Reserved, nil
	}

	marker, err := s.redisClient.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET
		return InFlight, nil
	}
	if err != nil {
		return Reserved, err
	}
	if marker == markerDone {
		return Completed, nil
	}
	return InFlight, nil
}

// Complete marks key as done so later requests with it are replays
func (s *IdempotencyStore) Complete(ctx context.Context, key string) {
	if s.redisClient != nil {
		if err := s.redisClient.Set(ctx, s.prefix+key, markerDone, s.ttl).Err(); err != nil {
			s.logger.WithError(err).Warn("Redis SET failed")
		}
	}

	s.localMu.Lock()
	defer s.localMu.Unlock()
	if _, exists := s.local[key]; exists || s.redisClient == nil {
		s.local[key] = localEntry{expiresAt: s.now().Add(s.ttl), done: true}
	}
}

// Release frees key so a failed submission can be retried with it
func (s *IdempotencyStore) Release(ctx context.Context, key string) {
	if s.redisClient != nil {
		if err := s.redisClient.Del(ctx, s.prefix+key).Err(); err != nil {
			s.logger.WithError(err).Warn("Redis DEL failed")
		}
	}

	s.localMu.Lock()
	delete(s.local, key)
	s.localMu.Unlock()
}

// Sweep drops expired in-memory keys and returns how many were removed
func (s *IdempotencyStore) Sweep() int {
	s.localMu.Lock()
	defer s.localMu.Unlock()

	removed := 0
	now := s.now()
	for key, entry := range s.local {
		if !now.Before(entry.expiresAt) {
			delete(s.local, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of in-memory keys
func (s *IdempotencyStore) Len() int {
	s.localMu.Lock()
	defer s.localMu.Unlock()
	return len(s.local)
}
