// Package registry holds built transactions between prepare and submit.
package registry

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/madflojo/tasks"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/sponsor-relay/internal/domain"
	"github.com/hxuan190/sponsor-relay/internal/metrics"
)

const (
	shardCount = 16

	DefaultTTL           = 60 * time.Second
	DefaultSweepInterval = 5 * time.Second

	sweepTaskID = "registry-sweep"
)

// FNV-1a
const (
	fnvOffset32 = 2166136261
	fnvPrime32  = 16777619
)

type entry struct {
	record     domain.UnsignedTransactionRecord
	consumedBy solana.Signature
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type Options struct {
	TTL           time.Duration
	SweepInterval time.Duration
	// Retention keeps a record past ExpiresAt so late submits still see
	// Expired or AlreadyConsumed instead of NotFound. Defaults to TTL.
	Retention time.Duration
}

// Registry maps correlation ids to unsigned transactions. A record can be
// consumed at most once; the sweep drops a record once ExpiresAt plus the
// retention window has passed.
type Registry struct {
	shards        [shardCount]shard
	ttl           time.Duration
	retention     time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	newID         func() string

	scheduler *tasks.Scheduler
}

func New(opts Options) *Registry {
	r := &Registry{
		ttl:           opts.TTL,
		retention:     opts.Retention,
		sweepInterval: opts.SweepInterval,
		now:           time.Now,
		newID:         uuid.NewString,
	}
	if r.ttl <= 0 {
		r.ttl = DefaultTTL
	}
	if r.retention <= 0 {
		r.retention = r.ttl
	}
	if r.sweepInterval <= 0 {
		r.sweepInterval = DefaultSweepInterval
	}
	for i := range r.shards {
		r.shards[i].entries = make(map[string]*entry)
	}
	return r
}

func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// Register stores rec under a fresh correlation id and fills in CorrelationID,
// CreatedAt and ExpiresAt on rec.
func (r *Registry) Register(rec *domain.UnsignedTransactionRecord) string {
	now := r.now()
	rec.CorrelationID = r.newID()
	rec.CreatedAt = now
	rec.ExpiresAt = now.Add(r.ttl)
	rec.Consumed = false

	stored := *rec
	stored.Message = bytes.Clone(rec.Message)

	s := r.shardFor(rec.CorrelationID)
	s.mu.Lock()
	s.entries[rec.CorrelationID] = &entry{record: stored}
	s.mu.Unlock()

	metrics.RegistrySize.Inc()
	return rec.CorrelationID
}

// Consume marks the record as used by sig and returns it. Exactly one of any
// number of concurrent calls for the same id succeeds.
func (r *Registry) Consume(id string, sig solana.Signature) (domain.UnsignedTransactionRecord, error) {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		metrics.RegistryConsumes.WithLabelValues(domain.CodeNotFound.String()).Inc()
		return domain.UnsignedTransactionRecord{}, domain.NewRegistryError(domain.CodeNotFound, id)
	}
	if e.record.Consumed {
		metrics.RegistryConsumes.WithLabelValues(domain.CodeAlreadyConsumed.String()).Inc()
		return domain.UnsignedTransactionRecord{}, domain.NewRegistryError(domain.CodeAlreadyConsumed, id)
	}
	if !r.now().Before(e.record.ExpiresAt) {
		metrics.RegistryConsumes.WithLabelValues(domain.CodeExpired.String()).Inc()
		return domain.UnsignedTransactionRecord{}, domain.NewRegistryError(domain.CodeExpired, id)
	}

	e.record.Consumed = true
	e.consumedBy = sig
	metrics.RegistryConsumes.WithLabelValues("ok").Inc()

	out := e.record
	out.Message = bytes.Clone(e.record.Message)
	return out, nil
}

// Lookup is a read-only view for diagnostics.
func (r *Registry) Lookup(id string) (domain.UnsignedTransactionRecord, bool) {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return domain.UnsignedTransactionRecord{}, false
	}
	out := e.record
	out.Message = bytes.Clone(e.record.Message)
	return out, true
}

func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// Sweep drops every record whose ExpiresAt is more than the retention window
// in the past and returns how many were removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.retention)
	removed, unconsumed := 0, 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for id, e := range s.entries {
			if cutoff.Before(e.record.ExpiresAt) {
				continue
			}
			if !e.record.Consumed {
				unconsumed++
			}
			delete(s.entries, id)
			removed++
		}
		s.mu.Unlock()
	}

	if removed > 0 {
		metrics.RegistrySize.Sub(float64(removed))
		metrics.RegistryExpired.Add(float64(unconsumed))
		log.Debug().Int("removed", removed).Int("never_signed", unconsumed).Msg("[Registry] swept expired records")
	}
	return removed
}

// Start schedules the periodic sweep.
func (r *Registry) Start(ctx context.Context) error {
	r.scheduler = tasks.New()
	return r.scheduler.AddWithID(sweepTaskID, &tasks.Task{
		TaskContext: tasks.TaskContext{Context: ctx},
		Interval:    r.sweepInterval,
		FuncWithTaskContext: func(t tasks.TaskContext) error {
			if t.Context.Err() != nil {
				return nil
			}
			r.Sweep()
			return nil
		},
	})
}

func (r *Registry) Stop() {
	if r.scheduler == nil {
		return
	}
	r.scheduler.Del(sweepTaskID)
	r.scheduler.Stop()
}

func (r *Registry) shardFor(id string) *shard {
	h := uint32(fnvOffset32)
	for i := 0; i < len(id); i++ {
		h ^= uint32(id[i])
		h *= fnvPrime32
	}
	return &r.shards[h%shardCount]
}
