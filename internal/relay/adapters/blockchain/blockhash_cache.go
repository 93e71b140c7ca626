package blockchain

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"
)

var ErrNoBlockReference = errors.New("no current block reference available")

const (
	defaultBlockhashMaxAge     = 2 * time.Second
	defaultBlockhashStaleAfter = 15 * time.Second
)

type CachedBlockhash struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
	Slot                 uint64
	UpdatedAt            time.Time
}

// BlockhashCache serves recent blockhashes. A cached value younger than maxAge
// is returned as is; otherwise the chain is asked. If the chain cannot answer,
// a cached value is only used while younger than staleAfter.
type BlockhashCache struct {
	client     Client
	maxAge     time.Duration
	staleAfter time.Duration
	now        func() time.Time

	mu      sync.RWMutex
	current *CachedBlockhash

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBlockhashCache(client Client, maxAge time.Duration) *BlockhashCache {
	if maxAge <= 0 {
		maxAge = defaultBlockhashMaxAge
	}
	staleAfter := defaultBlockhashStaleAfter
	if staleAfter < maxAge {
		staleAfter = maxAge
	}
	return &BlockhashCache{
		client:     client,
		maxAge:     maxAge,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Start primes the cache and keeps it warm until Stop is called.
func (c *BlockhashCache) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	if _, err := c.refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("[BlockhashCache] failed to fetch initial blockhash, will retry on first request")
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.maxAge)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := c.refresh(ctx); err != nil && ctx.Err() == nil {
					log.Debug().Err(err).Msg("[BlockhashCache] background refresh failed")
				}
			}
		}
	}()
}

func (c *BlockhashCache) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *BlockhashCache) GetBlockhash(ctx context.Context) (solana.Hash, uint64, error) {
	c.mu.RLock()
	cached := c.current
	c.mu.RUnlock()

	now := c.now()
	if cached != nil && now.Sub(cached.UpdatedAt) < c.maxAge {
		return cached.Blockhash, cached.LastValidBlockHeight, nil
	}

	fresh, err := c.refresh(ctx)
	if err != nil {
		if cached != nil && now.Sub(cached.UpdatedAt) < c.staleAfter {
			return cached.Blockhash, cached.LastValidBlockHeight, nil
		}
		return solana.Hash{}, 0, errors.Join(ErrNoBlockReference, err)
	}
	return fresh.Blockhash, fresh.LastValidBlockHeight, nil
}

func (c *BlockhashCache) refresh(ctx context.Context) (*CachedBlockhash, error) {
	ref, err := c.client.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	next := &CachedBlockhash{
		Blockhash:            ref.Blockhash,
		LastValidBlockHeight: ref.LastValidBlockHeight,
		Slot:                 ref.Slot,
		UpdatedAt:            c.now(),
	}

	c.mu.Lock()
	if c.current == nil || next.Slot >= c.current.Slot {
		c.current = next
	}
	c.mu.Unlock()

	return next, nil
}
