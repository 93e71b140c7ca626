// Package quotecache keeps recently fetched quotes and collapses concurrent
// identical lookups into one aggregator call.
package quotecache

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/singleflight"

	"github.com/hxuan190/sponsor-relay/internal/domain"
	"github.com/hxuan190/sponsor-relay/internal/metrics"
)

const DefaultMaxEntries = 10_000

// Fetcher produces a fresh quote. It receives a context that is not cancelled
// when the caller that triggered the fetch gives up.
type Fetcher func(ctx context.Context, intent domain.SwapIntent) (*domain.Quote, error)

// Key identifies interchangeable quotes.
type Key struct {
	InputMint   solana.PublicKey
	OutputMint  solana.PublicKey
	Amount      uint64
	SlippageBps uint16
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%d:%d", k.InputMint, k.OutputMint, k.Amount, k.SlippageBps)
}

type Options struct {
	MaxEntries int
	// AmountSigDigits keeps that many significant digits of the amount in the
	// key. Zero keys on the exact amount.
	AmountSigDigits int
}

type Cache struct {
	entries   *boundedFIFO[Key, *domain.Quote]
	group     singleflight.Group
	sigDigits int
	now       func() time.Time
}

func New(opts Options) *Cache {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	return &Cache{
		entries:   newBoundedFIFO[Key, *domain.Quote](opts.MaxEntries),
		sigDigits: max(opts.AmountSigDigits, 0),
		now:       time.Now,
	}
}

func (c *Cache) KeyFor(intent domain.SwapIntent) Key {
	return Key{
		InputMint:   intent.InputMint,
		OutputMint:  intent.OutputMint,
		Amount:      roundAmount(intent.Amount, c.sigDigits),
		SlippageBps: intent.SlippageBpsMax,
	}
}

// GetOrFetch returns a live cached quote for intent or fetches one. Concurrent
// callers with the same key share a single fetch and its outcome; errors are
// never cached. A caller whose ctx ends stops waiting, the fetch carries on
// for the others.
func (c *Cache) GetOrFetch(ctx context.Context, intent domain.SwapIntent, fetch Fetcher) (*domain.Quote, error) {
	key := c.KeyFor(intent)
	if quote, ok := c.lookup(key); ok {
		metrics.QuoteCacheHits.Inc()
		return quote, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key.String(), func() (any, error) {
		// a previous leader may have filled the entry while we queued
		if quote, ok := c.lookup(key); ok {
			metrics.QuoteCacheHits.Inc()
			return quote, nil
		}
		metrics.QuoteCacheMisses.Inc()

		quote, err := fetch(detached, intent.WithAmount(key.Amount))
		if err != nil {
			return nil, err
		}
		if !quote.Expired(c.now()) {
			c.entries.Set(key, quote)
			metrics.QuoteCacheSize.Set(float64(c.entries.Size()))
		}
		return quote, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.QuoteCacheCoalesced.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Quote), nil
	}
}

func (c *Cache) Len() int {
	return c.entries.Size()
}

func (c *Cache) lookup(key Key) (*domain.Quote, bool) {
	quote, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if quote.Expired(c.now()) {
		c.entries.DeleteIf(key, func(q *domain.Quote) bool { return q == quote })
		metrics.QuoteCacheSize.Set(float64(c.entries.Size()))
		return nil, false
	}
	return quote, true
}

// roundAmount truncates amount to digits significant digits.
func roundAmount(amount uint64, digits int) uint64 {
	// uint64 has at most 20 decimal digits
	if digits <= 0 || digits >= 20 {
		return amount
	}
	limit := uint64(1)
	for range digits {
		limit *= 10
	}
	scale := uint64(1)
	for v := amount; v >= limit; v /= 10 {
		scale *= 10
	}
	return amount / scale * scale
}
