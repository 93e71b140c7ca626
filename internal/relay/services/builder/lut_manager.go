package builder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	addresslookuptable "github.com/gagliardetto/solana-go/programs/address-lookup-table"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hxuan190/sponsor-relay/internal/metrics"
	"github.com/hxuan190/sponsor-relay/internal/relay/adapters/blockchain"
)

var (
	ErrLookupTableInactive = errors.New("address lookup table is deactivated")
	ErrLookupTableMissing  = errors.New("address lookup table not found")
)

const (
	defaultLUTRefreshInterval = 5 * time.Minute
	defaultLUTTTL             = 2 * time.Minute
	maxLUTFetchConcurrency    = 4
)

type lutEntry struct {
	addresses solana.PublicKeySlice
	fetchedAt time.Time
}

// LUTManager resolves address lookup tables for v0 transactions. Statically
// configured tables are loaded at start and refreshed in the background; tables
// named by a route are fetched on demand and cached for a short TTL.
type LUTManager struct {
	chain        blockchain.Client
	lutAddresses []solana.PublicKey
	static       atomic.Value // map[solana.PublicKey]solana.PublicKeySlice
	interval     time.Duration
	ttl          time.Duration
	now          func() time.Time

	mu      sync.RWMutex
	dynamic map[solana.PublicKey]lutEntry

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewLUTManager(chain blockchain.Client, lutAddresses []solana.PublicKey, refreshInterval time.Duration) *LUTManager {
	if refreshInterval <= 0 {
		refreshInterval = defaultLUTRefreshInterval
	}
	m := &LUTManager{
		chain:        chain,
		lutAddresses: lutAddresses,
		interval:     refreshInterval,
		ttl:          defaultLUTTTL,
		now:          time.Now,
		dynamic:      make(map[solana.PublicKey]lutEntry),
	}
	m.static.Store(make(map[solana.PublicKey]solana.PublicKeySlice))
	return m
}

// Start fetches the static tables immediately, then refreshes them in the
// background until Stop.
func (m *LUTManager) Start(ctx context.Context) {
	if len(m.lutAddresses) == 0 {
		log.Info().Msg("[LUTManager] no static lookup tables configured")
		return
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.refresh(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.refresh(ctx)
			}
		}
	}()
}

func (m *LUTManager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// GetAddressTables returns the static tables.
func (m *LUTManager) GetAddressTables() map[solana.PublicKey]solana.PublicKeySlice {
	return m.static.Load().(map[solana.PublicKey]solana.PublicKeySlice)
}

// Resolve returns the contents of every table in addresses plus the static
// tables. Any table that cannot be fetched or is deactivated fails the call.
func (m *LUTManager) Resolve(ctx context.Context, addresses []solana.PublicKey) (map[solana.PublicKey]solana.PublicKeySlice, error) {
	static := m.GetAddressTables()
	out := make(map[solana.PublicKey]solana.PublicKeySlice, len(static)+len(addresses))
	for k, v := range static {
		out[k] = v
	}

	var missing []solana.PublicKey
	now := m.now()
	m.mu.RLock()
	for _, addr := range addresses {
		if _, ok := out[addr]; ok {
			continue
		}
		if e, ok := m.dynamic[addr]; ok && now.Sub(e.fetchedAt) < m.ttl {
			out[addr] = e.addresses
			continue
		}
		missing = append(missing, addr)
	}
	m.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}

	fetched := make([]solana.PublicKeySlice, len(missing))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxLUTFetchConcurrency)
	for i, addr := range missing {
		g.Go(func() error {
			addrs, err := m.fetch(gctx, addr)
			if err != nil {
				return fmt.Errorf("lookup table %s: %w", addr, err)
			}
			fetched[i] = addrs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	for i, addr := range missing {
		m.dynamic[addr] = lutEntry{addresses: fetched[i], fetchedAt: now}
		out[addr] = fetched[i]
	}
	metrics.LookupTableCacheSize.Set(float64(len(m.dynamic)))
	m.mu.Unlock()

	return out, nil
}

func (m *LUTManager) fetch(ctx context.Context, addr solana.PublicKey) (solana.PublicKeySlice, error) {
	acc, err := m.chain.GetAccount(ctx, addr)
	if err != nil {
		if errors.Is(err, blockchain.ErrAccountNotFound) {
			return nil, ErrLookupTableMissing
		}
		return nil, err
	}
	state, err := addresslookuptable.DecodeAddressLookupTableState(acc.Data)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if !state.IsActive() {
		return nil, ErrLookupTableInactive
	}
	return state.Addresses, nil
}

func (m *LUTManager) refresh(ctx context.Context) {
	tables := make(map[solana.PublicKey]solana.PublicKeySlice, len(m.lutAddresses))

	for _, addr := range m.lutAddresses {
		addrs, err := m.fetch(ctx, addr)
		if err != nil {
			log.Warn().Err(err).Str("lut", addr.String()).Msg("[LUTManager] failed to load lookup table, skipping")
			continue
		}
		tables[addr] = addrs
	}

	m.static.Store(tables)
	log.Info().Int("tables", len(tables)).Msg("[LUTManager] refresh complete")
}
