package quotecache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/sponsor-relay/internal/domain"
)

var (
	inMint  = solana.SolMint
	outMint = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

func intent(amount uint64) domain.SwapIntent {
	return domain.SwapIntent{InputMint: inMint, OutputMint: outMint, Amount: amount, SlippageBpsMax: 50}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(opts Options) (*Cache, *clock) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	c := New(opts)
	c.now = clk.Now
	return c, clk
}

// countingFetcher returns quotes valid for ttl on clk.
func countingFetcher(clk *clock, ttl time.Duration, calls *atomic.Int32) Fetcher {
	return func(ctx context.Context, in domain.SwapIntent) (*domain.Quote, error) {
		n := calls.Add(1)
		return &domain.Quote{
			InputMint:    in.InputMint,
			OutputMint:   in.OutputMint,
			InputAmount:  in.Amount,
			OutputAmount: uint64(n) * 1_000,
			ValidUntil:   clk.Now().Add(ttl),
		}, nil
	}
}

func TestSequentialLookupsWithinTTLHitCache(t *testing.T) {
	c, clk := newTestCache(Options{})
	var calls atomic.Int32
	fetch := countingFetcher(clk, 10*time.Second, &calls)

	first, err := c.GetOrFetch(context.Background(), intent(100_000_000), fetch)
	if err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	clk.Advance(time.Second)
	second, err := c.GetOrFetch(context.Background(), intent(100_000_000), fetch)
	if err != nil {
		t.Fatalf("second lookup: %v", err)
	}

	if calls.Load() != 1 {
		t.Fatalf("expected 1 fetch, got %d", calls.Load())
	}
	if first.OutputAmount != second.OutputAmount {
		t.Fatalf("expected identical output, got %d and %d", first.OutputAmount, second.OutputAmount)
	}
}

func TestExpiredEntryIsRefetched(t *testing.T) {
	c, clk := newTestCache(Options{})
	var calls atomic.Int32
	fetch := countingFetcher(clk, time.Second, &calls)

	if _, err := c.GetOrFetch(context.Background(), intent(1), fetch); err != nil {
		t.Fatal(err)
	}
	clk.Advance(time.Second)
	if _, ok := c.lookup(c.KeyFor(intent(1))); ok {
		t.Fatal("entry must not be served at ValidUntil")
	}
	if _, err := c.GetOrFetch(context.Background(), intent(1), fetch); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 fetches, got %d", calls.Load())
	}
}

func TestConcurrentIdenticalLookupsCoalesce(t *testing.T) {
	c, clk := newTestCache(Options{})
	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context, in domain.SwapIntent) (*domain.Quote, error) {
		calls.Add(1)
		<-release
		return &domain.Quote{OutputAmount: 42, ValidUntil: clk.Now().Add(time.Minute)}, nil
	}

	const callers = 16
	var wg sync.WaitGroup
	results := make([]*domain.Quote, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.GetOrFetch(context.Background(), intent(5_000), fetch)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected exactly 1 fetch, got %d", calls.Load())
	}
	for i := range callers {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i].OutputAmount != 42 {
			t.Fatalf("caller %d got %d", i, results[i].OutputAmount)
		}
	}
}

func TestFetchErrorIsSharedButNotCached(t *testing.T) {
	c, clk := newTestCache(Options{})
	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context, in domain.SwapIntent) (*domain.Quote, error) {
		if calls.Add(1) == 1 {
			<-release
			return nil, domain.ErrAggregatorUnavailable
		}
		return &domain.Quote{OutputAmount: 7, ValidUntil: clk.Now().Add(time.Minute)}, nil
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.GetOrFetch(context.Background(), intent(9), fetch)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, domain.ErrAggregatorUnavailable) {
			t.Fatalf("caller %d: expected shared error, got %v", i, err)
		}
	}

	quote, err := c.GetOrFetch(context.Background(), intent(9), fetch)
	if err != nil || quote.OutputAmount != 7 {
		t.Fatalf("expected a fresh fetch after the error, got %v %v", quote, err)
	}
}

func TestCallerCancellationDoesNotAbortFetch(t *testing.T) {
	c, clk := newTestCache(Options{})
	release := make(chan struct{})
	var fetchCtxErr atomic.Value
	fetch := func(ctx context.Context, in domain.SwapIntent) (*domain.Quote, error) {
		<-release
		if err := ctx.Err(); err != nil {
			fetchCtxErr.Store(err)
		}
		return &domain.Quote{OutputAmount: 1, ValidUntil: clk.Now().Add(time.Minute)}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	leaderDone := make(chan error, 1)
	go func() {
		_, err := c.GetOrFetch(ctx, intent(3), fetch)
		leaderDone <- err
	}()

	time.Sleep(20 * time.Millisecond)
	followerDone := make(chan error, 1)
	go func() {
		_, err := c.GetOrFetch(context.Background(), intent(3), fetch)
		followerDone <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-leaderDone; !errors.Is(err, context.Canceled) {
		t.Fatalf("leader: expected context.Canceled, got %v", err)
	}

	close(release)
	if err := <-followerDone; err != nil {
		t.Fatalf("follower: %v", err)
	}
	if v := fetchCtxErr.Load(); v != nil {
		t.Fatalf("fetch saw a cancelled context: %v", v)
	}
	if _, ok := c.lookup(c.KeyFor(intent(3))); !ok {
		t.Fatal("expected the quote to be cached")
	}
}

func TestNeverStoresExpiredQuote(t *testing.T) {
	c, clk := newTestCache(Options{})
	fetch := func(ctx context.Context, in domain.SwapIntent) (*domain.Quote, error) {
		return &domain.Quote{OutputAmount: 1, ValidUntil: clk.Now()}, nil
	}
	if _, err := c.GetOrFetch(context.Background(), intent(11), fetch); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Len())
	}
}

func TestMaxEntriesEvictsOldest(t *testing.T) {
	c, clk := newTestCache(Options{MaxEntries: 2})
	var calls atomic.Int32
	fetch := countingFetcher(clk, time.Minute, &calls)

	for _, amount := range []uint64{1, 2, 3} {
		if _, err := c.GetOrFetch(context.Background(), intent(amount), fetch); err != nil {
			t.Fatal(err)
		}
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	if _, ok := c.lookup(c.KeyFor(intent(1))); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	if _, ok := c.lookup(c.KeyFor(intent(3))); !ok {
		t.Fatal("newest entry should be present")
	}
}

func TestKeyRounding(t *testing.T) {
	tests := []struct {
		digits int
		amount uint64
		want   uint64
	}{
		{0, 123_456_789, 123_456_789},
		{3, 123_456_789, 123_000_000},
		{3, 999, 999},
		{3, 1_000, 1_000},
		{3, 1_999, 1_990},
		{20, 18_446_744_073_709_551_615, 18_446_744_073_709_551_615},
	}
	for _, tt := range tests {
		c := New(Options{AmountSigDigits: tt.digits})
		if got := c.KeyFor(intent(tt.amount)).Amount; got != tt.want {
			t.Errorf("digits=%d amount=%d: got %d, want %d", tt.digits, tt.amount, got, tt.want)
		}
	}
}

func TestRoundedKeyFetchesRoundedAmount(t *testing.T) {
	c, clk := newTestCache(Options{AmountSigDigits: 2})
	var seen uint64
	fetch := func(ctx context.Context, in domain.SwapIntent) (*domain.Quote, error) {
		seen = in.Amount
		return &domain.Quote{InputAmount: in.Amount, OutputAmount: 1, ValidUntil: clk.Now().Add(time.Minute)}, nil
	}
	if _, err := c.GetOrFetch(context.Background(), intent(1_234), fetch); err != nil {
		t.Fatal(err)
	}
	if seen != 1_200 {
		t.Fatalf("expected fetch for 1200, got %d", seen)
	}
}
