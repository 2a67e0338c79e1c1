package amm

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"liquidityCore/internal/ledger"
)

var (
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	tokenC = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	alice  = common.HexToAddress("0x0000000000000000000000000000000000a11ce0")
	bob    = common.HexToAddress("0x00000000000000000000000000000000000b0b00")

	testNow  = time.Unix(1_700_000_000, 0).UTC()
	deadline = testNow.Add(time.Hour)
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.EventName())
	}
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

type fixture struct {
	ledger   *ledger.Memory
	registry *Registry
	router   *Router
	sink     *recordingSink
}

func newFixture(t require.TestingT, opts ...func(*Config)) *fixture {
	l := ledger.NewMemory()
	sink := &recordingSink{}
	cfg := DefaultConfig()
	cfg.Sink = sink
	cfg.Clock = func() time.Time { return testNow }
	for _, opt := range opts {
		opt(&cfg)
	}
	registry, err := NewRegistry(cfg, l, nil)
	require.NoError(t, err)
	return &fixture{
		ledger:   l,
		registry: registry,
		router:   NewRouter(registry, nil),
		sink:     sink,
	}
}

// fund mints amount of asset to account and approves the router for all of it.
func (f *fixture) fund(t require.TestingT, account, asset common.Address, amount uint64) {
	require.NoError(t, f.ledger.Mint(asset, account, u(amount)))
	require.NoError(t, f.ledger.Approve(asset, account, f.router.Address(), new(uint256.Int).SetAllOne()))
}

func (f *fixture) approveShares(t require.TestingT, account common.Address, pool *Pool) {
	require.NoError(t, f.ledger.Approve(pool.Address(), account, f.router.Address(), new(uint256.Int).SetAllOne()))
}

func (f *fixture) addLiquidity(t require.TestingT, account, assetA, assetB common.Address, amountA, amountB uint64) *uint256.Int {
	_, _, shares, err := f.router.AddLiquidity(account, AddLiquidityParams{
		AssetA:         assetA,
		AssetB:         assetB,
		AmountADesired: u(amountA),
		AmountBDesired: u(amountB),
		Recipient:      account,
		Deadline:       deadline,
	})
	require.NoError(t, err)
	return shares
}

func (f *fixture) balance(asset, account common.Address) uint64 {
	return f.ledger.BalanceOf(asset, account).Uint64()
}

// deposit moves assets straight into a pool's ledger balance.
func (f *fixture) deposit(t require.TestingT, pool *Pool, asset common.Address, amount uint64) {
	require.NoError(t, f.ledger.Mint(asset, pool.Address(), u(amount)))
}

func reservesOf(p *Pool) (uint64, uint64) {
	r0, r1, _ := p.Reserves()
	return r0.Uint64(), r1.Uint64()
}
