package amm

import (
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"liquidityCore/internal/ledger"
)

func TestRegistryGetOrCreateIsIdempotent(t *testing.T) {
	f := newFixture(t)

	_, ok := f.registry.GetPool(tokenA, tokenB)
	require.False(t, ok)

	p1, err := f.registry.GetOrCreatePool(tokenA, tokenB)
	require.NoError(t, err)
	p2, err := f.registry.GetOrCreatePool(tokenB, tokenA)
	require.NoError(t, err)
	require.Same(t, p1, p2)

	got, ok := f.registry.GetPool(tokenB, tokenA)
	require.True(t, ok)
	require.Same(t, p1, got)
	require.Equal(t, 1, f.registry.Len())
	require.Equal(t, PoolAddress(f.registry.Address(), tokenA, tokenB), p1.Address())

	r0, r1 := reservesOf(p1)
	require.Zero(t, r0)
	require.Zero(t, r1)
	require.True(t, p1.TotalShares().IsZero())
}

func TestRegistryRejectsBadPairs(t *testing.T) {
	f := newFixture(t)

	_, err := f.registry.GetOrCreatePool(tokenA, tokenA)
	require.ErrorIs(t, err, ErrIdenticalAssets)
	_, err = f.registry.GetOrCreatePool(common.Address{}, tokenA)
	require.ErrorIs(t, err, ErrZeroAddress)
	_, ok := f.registry.GetPool(tokenA, tokenA)
	require.False(t, ok)
	require.Zero(t, f.registry.Len())
}

func TestRegistryConcurrentCreate(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	pools := make([]*Pool, 64)
	for i := range pools {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := tokenA, tokenB
			if i%2 == 1 {
				a, b = b, a
			}
			p, err := f.registry.GetOrCreatePool(a, b)
			if err == nil {
				pools[i] = p
			}
		}(i)
	}
	wg.Wait()

	for _, p := range pools {
		require.Same(t, pools[0], p)
	}
	require.Equal(t, []string{"PairCreated"}, f.sink.names())
}

func TestRegistryAllPoolsOrder(t *testing.T) {
	f := newFixture(t)
	pairs := [][2]common.Address{{tokenB, tokenC}, {tokenA, tokenB}, {tokenA, tokenC}}
	for _, pair := range pairs {
		_, err := f.registry.GetOrCreatePool(pair[0], pair[1])
		require.NoError(t, err)
	}

	all := f.registry.AllPools()
	require.Len(t, all, 3)
	require.Equal(t, tokenB, all[0].Token0())
	require.Equal(t, tokenA, all[1].Token0())
	require.Equal(t, tokenC, all[2].Token1())

	created := f.sink.events[2].(PairCreatedEvent)
	require.Equal(t, uint64(3), created.Index)
	require.Equal(t, all[2].Address(), created.Pool)
	require.Equal(t, uint64(DefaultFeeBps), created.FeeBps)
}

func TestPoolAddressDependsOnRegistry(t *testing.T) {
	other := common.HexToAddress("0x0000000000000000000000000000000000000bee")
	require.NotEqual(t,
		PoolAddress(DefaultConfig().Address, tokenA, tokenB),
		PoolAddress(other, tokenA, tokenB),
	)
}

func TestNewRegistryValidatesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FeeBps = FeeDenominator
	_, err := NewRegistry(cfg, ledger.NewMemory(), nil)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewRegistry(DefaultConfig(), nil, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRegistryRejectsOccupiedPoolAddress(t *testing.T) {
	f := newFixture(t)
	address := PoolAddress(f.registry.Address(), tokenA, tokenB)
	require.NoError(t, f.ledger.Mint(address, alice, u(5)))

	_, err := f.registry.GetOrCreatePool(tokenB, tokenA)
	require.ErrorIs(t, err, ErrPoolAddressInUse)
	require.Zero(t, f.registry.Len())
	require.Empty(t, f.sink.names())

	_, err = f.registry.GetOrCreatePool(tokenA, tokenC)
	require.NoError(t, err)
}
