package amm

import (
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquidityCore/internal/ledger"
)

func TestRouterAddLiquidityCreatesPool(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, tokenA, 10_000)
	f.fund(t, alice, tokenB, 10_000)

	amountA, amountB, shares, err := f.router.AddLiquidity(alice, AddLiquidityParams{
		AssetA:         tokenB,
		AssetB:         tokenA,
		AmountADesired: u(4000),
		AmountBDesired: u(1000),
		Recipient:      alice,
		Deadline:       deadline,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(4000), amountA.Uint64())
	require.Equal(t, uint64(1000), amountB.Uint64())
	require.Equal(t, uint64(2000), shares.Uint64())

	pool, ok := f.registry.GetPool(tokenA, tokenB)
	require.True(t, ok)
	r0, r1 := reservesOf(pool)
	require.Equal(t, uint64(1000), r0)
	require.Equal(t, uint64(4000), r1)
	require.Equal(t, uint64(9000), f.balance(tokenA, alice))
	require.Equal(t, uint64(6000), f.balance(tokenB, alice))
	require.Equal(t, uint64(2000), f.balance(pool.Address(), alice))
	require.Equal(t, []string{"PairCreated", "Mint", "Sync"}, f.sink.names())
}

func TestRouterAddLiquidityOptimalAmounts(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, tokenA, 10_000)
	f.fund(t, alice, tokenB, 10_000)
	f.addLiquidity(t, alice, tokenA, tokenB, 1000, 4000)

	amountA, amountB, _, err := f.router.AddLiquidity(alice, AddLiquidityParams{
		AssetA: tokenA, AssetB: tokenB,
		AmountADesired: u(100), AmountBDesired: u(1000),
		Recipient: alice, Deadline: deadline,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(100), amountA.Uint64())
	require.Equal(t, uint64(400), amountB.Uint64())

	amountA, amountB, _, err = f.router.AddLiquidity(alice, AddLiquidityParams{
		AssetA: tokenA, AssetB: tokenB,
		AmountADesired: u(1000), AmountBDesired: u(40),
		Recipient: alice, Deadline: deadline,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(10), amountA.Uint64())
	require.Equal(t, uint64(40), amountB.Uint64())
}

func TestRouterAddLiquiditySlippage(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, tokenA, 10_000)
	f.fund(t, alice, tokenB, 10_000)
	f.addLiquidity(t, alice, tokenA, tokenB, 1000, 4000)
	pool, _ := f.registry.GetPool(tokenA, tokenB)
	f.sink.reset()

	_, _, _, err := f.router.AddLiquidity(alice, AddLiquidityParams{
		AssetA: tokenA, AssetB: tokenB,
		AmountADesired: u(100), AmountBDesired: u(1000),
		AmountBMin: u(500),
		Recipient:  alice, Deadline: deadline,
	})
	require.ErrorIs(t, err, ErrInsufficientBAmount)

	_, _, _, err = f.router.AddLiquidity(alice, AddLiquidityParams{
		AssetA: tokenA, AssetB: tokenB,
		AmountADesired: u(1000), AmountBDesired: u(40),
		AmountAMin: u(20),
		Recipient:  alice, Deadline: deadline,
	})
	require.ErrorIs(t, err, ErrInsufficientAAmount)

	r0, r1 := reservesOf(pool)
	require.Equal(t, uint64(1000), r0)
	require.Equal(t, uint64(4000), r1)
	require.Equal(t, uint64(9000), f.balance(tokenA, alice))
	require.Equal(t, uint64(6000), f.balance(tokenB, alice))
	require.Empty(t, f.sink.names())
}

func TestRouterRejectedAddLeavesNoPool(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, tokenA, 100)
	require.NoError(t, f.ledger.Mint(tokenB, alice, u(100)))

	_, _, _, err := f.router.AddLiquidity(alice, AddLiquidityParams{
		AssetA: tokenA, AssetB: tokenB,
		AmountADesired: u(100), AmountBDesired: u(100),
		Recipient: alice, Deadline: deadline,
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientAllowance)
	require.Equal(t, 0, f.registry.Len())
	require.Equal(t, uint64(100), f.balance(tokenA, alice))

	_, _, _, err = f.router.AddLiquidity(alice, AddLiquidityParams{
		AssetA: tokenA, AssetB: tokenB,
		AmountADesired: u(1000), AmountBDesired: u(100),
		Recipient: alice, Deadline: deadline,
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	require.Equal(t, 0, f.registry.Len())
}

func TestRouterDeadline(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, tokenA, 100)
	f.fund(t, alice, tokenB, 100)
	expired := testNow.Add(-time.Second)

	_, _, _, err := f.router.AddLiquidity(alice, AddLiquidityParams{
		AssetA: tokenA, AssetB: tokenB,
		AmountADesired: u(100), AmountBDesired: u(100),
		Recipient: alice, Deadline: expired,
	})
	require.ErrorIs(t, err, ErrDeadlineExpired)
	require.Equal(t, 0, f.registry.Len())

	_, _, err = f.router.RemoveLiquidity(alice, RemoveLiquidityParams{
		AssetA: tokenA, AssetB: tokenB, Shares: u(1), Recipient: alice, Deadline: expired,
	})
	require.ErrorIs(t, err, ErrDeadlineExpired)

	_, err = f.router.SwapExactTokensForTokens(alice, SwapExactInParams{
		AmountIn: u(10), Path: []common.Address{tokenA, tokenB}, Recipient: alice, Deadline: expired,
	})
	require.ErrorIs(t, err, ErrDeadlineExpired)

	_, err = f.router.SwapTokensForExactTokens(alice, SwapExactOutParams{
		AmountOut: u(10), Path: []common.Address{tokenA, tokenB}, Recipient: alice, Deadline: expired,
	})
	require.ErrorIs(t, err, ErrDeadlineExpired)

	// a deadline equal to now is still valid
	_, _, _, err = f.router.AddLiquidity(alice, AddLiquidityParams{
		AssetA: tokenA, AssetB: tokenB,
		AmountADesired: u(100), AmountBDesired: u(100),
		Recipient: alice, Deadline: testNow,
	})
	require.NoError(t, err)
}

func TestRouterRemoveLiquidity(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, tokenA, 1000)
	f.fund(t, alice, tokenB, 4000)
	shares := f.addLiquidity(t, alice, tokenA, tokenB, 1000, 4000)
	pool, _ := f.registry.GetPool(tokenA, tokenB)

	_, _, err := f.router.RemoveLiquidity(alice, RemoveLiquidityParams{
		AssetA: tokenA, AssetB: tokenC, Shares: shares, Recipient: alice, Deadline: deadline,
	})
	require.ErrorIs(t, err, ErrPoolNotFound)

	_, _, err = f.router.RemoveLiquidity(alice, RemoveLiquidityParams{
		AssetA: tokenB, AssetB: tokenA, Shares: u(500), Recipient: alice, Deadline: deadline,
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientAllowance)

	f.approveShares(t, alice, pool)
	_, _, err = f.router.RemoveLiquidity(alice, RemoveLiquidityParams{
		AssetA: tokenB, AssetB: tokenA, Shares: u(500),
		AmountAMin: u(1001),
		Recipient:  alice, Deadline: deadline,
	})
	require.ErrorIs(t, err, ErrInsufficientAAmount)
	require.Equal(t, shares.Uint64(), f.balance(pool.Address(), alice))

	amountA, amountB, err := f.router.RemoveLiquidity(alice, RemoveLiquidityParams{
		AssetA: tokenB, AssetB: tokenA, Shares: u(500),
		AmountAMin: u(1000), AmountBMin: u(250),
		Recipient: bob, Deadline: deadline,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1000), amountA.Uint64())
	require.Equal(t, uint64(250), amountB.Uint64())
	require.Equal(t, uint64(1000), f.balance(tokenB, bob))
	require.Equal(t, uint64(250), f.balance(tokenA, bob))
	require.Equal(t, uint64(1500), pool.TotalShares().Uint64())
	require.Equal(t, uint64(1500), f.balance(pool.Address(), alice))
	require.Zero(t, f.balance(pool.Address(), pool.Address()))
}

func TestRouterSwapExactIn(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, tokenA, 100_000)
	f.fund(t, alice, tokenB, 100_000)
	f.fund(t, bob, tokenA, 1000)
	f.addLiquidity(t, alice, tokenA, tokenB, 10_000, 20_000)
	pool, _ := f.registry.GetPool(tokenA, tokenB)

	path := []common.Address{tokenA, tokenB}
	quoted, err := f.router.GetAmountsOut(u(1000), path)
	require.NoError(t, err)
	want, err := GetAmountOut(u(1000), u(10_000), u(20_000), DefaultFeeBps)
	require.NoError(t, err)
	require.Equal(t, want, quoted[1])

	_, err = f.router.SwapExactTokensForTokens(bob, SwapExactInParams{
		AmountIn: u(1000), AmountOutMin: new(uint256.Int).AddUint64(want, 1),
		Path: path, Recipient: bob, Deadline: deadline,
	})
	require.ErrorIs(t, err, ErrInsufficientOutputAmount)
	require.Equal(t, uint64(1000), f.balance(tokenA, bob))

	amounts, err := f.router.SwapExactTokensForTokens(bob, SwapExactInParams{
		AmountIn: u(1000), AmountOutMin: want,
		Path: path, Recipient: bob, Deadline: deadline,
	})
	require.NoError(t, err)
	require.Equal(t, quoted, amounts)
	require.Zero(t, f.balance(tokenA, bob))
	require.Equal(t, want.Uint64(), f.balance(tokenB, bob))

	r0, r1 := reservesOf(pool)
	require.Equal(t, uint64(11_000), r0)
	require.Equal(t, 20_000-want.Uint64(), r1)
	require.Equal(t, r0, f.balance(tokenA, pool.Address()))
	require.Equal(t, r1, f.balance(tokenB, pool.Address()))
}

func TestRouterMultiHop(t *testing.T) {
	f := newFixture(t)
	for _, token := range []common.Address{tokenA, tokenB, tokenC} {
		f.fund(t, alice, token, 1_000_000)
	}
	f.fund(t, bob, tokenA, 5000)
	f.addLiquidity(t, alice, tokenA, tokenB, 100_000, 100_000)
	f.addLiquidity(t, alice, tokenB, tokenC, 100_000, 300_000)
	poolAB, _ := f.registry.GetPool(tokenA, tokenB)
	poolBC, _ := f.registry.GetPool(tokenB, tokenC)

	path := []common.Address{tokenA, tokenB, tokenC}
	hop1, err := GetAmountOut(u(5000), u(100_000), u(100_000), DefaultFeeBps)
	require.NoError(t, err)
	hop2, err := GetAmountOut(hop1, u(100_000), u(300_000), DefaultFeeBps)
	require.NoError(t, err)

	amounts, err := f.router.SwapExactTokensForTokens(bob, SwapExactInParams{
		AmountIn: u(5000), AmountOutMin: hop2,
		Path: path, Recipient: bob, Deadline: deadline,
	})
	require.NoError(t, err)
	require.Len(t, amounts, 3)
	require.Equal(t, hop1, amounts[1])
	require.Equal(t, hop2, amounts[2])
	require.Equal(t, hop2.Uint64(), f.balance(tokenC, bob))
	require.Zero(t, f.balance(tokenB, bob))

	// intermediate output went straight into the second pool
	_, rB := reservesOf(poolAB)
	require.Equal(t, 100_000-hop1.Uint64(), rB)
	rB2, rC := reservesOf(poolBC)
	require.Equal(t, 100_000+hop1.Uint64(), rB2)
	require.Equal(t, 300_000-hop2.Uint64(), rC)
}

func TestRouterSwapExactOut(t *testing.T) {
	f := newFixture(t)
	for _, token := range []common.Address{tokenA, tokenB, tokenC} {
		f.fund(t, alice, token, 1_000_000)
	}
	f.fund(t, bob, tokenC, 50_000)
	f.addLiquidity(t, alice, tokenA, tokenB, 100_000, 100_000)
	f.addLiquidity(t, alice, tokenB, tokenC, 100_000, 300_000)

	path := []common.Address{tokenC, tokenB, tokenA}
	required, err := f.router.GetAmountsIn(u(2500), path)
	require.NoError(t, err)

	_, err = f.router.SwapTokensForExactTokens(bob, SwapExactOutParams{
		AmountOut: u(2500), AmountInMax: new(uint256.Int).SubUint64(required[0], 1),
		Path: path, Recipient: bob, Deadline: deadline,
	})
	require.ErrorIs(t, err, ErrExcessiveInputAmount)
	require.Equal(t, uint64(50_000), f.balance(tokenC, bob))

	amounts, err := f.router.SwapTokensForExactTokens(bob, SwapExactOutParams{
		AmountOut: u(2500), AmountInMax: required[0],
		Path: path, Recipient: bob, Deadline: deadline,
	})
	require.NoError(t, err)
	require.Equal(t, required[0], amounts[0])
	require.Equal(t, uint64(2500), amounts[2].Uint64())
	require.Equal(t, uint64(2500), f.balance(tokenA, bob))
	require.Equal(t, 50_000-required[0].Uint64(), f.balance(tokenC, bob))
}

func TestRouterPathValidation(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, tokenA, 10_000)
	f.fund(t, alice, tokenB, 10_000)
	f.addLiquidity(t, alice, tokenA, tokenB, 1000, 1000)

	swap := func(path ...common.Address) error {
		_, err := f.router.SwapExactTokensForTokens(alice, SwapExactInParams{
			AmountIn: u(10), Path: path, Recipient: alice, Deadline: deadline,
		})
		return err
	}
	require.ErrorIs(t, swap(tokenA), ErrInvalidPath)
	require.ErrorIs(t, swap(tokenA, tokenA), ErrIdenticalAssets)
	require.ErrorIs(t, swap(tokenA, tokenC), ErrPoolNotFound)
	require.ErrorIs(t, swap(tokenA, tokenB, tokenC), ErrPoolNotFound)
	require.NoError(t, swap(tokenA, tokenB))

	_, err := f.router.SwapExactTokensForTokens(alice, SwapExactInParams{
		AmountIn: u(10), Path: []common.Address{tokenA, tokenB}, Recipient: tokenA, Deadline: deadline,
	})
	require.ErrorIs(t, err, ErrInvalidRecipient)
}

func TestRouterRepeatedPoolInPath(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, tokenA, 100_000)
	f.fund(t, alice, tokenB, 100_000)
	f.fund(t, bob, tokenA, 1000)
	f.addLiquidity(t, alice, tokenA, tokenB, 50_000, 50_000)
	pool, _ := f.registry.GetPool(tokenA, tokenB)

	amounts, err := f.router.SwapExactTokensForTokens(bob, SwapExactInParams{
		AmountIn: u(1000), Path: []common.Address{tokenA, tokenB, tokenA}, Recipient: bob, Deadline: deadline,
	})
	require.NoError(t, err)
	require.Less(t, amounts[2].Uint64(), uint64(1000))
	require.Equal(t, amounts[2].Uint64(), f.balance(tokenA, bob))

	r0, r1 := reservesOf(pool)
	require.Equal(t, r0, f.balance(tokenA, pool.Address()))
	require.Equal(t, r1, f.balance(tokenB, pool.Address()))
	require.Equal(t, uint64(50_000), r1)
}

func TestRouterExactOutRepeatedPoolKeepsSurplus(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, tokenA, 1000)
	f.fund(t, alice, tokenB, 1000)
	f.fund(t, bob, tokenA, 1000)
	f.addLiquidity(t, alice, tokenA, tokenB, 50, 80)
	pool, _ := f.registry.GetPool(tokenA, tokenB)

	amounts, err := f.router.SwapTokensForExactTokens(bob, SwapExactOutParams{
		AmountOut: u(5), Path: []common.Address{tokenA, tokenB, tokenA}, Recipient: bob, Deadline: deadline,
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{9, 11, 5}, []uint64{amounts[0].Uint64(), amounts[1].Uint64(), amounts[2].Uint64()})
	require.Equal(t, uint64(1000-9+5), f.balance(tokenA, bob))

	require.Equal(t, uint64(54), f.balance(tokenA, pool.Address()))
	require.Equal(t, uint64(80), f.balance(tokenB, pool.Address()))
	r0, r1 := reservesOf(pool)
	if pool.Token0() == tokenA {
		require.Equal(t, [2]uint64{54, 80}, [2]uint64{r0, r1})
	} else {
		require.Equal(t, [2]uint64{80, 54}, [2]uint64{r0, r1})
	}
}

func TestRouterConcurrentReversePaths(t *testing.T) {
	f := newFixture(t)
	for _, token := range []common.Address{tokenA, tokenB, tokenC} {
		f.fund(t, alice, token, 10_000_000)
		f.fund(t, bob, token, 1_000_000)
	}
	f.addLiquidity(t, alice, tokenA, tokenB, 1_000_000, 1_000_000)
	f.addLiquidity(t, alice, tokenB, tokenC, 1_000_000, 1_000_000)

	var wg sync.WaitGroup
	paths := [][]common.Address{{tokenA, tokenB, tokenC}, {tokenC, tokenB, tokenA}}
	errs := make(chan error, 200)
	for i := 0; i < 100; i++ {
		for _, path := range paths {
			wg.Add(1)
			go func(path []common.Address) {
				defer wg.Done()
				_, err := f.router.SwapExactTokensForTokens(bob, SwapExactInParams{
					AmountIn: u(100), Path: path, Recipient: bob, Deadline: deadline,
				})
				errs <- err
			}(path)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	for _, pool := range f.registry.AllPools() {
		r0, r1 := reservesOf(pool)
		assert.Equal(t, r0, f.balance(pool.Token0(), pool.Address()))
		assert.Equal(t, r1, f.balance(pool.Token1(), pool.Address()))
	}
	for _, token := range []common.Address{tokenA, tokenB, tokenC} {
		assert.Equal(t, uint64(11_000_000), f.ledger.TotalSupply(token).Uint64())
	}
}

func TestRouterPositionValue(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, tokenA, 10_000)
	f.fund(t, alice, tokenB, 10_000)
	f.fund(t, bob, tokenA, 10_000)
	f.fund(t, bob, tokenB, 10_000)
	f.addLiquidity(t, alice, tokenA, tokenB, 1000, 4000)
	f.addLiquidity(t, bob, tokenA, tokenB, 500, 2000)

	amountB, amountA, err := f.router.PositionValue(bob, tokenB, tokenA)
	require.NoError(t, err)
	require.Equal(t, uint64(500), amountA.Uint64())
	require.Equal(t, uint64(2000), amountB.Uint64())

	quote, err := f.router.Quote(u(10), tokenA, tokenB)
	require.NoError(t, err)
	require.Equal(t, uint64(40), quote.Uint64())

	_, _, err = f.router.PositionValue(bob, tokenA, tokenC)
	require.ErrorIs(t, err, ErrPoolNotFound)
}

func TestRouterRemoveRestoresAllowanceOnFailure(t *testing.T) {
	mem := ledger.NewMemory()
	l := &failingLedger{Memory: mem, rejectTo: bob}
	registry, err := NewRegistry(DefaultConfig(), l, nil)
	require.NoError(t, err)
	router := NewRouter(registry, nil)
	until := time.Now().Add(time.Hour)

	for _, asset := range []common.Address{tokenA, tokenB} {
		require.NoError(t, mem.Mint(asset, alice, u(100)))
		require.NoError(t, mem.Approve(asset, alice, router.Address(), u(100)))
	}
	_, _, shares, err := router.AddLiquidity(alice, AddLiquidityParams{
		AssetA: tokenA, AssetB: tokenB,
		AmountADesired: u(100), AmountBDesired: u(100),
		Recipient: alice, Deadline: until,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(100), shares.Uint64())

	pool, ok := registry.GetPool(tokenA, tokenB)
	require.True(t, ok)
	require.NoError(t, mem.Approve(pool.Address(), alice, router.Address(), u(50)))

	_, _, err = router.RemoveLiquidity(alice, RemoveLiquidityParams{
		AssetA: tokenA, AssetB: tokenB, Shares: u(30), Recipient: bob, Deadline: until,
	})
	require.ErrorIs(t, err, errRejected)
	require.Equal(t, uint64(50), mem.Allowance(pool.Address(), alice, router.Address()).Uint64())
	require.Equal(t, uint64(100), mem.BalanceOf(pool.Address(), alice).Uint64())
	require.Equal(t, uint64(100), pool.TotalShares().Uint64())
}
