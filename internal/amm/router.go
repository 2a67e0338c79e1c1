package amm

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityCore/internal/ledger"
)

// Router adds and removes liquidity and routes swaps through the pools of a
// registry. Callers approve the router's Address as spender on the ledger.
//
// Every operation validates and prices against the locked pools before the
// first ledger movement, so a failure leaves balances and reserves as they
// were.
type Router struct {
	registry *Registry
	ledger   ledger.Ledger
	address  common.Address
	clock    func() time.Time
	logger   *zap.Logger
}

type AddLiquidityParams struct {
	AssetA         common.Address
	AssetB         common.Address
	AmountADesired *uint256.Int
	AmountBDesired *uint256.Int
	AmountAMin     *uint256.Int
	AmountBMin     *uint256.Int
	Recipient      common.Address
	Deadline       time.Time
}

type RemoveLiquidityParams struct {
	AssetA     common.Address
	AssetB     common.Address
	Shares     *uint256.Int
	AmountAMin *uint256.Int
	AmountBMin *uint256.Int
	Recipient  common.Address
	Deadline   time.Time
}

type SwapExactInParams struct {
	AmountIn     *uint256.Int
	AmountOutMin *uint256.Int
	Path         []common.Address
	Recipient    common.Address
	Deadline     time.Time
}

type SwapExactOutParams struct {
	AmountOut   *uint256.Int
	AmountInMax *uint256.Int
	Path        []common.Address
	Recipient   common.Address
	Deadline    time.Time
}

func NewRouter(registry *Registry, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		registry: registry,
		ledger:   registry.ledger,
		address:  crypto.CreateAddress(registry.Address(), 1),
		clock:    registry.cfg.clock(),
		logger:   logger,
	}
}

// Address is the spender account callers approve.
func (r *Router) Address() common.Address { return r.address }

func (r *Router) Registry() *Registry { return r.registry }

type addPlan struct {
	amountA *uint256.Int
	amountB *uint256.Int
	amount0 *uint256.Int
	amount1 *uint256.Int
}

// AddLiquidity deposits amounts of assetA and assetB at the pool's current
// ratio, creating the pool if needed, and mints shares to p.Recipient.
func (r *Router) AddLiquidity(sender common.Address, p AddLiquidityParams) (amountA, amountB, shares *uint256.Int, err error) {
	if err := r.checkDeadline(p.Deadline); err != nil {
		return nil, nil, nil, err
	}
	token0, token1, err := SortAssets(p.AssetA, p.AssetB)
	if err != nil {
		return nil, nil, nil, err
	}

	pool, ok := r.registry.GetPool(token0, token1)
	if !ok {
		// dry run against a detached empty pool so a rejected deposit registers nothing
		if _, err := r.planAdd(sender, r.registry.emptyPool(token0, token1), p); err != nil {
			return nil, nil, nil, err
		}
		if pool, err = r.registry.GetOrCreatePool(token0, token1); err != nil {
			return nil, nil, nil, err
		}
	}

	unlock := lockPools([]*Pool{pool})
	defer unlock()

	plan, err := r.planAdd(sender, pool, p)
	if err != nil {
		return nil, nil, nil, err
	}

	tx := newTxn(r.ledger)
	if err := tx.transferFrom(p.AssetA, sender, r.address, pool.address, plan.amountA); err != nil {
		return nil, nil, nil, tx.abort(fmt.Errorf("deposit %s: %w", p.AssetA.Hex(), err))
	}
	if err := tx.transferFrom(p.AssetB, sender, r.address, pool.address, plan.amountB); err != nil {
		return nil, nil, nil, tx.abort(fmt.Errorf("deposit %s: %w", p.AssetB.Hex(), err))
	}
	shares, err = pool.mintLocked(tx, plan.amount0, plan.amount1, p.Recipient)
	if err != nil {
		return nil, nil, nil, tx.abort(err)
	}
	tx.commit(r.registry.cfg.sink())

	r.logger.Debug("add liquidity",
		zap.String("pool", pool.address.Hex()),
		zap.String("sender", sender.Hex()),
		zap.String("amount_a", plan.amountA.Dec()),
		zap.String("amount_b", plan.amountB.Dec()),
		zap.String("shares", shares.Dec()),
	)
	return plan.amountA, plan.amountB, shares, nil
}

// planAdd prices a deposit against a locked pool and checks the sender can
// fund it.
func (r *Router) planAdd(sender common.Address, pool *Pool, p AddLiquidityParams) (addPlan, error) {
	if p.Recipient == (common.Address{}) {
		return addPlan{}, fmt.Errorf("%w: recipient", ErrZeroAddress)
	}
	reserveA, reserveB := pool.reserve0, pool.reserve1
	if p.AssetA != pool.token0 {
		reserveA, reserveB = reserveB, reserveA
	}
	amountA, amountB, err := optimalAmounts(orZero(p.AmountADesired), orZero(p.AmountBDesired), reserveA, reserveB)
	if err != nil {
		return addPlan{}, err
	}
	if amountA.Lt(orZero(p.AmountAMin)) {
		return addPlan{}, fmt.Errorf("%w: %s below minimum %s", ErrInsufficientAAmount, amountA.Dec(), p.AmountAMin.Dec())
	}
	if amountB.Lt(orZero(p.AmountBMin)) {
		return addPlan{}, fmt.Errorf("%w: %s below minimum %s", ErrInsufficientBAmount, amountB.Dec(), p.AmountBMin.Dec())
	}

	plan := addPlan{amountA: amountA, amountB: amountB, amount0: amountA, amount1: amountB}
	if p.AssetA != pool.token0 {
		plan.amount0, plan.amount1 = amountB, amountA
	}
	if _, _, err := pool.previewMint(plan.amount0, plan.amount1); err != nil {
		return addPlan{}, err
	}
	if err := r.checkFunds(p.AssetA, sender, amountA); err != nil {
		return addPlan{}, err
	}
	if err := r.checkFunds(p.AssetB, sender, amountB); err != nil {
		return addPlan{}, err
	}
	return plan, nil
}

// optimalAmounts takes the desired amounts as-is for an empty pool and
// otherwise scales one side down to the reserve ratio.
func optimalAmounts(desiredA, desiredB, reserveA, reserveB *uint256.Int) (amountA, amountB *uint256.Int, err error) {
	if reserveA.IsZero() && reserveB.IsZero() {
		return desiredA.Clone(), desiredB.Clone(), nil
	}
	optimalB, err := Quote(desiredA, reserveA, reserveB)
	if err != nil {
		return nil, nil, err
	}
	if !optimalB.Gt(desiredB) {
		return desiredA.Clone(), optimalB, nil
	}
	optimalA, err := Quote(desiredB, reserveB, reserveA)
	if err != nil {
		return nil, nil, err
	}
	if optimalA.Gt(desiredA) {
		return nil, nil, fmt.Errorf("%w: optimal %s exceeds desired %s", ErrInsufficientAAmount, optimalA.Dec(), desiredA.Dec())
	}
	return optimalA, desiredB.Clone(), nil
}

// RemoveLiquidity redeems p.Shares of the sender's pool shares for both
// assets, paid to p.Recipient.
func (r *Router) RemoveLiquidity(sender common.Address, p RemoveLiquidityParams) (amountA, amountB *uint256.Int, err error) {
	if err := r.checkDeadline(p.Deadline); err != nil {
		return nil, nil, err
	}
	if _, _, err := SortAssets(p.AssetA, p.AssetB); err != nil {
		return nil, nil, err
	}
	pool, ok := r.registry.GetPool(p.AssetA, p.AssetB)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s/%s", ErrPoolNotFound, p.AssetA.Hex(), p.AssetB.Hex())
	}

	unlock := lockPools([]*Pool{pool})
	defer unlock()

	shares := orZero(p.Shares)
	amount0, amount1, err := pool.previewBurn(shares)
	if err != nil {
		return nil, nil, err
	}
	amountA, amountB = amount0, amount1
	if p.AssetA != pool.token0 {
		amountA, amountB = amount1, amount0
	}
	if amountA.Lt(orZero(p.AmountAMin)) {
		return nil, nil, fmt.Errorf("%w: %s below minimum %s", ErrInsufficientAAmount, amountA.Dec(), p.AmountAMin.Dec())
	}
	if amountB.Lt(orZero(p.AmountBMin)) {
		return nil, nil, fmt.Errorf("%w: %s below minimum %s", ErrInsufficientBAmount, amountB.Dec(), p.AmountBMin.Dec())
	}
	if err := pool.checkRecipient(p.Recipient); err != nil {
		return nil, nil, err
	}
	if err := r.checkFunds(pool.address, sender, shares); err != nil {
		return nil, nil, err
	}

	tx := newTxn(r.ledger)
	if err := tx.transferFrom(pool.address, sender, r.address, pool.address, shares); err != nil {
		return nil, nil, tx.abort(fmt.Errorf("deposit shares: %w", err))
	}
	if _, _, err := pool.burnLocked(tx, shares, p.Recipient); err != nil {
		return nil, nil, tx.abort(err)
	}
	tx.commit(r.registry.cfg.sink())

	r.logger.Debug("remove liquidity",
		zap.String("pool", pool.address.Hex()),
		zap.String("sender", sender.Hex()),
		zap.String("shares", shares.Dec()),
		zap.String("amount_a", amountA.Dec()),
		zap.String("amount_b", amountB.Dec()),
	)
	return amountA, amountB, nil
}

// SwapExactTokensForTokens sells exactly p.AmountIn of p.Path[0] along the
// path and returns the amount produced at every hop.
func (r *Router) SwapExactTokensForTokens(sender common.Address, p SwapExactInParams) ([]*uint256.Int, error) {
	if err := r.checkDeadline(p.Deadline); err != nil {
		return nil, err
	}
	pools, err := r.resolvePath(p.Path)
	if err != nil {
		return nil, err
	}

	unlock := lockPools(pools)
	defer unlock()

	amounts, err := simulateOut(pools, p.Path, orZero(p.AmountIn))
	if err != nil {
		return nil, err
	}
	if last := amounts[len(amounts)-1]; last.Lt(orZero(p.AmountOutMin)) {
		return nil, fmt.Errorf("%w: out %s below minimum %s", ErrInsufficientOutputAmount, last.Dec(), p.AmountOutMin.Dec())
	}
	return r.executeSwaps(sender, pools, p.Path, amounts, p.Recipient)
}

// SwapTokensForExactTokens buys exactly p.AmountOut of the last path asset
// for the smallest input that produces it. When a pool repeats in the path
// the forward pass can produce more than requested; the surplus stays in the
// last pool.
func (r *Router) SwapTokensForExactTokens(sender common.Address, p SwapExactOutParams) ([]*uint256.Int, error) {
	if err := r.checkDeadline(p.Deadline); err != nil {
		return nil, err
	}
	pools, err := r.resolvePath(p.Path)
	if err != nil {
		return nil, err
	}

	unlock := lockPools(pools)
	defer unlock()

	want := orZero(p.AmountOut)
	required, err := amountsIn(pools, p.Path, want)
	if err != nil {
		return nil, err
	}
	if p.AmountInMax != nil && required[0].Gt(p.AmountInMax) {
		return nil, fmt.Errorf("%w: need %s, maximum %s", ErrExcessiveInputAmount, required[0].Dec(), p.AmountInMax.Dec())
	}
	// re-price forward so executed amounts are exact even when a pool repeats
	amounts, err := simulateOut(pools, p.Path, required[0])
	if err != nil {
		return nil, err
	}
	if last := amounts[len(amounts)-1]; last.Lt(want) {
		return nil, fmt.Errorf("%w: out %s below requested %s", ErrInsufficientOutputAmount, last.Dec(), want.Dec())
	}
	amounts[len(amounts)-1] = want.Clone()
	return r.executeSwaps(sender, pools, p.Path, amounts, p.Recipient)
}

// executeSwaps moves amounts[0] into the first pool and swaps hop by hop,
// each output going straight to the next pool. Every hop pays exactly
// amounts[i+1]. Pools must be locked and amounts must come from simulateOut
// under the same locks, with the last entry at most the simulated output.
func (r *Router) executeSwaps(sender common.Address, pools []*Pool, path []common.Address, amounts []*uint256.Int, recipient common.Address) ([]*uint256.Int, error) {
	for i, pool := range pools {
		if err := pool.checkRecipient(hopRecipient(pools, i, recipient)); err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
	}
	if err := r.checkFunds(path[0], sender, amounts[0]); err != nil {
		return nil, err
	}

	tx := newTxn(r.ledger)
	if err := tx.transferFrom(path[0], sender, r.address, pools[0].address, amounts[0]); err != nil {
		return nil, tx.abort(fmt.Errorf("deposit %s: %w", path[0].Hex(), err))
	}
	for i, pool := range pools {
		if _, err := pool.swapLocked(tx, path[i], amounts[i], amounts[i+1], amounts[i+1], hopRecipient(pools, i, recipient)); err != nil {
			return nil, tx.abort(fmt.Errorf("hop %d: %w", i, err))
		}
	}
	tx.commit(r.registry.cfg.sink())

	r.logger.Debug("swap",
		zap.String("sender", sender.Hex()),
		zap.Int("hops", len(pools)),
		zap.String("amount_in", amounts[0].Dec()),
		zap.String("amount_out", amounts[len(amounts)-1].Dec()),
	)
	return amounts, nil
}

func hopRecipient(pools []*Pool, i int, recipient common.Address) common.Address {
	if i < len(pools)-1 {
		return pools[i+1].address
	}
	return recipient
}

// GetAmountsOut prices amountIn along path without executing anything.
func (r *Router) GetAmountsOut(amountIn *uint256.Int, path []common.Address) ([]*uint256.Int, error) {
	pools, err := r.resolvePath(path)
	if err != nil {
		return nil, err
	}
	unlock := lockPools(pools)
	defer unlock()
	return simulateOut(pools, path, orZero(amountIn))
}

// GetAmountsIn returns the inputs each hop needs to produce amountOut at the
// end of path, priced against current reserves.
func (r *Router) GetAmountsIn(amountOut *uint256.Int, path []common.Address) ([]*uint256.Int, error) {
	pools, err := r.resolvePath(path)
	if err != nil {
		return nil, err
	}
	unlock := lockPools(pools)
	defer unlock()
	return amountsIn(pools, path, orZero(amountOut))
}

// Quote converts amountA of assetA into assetB at the pool's reserve ratio.
func (r *Router) Quote(amountA *uint256.Int, assetA, assetB common.Address) (*uint256.Int, error) {
	pool, ok := r.registry.GetPool(assetA, assetB)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrPoolNotFound, assetA.Hex(), assetB.Hex())
	}
	reserve0, reserve1, _ := pool.Reserves()
	if assetA != pool.token0 {
		reserve0, reserve1 = reserve1, reserve0
	}
	return Quote(orZero(amountA), reserve0, reserve1)
}

// PositionValue returns the assets owner's pool shares currently redeem for.
func (r *Router) PositionValue(owner, assetA, assetB common.Address) (amountA, amountB *uint256.Int, err error) {
	pool, ok := r.registry.GetPool(assetA, assetB)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s/%s", ErrPoolNotFound, assetA.Hex(), assetB.Hex())
	}
	unlock := lockPools([]*Pool{pool})
	defer unlock()

	shares := r.ledger.BalanceOf(pool.address, owner)
	if shares.IsZero() || pool.totalShares.IsZero() {
		return new(uint256.Int), new(uint256.Int), nil
	}
	amount0, err := mulDiv(shares, pool.reserve0, pool.totalShares)
	if err != nil {
		return nil, nil, err
	}
	amount1, err := mulDiv(shares, pool.reserve1, pool.totalShares)
	if err != nil {
		return nil, nil, err
	}
	if assetA != pool.token0 {
		return amount1, amount0, nil
	}
	return amount0, amount1, nil
}

// resolvePath maps each consecutive asset pair of path to its pool.
func (r *Router) resolvePath(path []common.Address) ([]*Pool, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("%w: %d assets", ErrInvalidPath, len(path))
	}
	pools := make([]*Pool, len(path)-1)
	for i := range pools {
		if path[i] == path[i+1] {
			return nil, fmt.Errorf("hop %d: %w: %s", i, ErrIdenticalAssets, path[i].Hex())
		}
		pool, ok := r.registry.GetPool(path[i], path[i+1])
		if !ok {
			return nil, fmt.Errorf("hop %d: %w: %s/%s", i, ErrPoolNotFound, path[i].Hex(), path[i+1].Hex())
		}
		pools[i] = pool
	}
	return pools, nil
}

// simulateOut prices amountIn along locked pools. A pool that appears more
// than once is priced against the reserves left by its earlier hop.
func simulateOut(pools []*Pool, path []common.Address, amountIn *uint256.Int) ([]*uint256.Int, error) {
	type reserves struct{ r0, r1 *uint256.Int }
	overlay := make(map[*Pool]reserves, len(pools))

	amounts := make([]*uint256.Int, len(path))
	amounts[0] = amountIn.Clone()
	for i, pool := range pools {
		cur, ok := overlay[pool]
		if !ok {
			cur = reserves{pool.reserve0, pool.reserve1}
		}
		q, err := pool.quoteSwap(path[i], amounts[i], cur.r0, cur.r1)
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
		if err := q.checkInvariant(); err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
		r0, r1 := q.reservesAfter()
		overlay[pool] = reserves{r0, r1}
		amounts[i+1] = q.amountOut
	}
	return amounts, nil
}

// amountsIn walks path backwards from amountOut against current reserves.
func amountsIn(pools []*Pool, path []common.Address, amountOut *uint256.Int) ([]*uint256.Int, error) {
	amounts := make([]*uint256.Int, len(path))
	amounts[len(amounts)-1] = amountOut.Clone()
	for i := len(pools) - 1; i >= 0; i-- {
		reserveIn, reserveOut, err := pools[i].reservesFor(path[i])
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
		in, err := GetAmountIn(amounts[i+1], reserveIn, reserveOut, pools[i].feeBps)
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
		amounts[i] = in
	}
	return amounts, nil
}

func (r *Router) checkDeadline(deadline time.Time) error {
	if now := r.clock(); now.After(deadline) {
		return fmt.Errorf("%w: now %s, deadline %s", ErrDeadlineExpired, now.UTC().Format(time.RFC3339), deadline.UTC().Format(time.RFC3339))
	}
	return nil
}

// checkFunds fails early when owner cannot cover amount through the router.
func (r *Router) checkFunds(asset, owner common.Address, amount *uint256.Int) error {
	if balance := r.ledger.BalanceOf(asset, owner); balance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, need %s", ledger.ErrInsufficientBalance, owner.Hex(), balance.Dec(), asset.Hex(), amount.Dec())
	}
	if allowance := r.ledger.Allowance(asset, owner, r.address); allowance.Lt(amount) {
		return fmt.Errorf("%w: %s allows %s of %s, need %s", ledger.ErrInsufficientAllowance, owner.Hex(), allowance.Dec(), asset.Hex(), amount.Dec())
	}
	return nil
}

func orZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x
}
