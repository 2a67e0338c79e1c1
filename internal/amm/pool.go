package amm

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityCore/internal/ledger"
)

// Pool is a constant-product pool for one canonically ordered asset pair.
// The pool address holds the reserves in the ledger and doubles as the
// asset id of the pool's share token.
type Pool struct {
	mu sync.Mutex

	address          common.Address
	token0           common.Address
	token1           common.Address
	feeBps           uint64
	minimumLiquidity *uint256.Int

	ledger ledger.Ledger
	sink   EventSink
	clock  func() time.Time
	logger *zap.Logger

	reserve0    *uint256.Int
	reserve1    *uint256.Int
	totalShares *uint256.Int
	lastUpdated time.Time
}

// PoolState is a point-in-time copy of a pool.
type PoolState struct {
	Address     common.Address
	Token0      common.Address
	Token1      common.Address
	FeeBps      uint64
	Reserve0    *uint256.Int
	Reserve1    *uint256.Int
	TotalShares *uint256.Int
	LastUpdated time.Time
}

func newPool(address, token0, token1 common.Address, cfg Config, l ledger.Ledger, logger *zap.Logger) *Pool {
	return &Pool{
		address:          address,
		token0:           token0,
		token1:           token1,
		feeBps:           cfg.FeeBps,
		minimumLiquidity: cfg.minimumLiquidity(),
		ledger:           l,
		sink:             cfg.sink(),
		clock:            cfg.clock(),
		logger:           logger.With(zap.String("pool", address.Hex())),
		reserve0:         new(uint256.Int),
		reserve1:         new(uint256.Int),
		totalShares:      new(uint256.Int),
	}
}

func (p *Pool) Address() common.Address { return p.address }
func (p *Pool) Token0() common.Address  { return p.token0 }
func (p *Pool) Token1() common.Address  { return p.token1 }
func (p *Pool) FeeBps() uint64          { return p.feeBps }

// Reserves returns copies of the reserves and the time they last changed.
func (p *Pool) Reserves() (reserve0, reserve1 *uint256.Int, asOf time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reserve0.Clone(), p.reserve1.Clone(), p.lastUpdated
}

func (p *Pool) TotalShares() *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalShares.Clone()
}

func (p *Pool) Snapshot() PoolState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Pool) snapshotLocked() PoolState {
	return PoolState{
		Address:     p.address,
		Token0:      p.token0,
		Token1:      p.token1,
		FeeBps:      p.feeBps,
		Reserve0:    p.reserve0.Clone(),
		Reserve1:    p.reserve1.Clone(),
		TotalShares: p.totalShares.Clone(),
		LastUpdated: p.lastUpdated,
	}
}

// Mint issues shares for amount0/amount1 that the caller already moved into
// the pool's ledger balance.
func (p *Pool) Mint(amount0, amount1 *uint256.Int, recipient common.Address) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tx := newTxn(p.ledger)
	shares, err := p.mintLocked(tx, amount0, amount1, recipient)
	if err != nil {
		return nil, tx.abort(err)
	}
	tx.commit(p.sink)
	return shares, nil
}

// Burn redeems shares that the caller already moved into the pool's own
// share balance and pays both assets to recipient.
func (p *Pool) Burn(shares *uint256.Int, recipient common.Address) (amount0, amount1 *uint256.Int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tx := newTxn(p.ledger)
	amount0, amount1, err = p.burnLocked(tx, shares, recipient)
	if err != nil {
		return nil, nil, tx.abort(err)
	}
	tx.commit(p.sink)
	return amount0, amount1, nil
}

// Swap prices amountIn of assetIn, already delivered to the pool, and pays
// the other asset to recipient.
func (p *Pool) Swap(assetIn common.Address, amountIn, minAmountOut *uint256.Int, recipient common.Address) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tx := newTxn(p.ledger)
	out, err := p.swapLocked(tx, assetIn, amountIn, minAmountOut, nil, recipient)
	if err != nil {
		return nil, tx.abort(err)
	}
	tx.commit(p.sink)
	return out, nil
}

// Skim sends any ledger balance above the reserves to recipient.
func (p *Pool) Skim(recipient common.Address) (amount0, amount1 *uint256.Int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	amount0 = p.excess(p.token0, p.reserve0)
	amount1 = p.excess(p.token1, p.reserve1)
	if recipient == (common.Address{}) {
		return nil, nil, fmt.Errorf("%w: skim recipient", ErrZeroAddress)
	}
	tx := newTxn(p.ledger)
	if err := tx.transfer(p.token0, p.address, recipient, amount0); err != nil {
		return nil, nil, tx.abort(fmt.Errorf("skim %s: %w", p.token0.Hex(), err))
	}
	if err := tx.transfer(p.token1, p.address, recipient, amount1); err != nil {
		return nil, nil, tx.abort(fmt.Errorf("skim %s: %w", p.token1.Hex(), err))
	}
	tx.commit(p.sink)
	p.logger.Debug("skim", zap.String("to", recipient.Hex()), zap.String("amount0", amount0.Dec()), zap.String("amount1", amount1.Dec()))
	return amount0, amount1, nil
}

// Sync sets the reserves to the pool's ledger balances.
func (p *Pool) Sync() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	balance0 := p.ledger.BalanceOf(p.token0, p.address)
	balance1 := p.ledger.BalanceOf(p.token1, p.address)
	if balance0.Gt(MaxReserve) || balance1.Gt(MaxReserve) {
		return fmt.Errorf("%w: balances %s/%s exceed 112 bits", ErrOverflow, balance0.Dec(), balance1.Dec())
	}
	p.setReserves(balance0, balance1)
	p.sink.Emit(p.syncEvent())
	return nil
}

// previewMint computes the shares for a deposit without touching state.
// locked is the part of a first deposit that goes to ledger.DeadAccount.
func (p *Pool) previewMint(amount0, amount1 *uint256.Int) (shares, locked *uint256.Int, err error) {
	if _, err := addReserve(p.reserve0, amount0); err != nil {
		return nil, nil, err
	}
	if _, err := addReserve(p.reserve1, amount1); err != nil {
		return nil, nil, err
	}
	if p.totalShares.IsZero() {
		product, err := mul(amount0, amount1)
		if err != nil {
			return nil, nil, err
		}
		root := floorSqrt(product)
		if !root.Gt(p.minimumLiquidity) {
			return nil, nil, fmt.Errorf("%w: sqrt(%s*%s) = %s", ErrInsufficientLiquidityMinted, amount0.Dec(), amount1.Dec(), root.Dec())
		}
		return root.Sub(root, p.minimumLiquidity), p.minimumLiquidity.Clone(), nil
	}
	shares0, err := mulDiv(amount0, p.totalShares, p.reserve0)
	if err != nil {
		return nil, nil, err
	}
	shares1, err := mulDiv(amount1, p.totalShares, p.reserve1)
	if err != nil {
		return nil, nil, err
	}
	shares = minAmount(shares0, shares1)
	if shares.IsZero() {
		return nil, nil, fmt.Errorf("%w: deposit %s/%s against reserves %s/%s", ErrInsufficientLiquidityMinted,
			amount0.Dec(), amount1.Dec(), p.reserve0.Dec(), p.reserve1.Dec())
	}
	return shares, new(uint256.Int), nil
}

func (p *Pool) mintLocked(tx *txn, amount0, amount1 *uint256.Int, recipient common.Address) (*uint256.Int, error) {
	if recipient == (common.Address{}) {
		return nil, fmt.Errorf("%w: mint recipient", ErrZeroAddress)
	}
	shares, locked, err := p.previewMint(amount0, amount1)
	if err != nil {
		return nil, err
	}
	if err := p.checkDelivered(p.token0, p.reserve0, amount0); err != nil {
		return nil, err
	}
	if err := p.checkDelivered(p.token1, p.reserve1, amount1); err != nil {
		return nil, err
	}

	tx.onAbort(p.savepoint())
	// previewMint bounded both sums; total shares stay below the geometric mean of the reserves
	p.setReserves(new(uint256.Int).Add(p.reserve0, amount0), new(uint256.Int).Add(p.reserve1, amount1))
	p.totalShares = new(uint256.Int).Add(p.totalShares, new(uint256.Int).Add(shares, locked))

	if err := tx.mint(p.address, ledger.DeadAccount, locked); err != nil {
		return nil, fmt.Errorf("lock minimum liquidity: %w", err)
	}
	if err := tx.mint(p.address, recipient, shares); err != nil {
		return nil, fmt.Errorf("mint shares: %w", err)
	}

	tx.emit(MintEvent{Pool: p.address, To: recipient, Amount0: amount0.Clone(), Amount1: amount1.Clone(), Shares: shares.Clone()})
	tx.emit(p.syncEvent())
	p.logger.Debug("mint",
		zap.String("to", recipient.Hex()),
		zap.String("amount0", amount0.Dec()),
		zap.String("amount1", amount1.Dec()),
		zap.String("shares", shares.Dec()),
	)
	return shares, nil
}

// previewBurn computes the assets redeemed by shares without touching state.
func (p *Pool) previewBurn(shares *uint256.Int) (amount0, amount1 *uint256.Int, err error) {
	if shares.IsZero() {
		return nil, nil, fmt.Errorf("%w: zero shares", ErrInsufficientLiquidityBurned)
	}
	if shares.Gt(p.totalShares) {
		return nil, nil, fmt.Errorf("%w: burn %s of %s shares", ErrInsufficientLiquidity, shares.Dec(), p.totalShares.Dec())
	}
	amount0, err = mulDiv(shares, p.reserve0, p.totalShares)
	if err != nil {
		return nil, nil, err
	}
	amount1, err = mulDiv(shares, p.reserve1, p.totalShares)
	if err != nil {
		return nil, nil, err
	}
	if amount0.IsZero() || amount1.IsZero() {
		return nil, nil, fmt.Errorf("%w: %s shares redeem %s/%s", ErrInsufficientLiquidityBurned, shares.Dec(), amount0.Dec(), amount1.Dec())
	}
	return amount0, amount1, nil
}

func (p *Pool) burnLocked(tx *txn, shares *uint256.Int, recipient common.Address) (amount0, amount1 *uint256.Int, err error) {
	if err := p.checkRecipient(recipient); err != nil {
		return nil, nil, err
	}
	amount0, amount1, err = p.previewBurn(shares)
	if err != nil {
		return nil, nil, err
	}
	if held := p.ledger.BalanceOf(p.address, p.address); held.Lt(shares) {
		return nil, nil, fmt.Errorf("%w: pool holds %s shares, burn %s", ErrInsufficientInputAmount, held.Dec(), shares.Dec())
	}

	tx.onAbort(p.savepoint())
	p.setReserves(new(uint256.Int).Sub(p.reserve0, amount0), new(uint256.Int).Sub(p.reserve1, amount1))
	p.totalShares = new(uint256.Int).Sub(p.totalShares, shares)

	if err := tx.burn(p.address, p.address, shares); err != nil {
		return nil, nil, fmt.Errorf("burn shares: %w", err)
	}
	if err := tx.transfer(p.token0, p.address, recipient, amount0); err != nil {
		return nil, nil, fmt.Errorf("pay %s: %w", p.token0.Hex(), err)
	}
	if err := tx.transfer(p.token1, p.address, recipient, amount1); err != nil {
		return nil, nil, fmt.Errorf("pay %s: %w", p.token1.Hex(), err)
	}

	tx.emit(BurnEvent{Pool: p.address, To: recipient, Shares: shares.Clone(), Amount0: amount0.Clone(), Amount1: amount1.Clone()})
	tx.emit(p.syncEvent())
	p.logger.Debug("burn",
		zap.String("to", recipient.Hex()),
		zap.String("shares", shares.Dec()),
		zap.String("amount0", amount0.Dec()),
		zap.String("amount1", amount1.Dec()),
	)
	return amount0, amount1, nil
}

// swapQuote is a priced swap against fixed reserves.
type swapQuote struct {
	zeroForOne bool
	amountIn   *uint256.Int
	afterFee   *uint256.Int
	amountOut  *uint256.Int
	reserveIn  *uint256.Int
	reserveOut *uint256.Int
}

// quoteSwap prices a swap against the given reserves and runs every check
// that does not depend on the ledger.
func (p *Pool) quoteSwap(assetIn common.Address, amountIn, reserve0, reserve1 *uint256.Int) (swapQuote, error) {
	q := swapQuote{amountIn: amountIn}
	switch assetIn {
	case p.token0:
		q.zeroForOne, q.reserveIn, q.reserveOut = true, reserve0, reserve1
	case p.token1:
		q.reserveIn, q.reserveOut = reserve1, reserve0
	default:
		return q, fmt.Errorf("%w: %s", ErrInvalidAsset, assetIn.Hex())
	}
	if amountIn.IsZero() {
		return q, ErrInsufficientInputAmount
	}
	out, afterFee, err := amountOut(amountIn, q.reserveIn, q.reserveOut, p.feeBps)
	if err != nil {
		return q, err
	}
	if out.IsZero() {
		return q, fmt.Errorf("%w: %s in yields nothing", ErrInsufficientOutputAmount, amountIn.Dec())
	}
	if !out.Lt(q.reserveOut) {
		return q, fmt.Errorf("%w: out %s of reserve %s", ErrInsufficientLiquidity, out.Dec(), q.reserveOut.Dec())
	}
	if _, err := addReserve(q.reserveIn, amountIn); err != nil {
		return q, err
	}
	q.afterFee, q.amountOut = afterFee, out
	return q, nil
}

// reservesFor orders the current reserves as (in, out) for assetIn.
func (p *Pool) reservesFor(assetIn common.Address) (reserveIn, reserveOut *uint256.Int, err error) {
	switch assetIn {
	case p.token0:
		return p.reserve0, p.reserve1, nil
	case p.token1:
		return p.reserve1, p.reserve0, nil
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrInvalidAsset, assetIn.Hex())
}

// reservesAfter returns the post-swap reserves in token order.
func (q swapQuote) reservesAfter() (reserve0, reserve1 *uint256.Int) {
	in := new(uint256.Int).Add(q.reserveIn, q.amountIn)
	out := new(uint256.Int).Sub(q.reserveOut, q.amountOut)
	if q.zeroForOne {
		return in, out
	}
	return out, in
}

// checkInvariant verifies (rIn + afterFee) * (rOut - out) >= rIn * rOut.
func (q swapQuote) checkInvariant() error {
	before, err := mul(q.reserveIn, q.reserveOut)
	if err != nil {
		return err
	}
	adjustedIn, err := add(q.reserveIn, q.afterFee)
	if err != nil {
		return err
	}
	after, err := mul(adjustedIn, new(uint256.Int).Sub(q.reserveOut, q.amountOut))
	if err != nil {
		return err
	}
	if after.Lt(before) {
		return fmt.Errorf("%w: k %s -> %s", ErrInvariantViolation, before.Dec(), after.Dec())
	}
	return nil
}

// swapLocked pays out the quoted amount, or maxAmountOut when that is
// smaller. Whatever is not paid out stays in the reserves.
func (p *Pool) swapLocked(tx *txn, assetIn common.Address, amountIn, minAmountOut, maxAmountOut *uint256.Int, recipient common.Address) (*uint256.Int, error) {
	if err := p.checkRecipient(recipient); err != nil {
		return nil, err
	}
	q, err := p.quoteSwap(assetIn, amountIn, p.reserve0, p.reserve1)
	if err != nil {
		return nil, err
	}
	if maxAmountOut != nil && q.amountOut.Gt(maxAmountOut) {
		q.amountOut = maxAmountOut.Clone()
	}
	if minAmountOut != nil && q.amountOut.Lt(minAmountOut) {
		return nil, fmt.Errorf("%w: out %s below minimum %s", ErrInsufficientOutputAmount, q.amountOut.Dec(), minAmountOut.Dec())
	}
	if err := q.checkInvariant(); err != nil {
		return nil, err
	}
	if err := p.checkDelivered(assetIn, q.reserveIn, amountIn); err != nil {
		return nil, err
	}

	assetOut := p.token1
	if !q.zeroForOne {
		assetOut = p.token0
	}
	tx.onAbort(p.savepoint())
	p.setReserves(q.reservesAfter())

	if err := tx.transfer(assetOut, p.address, recipient, q.amountOut); err != nil {
		return nil, fmt.Errorf("pay %s: %w", assetOut.Hex(), err)
	}

	ev := SwapEvent{
		Pool:       p.address,
		To:         recipient,
		Amount0In:  new(uint256.Int),
		Amount1In:  new(uint256.Int),
		Amount0Out: new(uint256.Int),
		Amount1Out: new(uint256.Int),
	}
	if q.zeroForOne {
		ev.Amount0In.Set(amountIn)
		ev.Amount1Out.Set(q.amountOut)
	} else {
		ev.Amount1In.Set(amountIn)
		ev.Amount0Out.Set(q.amountOut)
	}
	tx.emit(ev)
	tx.emit(p.syncEvent())
	p.logger.Debug("swap",
		zap.String("asset_in", assetIn.Hex()),
		zap.String("amount_in", amountIn.Dec()),
		zap.String("amount_out", q.amountOut.Dec()),
		zap.String("to", recipient.Hex()),
	)
	return q.amountOut, nil
}

// checkDelivered requires the pool's ledger balance of asset to exceed its
// reserve by at least amount.
func (p *Pool) checkDelivered(asset common.Address, reserve, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if excess := p.excess(asset, reserve); excess.Lt(amount) {
		return fmt.Errorf("%w: %s delivered %s, need %s", ErrInsufficientInputAmount, asset.Hex(), excess.Dec(), amount.Dec())
	}
	return nil
}

func (p *Pool) excess(asset common.Address, reserve *uint256.Int) *uint256.Int {
	balance := p.ledger.BalanceOf(asset, p.address)
	if balance.Lt(reserve) {
		return new(uint256.Int)
	}
	return balance.Sub(balance, reserve)
}

func (p *Pool) checkRecipient(recipient common.Address) error {
	if recipient == (common.Address{}) {
		return fmt.Errorf("%w: recipient", ErrZeroAddress)
	}
	if recipient == p.token0 || recipient == p.token1 {
		return fmt.Errorf("%w: %s is a pool asset", ErrInvalidRecipient, recipient.Hex())
	}
	return nil
}

func (p *Pool) setReserves(reserve0, reserve1 *uint256.Int) {
	p.reserve0, p.reserve1 = reserve0, reserve1
	p.lastUpdated = p.clock()
}

// savepoint returns a func that puts the pool state back to what it is now.
func (p *Pool) savepoint() func() error {
	reserve0, reserve1, totalShares, lastUpdated := p.reserve0, p.reserve1, p.totalShares, p.lastUpdated
	return func() error {
		p.reserve0, p.reserve1, p.totalShares, p.lastUpdated = reserve0, reserve1, totalShares, lastUpdated
		return nil
	}
}

func (p *Pool) syncEvent() SyncEvent {
	return SyncEvent{Pool: p.address, Reserve0: p.reserve0.Clone(), Reserve1: p.reserve1.Clone()}
}
