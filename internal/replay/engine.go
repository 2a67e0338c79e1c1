package replay

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityCore/internal/amm"
	"liquidityCore/internal/ledger"
	"liquidityCore/internal/model"
)

// Engine applies operations to an in-memory ledger, registry and router.
// It is not safe for concurrent use.
type Engine struct {
	ledger   *ledger.Memory
	registry *amm.Registry
	router   *amm.Router
	logger   *zap.Logger
	now      time.Time
}

// NewEngine builds an Engine whose registry clock follows operation
// timestamps, starting at genesis.
func NewEngine(cfg amm.Config, genesis time.Time, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		ledger: ledger.NewMemory(),
		logger: logger,
		now:    genesis.UTC(),
	}
	cfg.Clock = e.clock

	registry, err := amm.NewRegistry(cfg, e.ledger, logger.Named("amm"))
	if err != nil {
		return nil, err
	}
	e.registry = registry
	e.router = amm.NewRouter(registry, logger.Named("router"))
	return e, nil
}

func (e *Engine) clock() time.Time { return e.now }

func (e *Engine) Ledger() *ledger.Memory   { return e.ledger }
func (e *Engine) Registry() *amm.Registry { return e.registry }
func (e *Engine) Router() *amm.Router     { return e.router }

// Now returns the timestamp of the last applied operation.
func (e *Engine) Now() time.Time { return e.now }

// Apply executes one operation. A rejected operation leaves no effect.
func (e *Engine) Apply(op model.Operation) (err error) {
	prev := e.now
	defer func() {
		if err != nil {
			e.now = prev
		}
	}()
	if op.Timestamp != 0 {
		ts := time.Unix(int64(op.Timestamp), 0).UTC()
		if ts.Before(e.now) {
			return fmt.Errorf("timestamp %d is before %d", op.Timestamp, e.now.Unix())
		}
		e.now = ts
	}

	switch op.Op {
	case model.OpFund:
		return e.fund(op)
	case model.OpApprove:
		return e.approve(op)
	case model.OpTransfer:
		return e.transfer(op)
	case model.OpAdd:
		return e.add(op)
	case model.OpRemove:
		return e.remove(op)
	case model.OpSwapExactIn:
		return e.swapExactIn(op)
	case model.OpSwapExactOut:
		return e.swapExactOut(op)
	case model.OpSkim:
		return e.skim(op)
	case model.OpSync:
		return e.sync(op)
	default:
		return fmt.Errorf("unknown op %q", op.Op)
	}
}

// deadline defaults to the operation time.
func (e *Engine) deadline(op model.Operation) time.Time {
	if op.Deadline == 0 {
		return e.now
	}
	return time.Unix(int64(op.Deadline), 0).UTC()
}

// recipient defaults to fallback when the operation names none.
func recipient(op model.Operation, fallback common.Address) (common.Address, error) {
	if op.Recipient == "" {
		return fallback, nil
	}
	return ParseAddress("recipient", op.Recipient)
}

func (e *Engine) fund(op model.Operation) error {
	asset, err := ParseAddress("asset", op.Asset)
	if err != nil {
		return err
	}
	if e.isPoolAddress(asset) {
		return fmt.Errorf("cannot fund pool shares %s", asset.Hex())
	}
	to, err := ParseAddress("recipient", firstNonEmpty(op.Recipient, op.Sender))
	if err != nil {
		return err
	}
	amount, err := ParseAmount("amount", op.Amount, nil)
	if err != nil {
		return err
	}
	if amount == nil {
		return fmt.Errorf("amount is required")
	}
	return e.ledger.Mint(asset, to, amount)
}

func (e *Engine) approve(op model.Operation) error {
	asset, err := ParseAddress("asset", op.Asset)
	if err != nil {
		return err
	}
	owner, err := ParseAddress("sender", op.Sender)
	if err != nil {
		return err
	}
	spender := e.router.Address()
	if op.Spender != "" {
		if spender, err = ParseAddress("spender", op.Spender); err != nil {
			return err
		}
	}
	amount, err := ParseAmount("amount", op.Amount, new(uint256.Int).SetAllOne())
	if err != nil {
		return err
	}
	return e.ledger.Approve(asset, owner, spender, amount)
}

func (e *Engine) transfer(op model.Operation) error {
	asset, err := ParseAddress("asset", op.Asset)
	if err != nil {
		return err
	}
	from, err := ParseAddress("sender", op.Sender)
	if err != nil {
		return err
	}
	to, err := ParseAddress("recipient", op.Recipient)
	if err != nil {
		return err
	}
	amount, err := ParseAmount("amount", op.Amount, new(uint256.Int))
	if err != nil {
		return err
	}
	return e.ledger.Transfer(asset, from, to, amount)
}

func (e *Engine) add(op model.Operation) error {
	sender, assetA, assetB, err := e.pairOp(op)
	if err != nil {
		return err
	}
	to, err := recipient(op, sender)
	if err != nil {
		return err
	}
	params := amm.AddLiquidityParams{AssetA: assetA, AssetB: assetB, Recipient: to, Deadline: e.deadline(op)}
	if params.AmountADesired, err = ParseAmount("amount_a", op.AmountA, new(uint256.Int)); err != nil {
		return err
	}
	if params.AmountBDesired, err = ParseAmount("amount_b", op.AmountB, new(uint256.Int)); err != nil {
		return err
	}
	if params.AmountAMin, err = ParseAmount("min_a", op.MinA, nil); err != nil {
		return err
	}
	if params.AmountBMin, err = ParseAmount("min_b", op.MinB, nil); err != nil {
		return err
	}
	_, _, _, err = e.router.AddLiquidity(sender, params)
	return err
}

func (e *Engine) remove(op model.Operation) error {
	sender, assetA, assetB, err := e.pairOp(op)
	if err != nil {
		return err
	}
	to, err := recipient(op, sender)
	if err != nil {
		return err
	}
	params := amm.RemoveLiquidityParams{AssetA: assetA, AssetB: assetB, Recipient: to, Deadline: e.deadline(op)}
	if params.Shares, err = ParseAmount("amount", op.Amount, new(uint256.Int)); err != nil {
		return err
	}
	if params.AmountAMin, err = ParseAmount("min_a", op.MinA, nil); err != nil {
		return err
	}
	if params.AmountBMin, err = ParseAmount("min_b", op.MinB, nil); err != nil {
		return err
	}
	_, _, err = e.router.RemoveLiquidity(sender, params)
	return err
}

func (e *Engine) swapExactIn(op model.Operation) error {
	sender, path, to, err := e.swapOp(op)
	if err != nil {
		return err
	}
	params := amm.SwapExactInParams{Path: path, Recipient: to, Deadline: e.deadline(op)}
	if params.AmountIn, err = ParseAmount("amount", op.Amount, new(uint256.Int)); err != nil {
		return err
	}
	if params.AmountOutMin, err = ParseAmount("limit", op.Limit, nil); err != nil {
		return err
	}
	_, err = e.router.SwapExactTokensForTokens(sender, params)
	return err
}

func (e *Engine) swapExactOut(op model.Operation) error {
	sender, path, to, err := e.swapOp(op)
	if err != nil {
		return err
	}
	params := amm.SwapExactOutParams{Path: path, Recipient: to, Deadline: e.deadline(op)}
	if params.AmountOut, err = ParseAmount("amount", op.Amount, new(uint256.Int)); err != nil {
		return err
	}
	if params.AmountInMax, err = ParseAmount("limit", op.Limit, nil); err != nil {
		return err
	}
	_, err = e.router.SwapTokensForExactTokens(sender, params)
	return err
}

func (e *Engine) skim(op model.Operation) error {
	pool, err := e.poolOp(op)
	if err != nil {
		return err
	}
	to, err := ParseAddress("recipient", firstNonEmpty(op.Recipient, op.Sender))
	if err != nil {
		return err
	}
	_, _, err = pool.Skim(to)
	return err
}

func (e *Engine) sync(op model.Operation) error {
	pool, err := e.poolOp(op)
	if err != nil {
		return err
	}
	return pool.Sync()
}

func (e *Engine) pairOp(op model.Operation) (sender, assetA, assetB common.Address, err error) {
	if sender, err = ParseAddress("sender", op.Sender); err != nil {
		return
	}
	if assetA, err = ParseAddress("asset_a", op.AssetA); err != nil {
		return
	}
	assetB, err = ParseAddress("asset_b", op.AssetB)
	return
}

func (e *Engine) swapOp(op model.Operation) (sender common.Address, path []common.Address, to common.Address, err error) {
	if sender, err = ParseAddress("sender", op.Sender); err != nil {
		return
	}
	if path, err = ParseAddresses("path", op.Path); err != nil {
		return
	}
	to, err = recipient(op, sender)
	return
}

func (e *Engine) poolOp(op model.Operation) (*amm.Pool, error) {
	assetA, err := ParseAddress("asset_a", op.AssetA)
	if err != nil {
		return nil, err
	}
	assetB, err := ParseAddress("asset_b", op.AssetB)
	if err != nil {
		return nil, err
	}
	pool, ok := e.registry.GetPool(assetA, assetB)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", amm.ErrPoolNotFound, assetA.Hex(), assetB.Hex())
	}
	return pool, nil
}

func (e *Engine) poolByAddress(addr common.Address) (*amm.Pool, bool) {
	for _, pool := range e.registry.AllPools() {
		if pool.Address() == addr {
			return pool, true
		}
	}
	return nil, false
}

// isPoolAddress reports whether addr belongs to an existing pool or to the
// pool any two assets already on the ledger would create.
func (e *Engine) isPoolAddress(addr common.Address) bool {
	if _, ok := e.poolByAddress(addr); ok {
		return true
	}
	assets := e.ledger.Assets()
	for i := range assets {
		for j := i + 1; j < len(assets); j++ {
			token0, token1, err := amm.SortAssets(assets[i], assets[j])
			if err != nil {
				continue
			}
			if amm.PoolAddress(e.registry.Address(), token0, token1) == addr {
				return true
			}
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
