package amm

import "errors"

var (
	ErrDeadlineExpired             = errors.New("deadline expired")
	ErrInsufficientAAmount         = errors.New("insufficient A amount")
	ErrInsufficientBAmount         = errors.New("insufficient B amount")
	ErrInsufficientInputAmount     = errors.New("insufficient input amount")
	ErrInsufficientOutputAmount    = errors.New("insufficient output amount")
	ErrExcessiveInputAmount        = errors.New("excessive input amount")
	ErrInsufficientLiquidity       = errors.New("insufficient liquidity")
	ErrInsufficientLiquidityMinted = errors.New("insufficient liquidity minted")
	ErrInsufficientLiquidityBurned = errors.New("insufficient liquidity burned")
	ErrInvariantViolation          = errors.New("constant product invariant violated")
	ErrOverflow                    = errors.New("arithmetic overflow")
)

var (
	ErrIdenticalAssets  = errors.New("identical assets")
	ErrZeroAddress      = errors.New("zero address")
	ErrInvalidPath      = errors.New("invalid path")
	ErrPoolNotFound     = errors.New("pool not found")
	ErrInvalidAsset     = errors.New("asset not in pool")
	ErrInvalidRecipient = errors.New("invalid recipient")
	ErrInvalidConfig    = errors.New("invalid config")
	ErrPoolAddressInUse = errors.New("pool address already holds shares")
)
