package aggregate

import (
	"fmt"
	"math/big"
	"strings"

	"liquidityCore/internal/model"
)

// Accumulator holds aggregate values for a pool window.
type Accumulator struct {
	ChainID     uint64
	PoolAddress string
	PoolMeta    model.PoolMeta
	WindowStart uint64
	WindowEnd   uint64
	SwapCount   uint64
	MintCount   uint64
	BurnCount   uint64
	Volume0     *big.Int
	Volume1     *big.Int
	Fee0        *big.Int
	Fee1        *big.Int
	// Reserve0 and Reserve1 are the last known reserves; nil until seen.
	Reserve0   *big.Int
	Reserve1   *big.Int
	LastBlock  uint64
	LastTS     uint64
	FirstBlock uint64
}

func NewAccumulator(record model.TypedEventRecord, windowStart, windowEnd uint64) *Accumulator {
	acc := &Accumulator{
		ChainID:     record.ChainID,
		PoolAddress: record.Address,
		PoolMeta:    record.PoolMeta,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Volume0:     big.NewInt(0),
		Volume1:     big.NewInt(0),
		Fee0:        big.NewInt(0),
		Fee1:        big.NewInt(0),
		LastBlock:   record.BlockNumber,
		LastTS:      record.Timestamp,
		FirstBlock:  record.BlockNumber,
	}
	// reserves carried on the record are the ones before this event
	if r0, err := parseBigInt(record.PoolMeta.Reserve0); err == nil && record.PoolMeta.Reserve0 != "" {
		acc.Reserve0 = r0
	}
	if r1, err := parseBigInt(record.PoolMeta.Reserve1); err == nil && record.PoolMeta.Reserve1 != "" {
		acc.Reserve1 = r1
	}
	return acc
}

func (a *Accumulator) AddEvent(record model.TypedEventRecord) error {
	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
		a.LastBlock = record.BlockNumber
	}
	if a.FirstBlock == 0 || record.BlockNumber < a.FirstBlock {
		a.FirstBlock = record.BlockNumber
	}

	switch strings.ToLower(record.EventName) {
	case "swap":
		var swap model.SwapEventData
		if err := record.Payload(&swap); err != nil {
			return err
		}
		return a.applySwap(swap)
	case "sync":
		var sync model.SyncEventData
		if err := record.Payload(&sync); err != nil {
			return err
		}
		return a.applySync(sync)
	case "mint":
		a.MintCount++
		return nil
	case "burn":
		a.BurnCount++
		return nil
	default:
		return nil
	}
}

func (a *Accumulator) applySwap(swap model.SwapEventData) error {
	amounts := make([]*big.Int, 0, 4)
	for _, value := range []string{swap.Amount0In, swap.Amount1In, swap.Amount0Out, swap.Amount1Out} {
		parsed, err := parseBigInt(value)
		if err != nil {
			return err
		}
		amounts = append(amounts, parsed)
	}
	amount0In, amount1In, amount0Out, amount1Out := amounts[0], amounts[1], amounts[2], amounts[3]

	a.Volume0.Add(a.Volume0, amount0In)
	a.Volume0.Add(a.Volume0, amount0Out)
	a.Volume1.Add(a.Volume1, amount1In)
	a.Volume1.Add(a.Volume1, amount1Out)

	feeBps := a.PoolMeta.FeeBps
	a.Fee0.Add(a.Fee0, feeFromAmount(amount0In, feeBps))
	a.Fee1.Add(a.Fee1, feeFromAmount(amount1In, feeBps))

	a.SwapCount++
	return nil
}

func (a *Accumulator) applySync(sync model.SyncEventData) error {
	reserve0, err := parseBigInt(sync.Reserve0)
	if err != nil {
		return err
	}
	reserve1, err := parseBigInt(sync.Reserve1)
	if err != nil {
		return err
	}
	a.Reserve0 = reserve0
	a.Reserve1 = reserve1
	return nil
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %s", value)
	}
	return parsed, nil
}

// feeFromAmount is the fee withheld from a swap input, rounded down like
// the pool does.
func feeFromAmount(amountIn *big.Int, feeBps uint16) *big.Int {
	if amountIn == nil || amountIn.Sign() == 0 || feeBps == 0 {
		return big.NewInt(0)
	}
	afterFee := new(big.Int).Mul(amountIn, big.NewInt(int64(feeDenominator-int(feeBps))))
	afterFee.Div(afterFee, big.NewInt(feeDenominator))
	return afterFee.Sub(amountIn, afterFee)
}
