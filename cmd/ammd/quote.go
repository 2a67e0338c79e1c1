package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"liquidityCore/internal/amm"
	"liquidityCore/internal/config"
	"liquidityCore/internal/replay"
)

type hopReserves struct {
	In  *uint256.Int
	Out *uint256.Int
}

type hopQuote struct {
	Hop        int    `json:"hop"`
	ReserveIn  string `json:"reserve_in"`
	ReserveOut string `json:"reserve_out"`
	AmountIn   string `json:"amount_in"`
	AmountOut  string `json:"amount_out"`
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.FeeBps >= amm.FeeDenominator {
		return fmt.Errorf("fee-bps must be below %d", amm.FeeDenominator)
	}
	hops, err := parseReserves(cfg.Reserves)
	if err != nil {
		return err
	}
	if (cfg.AmountIn == "") == (cfg.AmountOut == "") {
		return fmt.Errorf("exactly one of amount-in and amount-out is required")
	}

	var quotes []hopQuote
	if cfg.AmountIn != "" {
		amountIn, err := requiredAmount("amount-in", cfg.AmountIn)
		if err != nil {
			return err
		}
		quotes, err = quoteExactIn(hops, amountIn, cfg.FeeBps)
		if err != nil {
			return err
		}
	} else {
		amountOut, err := requiredAmount("amount-out", cfg.AmountOut)
		if err != nil {
			return err
		}
		quotes, err = quoteExactOut(hops, amountOut, cfg.FeeBps)
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, q := range quotes {
		if err := enc.Encode(q); err != nil {
			return err
		}
	}
	return nil
}

func requiredAmount(field, value string) (*uint256.Int, error) {
	amount, err := replay.ParseAmount(field, value, nil)
	if err != nil {
		return nil, err
	}
	if amount == nil {
		return nil, fmt.Errorf("%s is required", field)
	}
	return amount, nil
}

// parseReserves reads reserveIn:reserveOut per hop.
func parseReserves(values []string) ([]hopReserves, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("reserves are required")
	}
	hops := make([]hopReserves, 0, len(values))
	for i, value := range values {
		parts := strings.SplitN(value, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("hop %d: reserves must be reserveIn:reserveOut, got %q", i, value)
		}
		reserveIn, err := replay.ParseAmount("reserve-in", parts[0], nil)
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
		reserveOut, err := replay.ParseAmount("reserve-out", parts[1], nil)
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
		if reserveIn == nil || reserveOut == nil {
			return nil, fmt.Errorf("hop %d: empty reserve in %q", i, value)
		}
		hops = append(hops, hopReserves{In: reserveIn, Out: reserveOut})
	}
	return hops, nil
}

func quoteExactIn(hops []hopReserves, amountIn *uint256.Int, feeBps uint64) ([]hopQuote, error) {
	quotes := make([]hopQuote, 0, len(hops))
	current := amountIn
	for i, hop := range hops {
		out, err := amm.GetAmountOut(current, hop.In, hop.Out, feeBps)
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
		quotes = append(quotes, newHopQuote(i, hop, current, out))
		current = out
	}
	return quotes, nil
}

func quoteExactOut(hops []hopReserves, amountOut *uint256.Int, feeBps uint64) ([]hopQuote, error) {
	quotes := make([]hopQuote, len(hops))
	current := amountOut
	for i := len(hops) - 1; i >= 0; i-- {
		in, err := amm.GetAmountIn(current, hops[i].In, hops[i].Out, feeBps)
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
		quotes[i] = newHopQuote(i, hops[i], in, current)
		current = in
	}
	return quotes, nil
}

func newHopQuote(i int, hop hopReserves, in, out *uint256.Int) hopQuote {
	return hopQuote{
		Hop:        i,
		ReserveIn:  hop.In.Dec(),
		ReserveOut: hop.Out.Dec(),
		AmountIn:   in.Dec(),
		AmountOut:  out.Dec(),
	}
}
