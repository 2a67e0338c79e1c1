package replay

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"liquidityCore/internal/model"
)

// ReadOperations loads a JSONL operation script. Blank lines are skipped;
// any malformed line fails the whole read.
func ReadOperations(path string) ([]model.Operation, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open operations: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var ops []model.Operation
	var lineNo int
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var op model.Operation
		if err := json.Unmarshal(line, &op); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		op.Op = strings.ToLower(strings.TrimSpace(op.Op))
		if !knownOp(op.Op) {
			return nil, fmt.Errorf("line %d: unknown op %q", lineNo, op.Op)
		}
		ops = append(ops, op)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan operations: %w", err)
	}
	return ops, nil
}

func knownOp(op string) bool {
	switch op {
	case model.OpFund, model.OpApprove, model.OpTransfer, model.OpAdd, model.OpRemove,
		model.OpSwapExactIn, model.OpSwapExactOut, model.OpSkim, model.OpSync:
		return true
	default:
		return false
	}
}

// ParseAddress converts a hex string into common.Address.
func ParseAddress(field, input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return common.Address{}, fmt.Errorf("%s is required", field)
	}
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid %s address: %s", field, input)
	}
	return common.HexToAddress(input), nil
}

// ParseAddresses converts string addresses into common.Address.
func ParseAddresses(field string, inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		addr, err := ParseAddress(field, input)
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, addr)
	}
	return addresses, nil
}

// ParseAmount parses a decimal or 0x-prefixed hex amount. An empty string
// yields fallback.
func ParseAmount(field, input string, fallback *uint256.Int) (*uint256.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return fallback, nil
	}
	var (
		value *uint256.Int
		err   error
	)
	if strings.HasPrefix(input, "0x") || strings.HasPrefix(input, "0X") {
		value, err = uint256.FromHex(input)
	} else {
		value, err = uint256.FromDecimal(input)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s amount %q: %w", field, input, err)
	}
	return value, nil
}
