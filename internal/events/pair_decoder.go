package events

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"liquidityCore/internal/model"
)

// DecoderConfig configures decoder behavior.
type DecoderConfig struct {
	Topic0Map map[string]string
}

// PairDecoder decodes pair and registry events.
type PairDecoder struct {
	pairABI     abi.ABI
	topicToName map[string]string
}

// NewPairDecoder builds a pair decoder.
func NewPairDecoder(cfg DecoderConfig) (*PairDecoder, error) {
	pairABI, err := PairABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string, len(pairABI.Events)+len(cfg.Topic0Map))
	for name, event := range pairABI.Events {
		topicToName[strings.ToLower(event.ID.Hex())] = name
	}

	for topic0, name := range cfg.Topic0Map {
		original := name
		name = normalizeEventName(name)
		if name == "" {
			return nil, fmt.Errorf("unsupported event name in topic0 map: %s", original)
		}
		if topic0 == "" {
			continue
		}
		topicToName[strings.ToLower(topic0)] = name
	}

	return &PairDecoder{
		pairABI:     pairABI,
		topicToName: topicToName,
	}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *PairDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent.
func (d *PairDecoder) Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid emitter address: %s", log.Address)
	}
	emitter := common.HexToAddress(log.Address)

	if name == "PairCreated" {
		decoded, pair, err := d.decodePairCreated(log)
		if err != nil {
			return nil, err
		}
		meta := model.PoolMeta{Token0: decoded.Token0, Token1: decoded.Token1, FeeBps: decoded.FeeBps}
		if ctx.PoolMetaCache != nil {
			ctx.PoolMetaCache.Set(pair, meta)
		}
		return buildTypedEvent(log, name, decoded, meta), nil
	}

	poolMeta, err := getPoolMeta(ctx, emitter)
	if err != nil {
		return nil, err
	}

	switch name {
	case "Swap":
		decoded, err := d.decodeSwap(log)
		if err != nil {
			return nil, err
		}
		return buildTypedEvent(log, name, decoded, poolMeta), nil
	case "Mint":
		decoded, err := d.decodeMint(log)
		if err != nil {
			return nil, err
		}
		return buildTypedEvent(log, name, decoded, poolMeta), nil
	case "Burn":
		decoded, err := d.decodeBurn(log)
		if err != nil {
			return nil, err
		}
		return buildTypedEvent(log, name, decoded, poolMeta), nil
	case "Sync":
		decoded, err := d.decodeSync(log)
		if err != nil {
			return nil, err
		}
		poolMeta.Reserve0 = decoded.Reserve0
		poolMeta.Reserve1 = decoded.Reserve1
		if ctx.PoolMetaCache != nil {
			ctx.PoolMetaCache.SetReserves(emitter, decoded.Reserve0, decoded.Reserve1)
		}
		return buildTypedEvent(log, name, decoded, poolMeta), nil
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}
}

func normalizeEventName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "swap":
		return "Swap"
	case "mint":
		return "Mint"
	case "burn":
		return "Burn"
	case "sync":
		return "Sync"
	case "paircreated":
		return "PairCreated"
	default:
		return ""
	}
}

func getPoolMeta(ctx DecodeContext, pool common.Address) (model.PoolMeta, error) {
	if ctx.PoolMetaCache == nil {
		return model.PoolMeta{}, fmt.Errorf("pool meta cache is nil")
	}
	meta, ok := ctx.PoolMetaCache.Get(pool)
	if !ok {
		if ctx.Logger != nil {
			ctx.Logger.Debug("pool event before PairCreated", zap.String("pool", pool.Hex()))
		}
		return model.PoolMeta{}, fmt.Errorf("unknown pool %s", pool.Hex())
	}
	return meta, nil
}

func buildTypedEvent(log model.LogRecord, name string, decoded interface{}, meta model.PoolMeta) *model.TypedEvent {
	raw := &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data}
	return &model.TypedEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		EventName:   name,
		Timestamp:   log.Timestamp,
		Decoded:     decoded,
		PoolMeta:    meta,
		Raw:         raw,
	}
}

func (d *PairDecoder) decodePairCreated(log model.LogRecord) (model.PairCreatedEventData, common.Address, error) {
	event := d.pairABI.Events["PairCreated"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.PairCreatedEventData{}, common.Address{}, err
	}

	var indexed struct {
		Token0 common.Address
		Token1 common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.PairCreatedEventData{}, common.Address{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.PairCreatedEventData{}, common.Address{}, err
	}
	if len(values) != 3 {
		return model.PairCreatedEventData{}, common.Address{}, fmt.Errorf("unexpected PairCreated values: %d", len(values))
	}

	pair, err := asAddress(values[0])
	if err != nil {
		return model.PairCreatedEventData{}, common.Address{}, err
	}
	feeBps, err := asUint16(values[1])
	if err != nil {
		return model.PairCreatedEventData{}, common.Address{}, err
	}
	index, err := asBigInt(values[2])
	if err != nil {
		return model.PairCreatedEventData{}, common.Address{}, err
	}

	return model.PairCreatedEventData{
		Token0: indexed.Token0.Hex(),
		Token1: indexed.Token1.Hex(),
		Pair:   pair.Hex(),
		FeeBps: feeBps,
		Index:  index.String(),
	}, pair, nil
}

func (d *PairDecoder) decodeSwap(log model.LogRecord) (model.SwapEventData, error) {
	event := d.pairABI.Events["Swap"]
	to, err := d.parseTo(event, log.Topics)
	if err != nil {
		return model.SwapEventData{}, err
	}

	amounts, err := unpackAmounts(event, log.Data, 4)
	if err != nil {
		return model.SwapEventData{}, err
	}

	return model.SwapEventData{
		To:         to.Hex(),
		Amount0In:  amounts[0],
		Amount1In:  amounts[1],
		Amount0Out: amounts[2],
		Amount1Out: amounts[3],
	}, nil
}

func (d *PairDecoder) decodeMint(log model.LogRecord) (model.MintEventData, error) {
	event := d.pairABI.Events["Mint"]
	to, err := d.parseTo(event, log.Topics)
	if err != nil {
		return model.MintEventData{}, err
	}

	amounts, err := unpackAmounts(event, log.Data, 3)
	if err != nil {
		return model.MintEventData{}, err
	}

	return model.MintEventData{
		To:        to.Hex(),
		Amount0:   amounts[0],
		Amount1:   amounts[1],
		Liquidity: amounts[2],
	}, nil
}

func (d *PairDecoder) decodeBurn(log model.LogRecord) (model.BurnEventData, error) {
	event := d.pairABI.Events["Burn"]
	to, err := d.parseTo(event, log.Topics)
	if err != nil {
		return model.BurnEventData{}, err
	}

	amounts, err := unpackAmounts(event, log.Data, 3)
	if err != nil {
		return model.BurnEventData{}, err
	}

	return model.BurnEventData{
		To:        to.Hex(),
		Liquidity: amounts[0],
		Amount0:   amounts[1],
		Amount1:   amounts[2],
	}, nil
}

func (d *PairDecoder) decodeSync(log model.LogRecord) (model.SyncEventData, error) {
	event := d.pairABI.Events["Sync"]
	if _, err := parseIndexedTopics(event, log.Topics); err != nil {
		return model.SyncEventData{}, err
	}

	amounts, err := unpackAmounts(event, log.Data, 2)
	if err != nil {
		return model.SyncEventData{}, err
	}

	return model.SyncEventData{Reserve0: amounts[0], Reserve1: amounts[1]}, nil
}

// parseTo reads the single indexed recipient of Mint, Burn and Swap.
func (d *PairDecoder) parseTo(event abi.Event, topics []string) (common.Address, error) {
	indexedTopics, err := parseIndexedTopics(event, topics)
	if err != nil {
		return common.Address{}, err
	}
	var indexed struct {
		To common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return common.Address{}, fmt.Errorf("parse topics: %w", err)
	}
	return indexed.To, nil
}

func unpackAmounts(event abi.Event, dataHex string, want int) ([]string, error) {
	values, err := unpackNonIndexed(event, dataHex)
	if err != nil {
		return nil, err
	}
	if len(values) != want {
		return nil, fmt.Errorf("unexpected %s values: %d", strings.ToLower(event.Name), len(values))
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		amount, err := asBigInt(value)
		if err != nil {
			return nil, err
		}
		out = append(out, amount.String())
	}
	return out, nil
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}
