package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"liquidityCore/internal/model"
)

var (
	testPool   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testToken0 = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	testToken1 = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func newTestContext() DecodeContext {
	cache := NewPoolMetaCache()
	cache.Set(testPool, model.PoolMeta{
		Token0: testToken0.Hex(),
		Token1: testToken1.Hex(),
		FeeBps: 30,
	})
	return DecodeContext{PoolMetaCache: cache, Logger: zap.NewNop()}
}

func TestPairDecoderSwap(t *testing.T) {
	pairABI, err := PairABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	decoder, err := NewPairDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	to := common.HexToAddress("0x3333333333333333333333333333333333333333")
	data, err := pairABI.Events["Swap"].Inputs.NonIndexed().Pack(
		big.NewInt(20),
		big.NewInt(0),
		big.NewInt(0),
		big.NewInt(12),
	)
	if err != nil {
		t.Fatalf("pack swap: %v", err)
	}

	logRecord := buildLogRecord(testPool, pairABI.Events["Swap"].ID, data, []common.Hash{topicFromAddress(to)})
	event, err := decoder.Decode(logRecord, newTestContext())
	if err != nil {
		t.Fatalf("decode swap: %v", err)
	}

	swap, ok := event.Decoded.(model.SwapEventData)
	if !ok {
		t.Fatalf("decoded type mismatch")
	}
	if swap.Amount0In != "20" || swap.Amount1In != "0" || swap.Amount0Out != "0" || swap.Amount1Out != "12" {
		t.Fatalf("amounts mismatch: %+v", swap)
	}
	if swap.To != to.Hex() {
		t.Fatalf("recipient mismatch: %s", swap.To)
	}
	if event.PoolMeta.FeeBps != 30 || event.PoolMeta.Token0 != testToken0.Hex() {
		t.Fatalf("pool meta mismatch: %+v", event.PoolMeta)
	}
}

func TestPairDecoderMintBurnSync(t *testing.T) {
	pairABI, err := PairABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewPairDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	ctx := newTestContext()
	owner := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")

	mintData, err := pairABI.Events["Mint"].Inputs.NonIndexed().Pack(big.NewInt(100), big.NewInt(400), big.NewInt(200))
	if err != nil {
		t.Fatalf("pack mint: %v", err)
	}
	mintEvent, err := decoder.Decode(buildLogRecord(testPool, pairABI.Events["Mint"].ID, mintData, []common.Hash{topicFromAddress(owner)}), ctx)
	if err != nil {
		t.Fatalf("decode mint: %v", err)
	}
	mint, ok := mintEvent.Decoded.(model.MintEventData)
	if !ok {
		t.Fatalf("mint type mismatch")
	}
	if mint.Amount0 != "100" || mint.Amount1 != "400" || mint.Liquidity != "200" || mint.To != owner.Hex() {
		t.Fatalf("mint mismatch: %+v", mint)
	}

	burnData, err := pairABI.Events["Burn"].Inputs.NonIndexed().Pack(big.NewInt(50), big.NewInt(25), big.NewInt(100))
	if err != nil {
		t.Fatalf("pack burn: %v", err)
	}
	burnEvent, err := decoder.Decode(buildLogRecord(testPool, pairABI.Events["Burn"].ID, burnData, []common.Hash{topicFromAddress(owner)}), ctx)
	if err != nil {
		t.Fatalf("decode burn: %v", err)
	}
	burn, ok := burnEvent.Decoded.(model.BurnEventData)
	if !ok {
		t.Fatalf("burn type mismatch")
	}
	if burn.Liquidity != "50" || burn.Amount0 != "25" || burn.Amount1 != "100" {
		t.Fatalf("burn mismatch: %+v", burn)
	}

	syncData, err := pairABI.Events["Sync"].Inputs.NonIndexed().Pack(big.NewInt(75), big.NewInt(300))
	if err != nil {
		t.Fatalf("pack sync: %v", err)
	}
	syncEvent, err := decoder.Decode(buildLogRecord(testPool, pairABI.Events["Sync"].ID, syncData, nil), ctx)
	if err != nil {
		t.Fatalf("decode sync: %v", err)
	}
	if syncEvent.PoolMeta.Reserve0 != "75" || syncEvent.PoolMeta.Reserve1 != "300" {
		t.Fatalf("sync meta mismatch: %+v", syncEvent.PoolMeta)
	}
	cached, _ := ctx.PoolMetaCache.Get(testPool)
	if cached.Reserve0 != "75" || cached.Reserve1 != "300" {
		t.Fatalf("cache not updated: %+v", cached)
	}
}

func TestPairDecoderPairCreatedFillsCache(t *testing.T) {
	pairABI, err := PairABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewPairDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	ctx := DecodeContext{PoolMetaCache: NewPoolMetaCache(), Logger: zap.NewNop()}
	registry := common.HexToAddress("0x0000000000000000000000000000000000000f00")
	pair := common.HexToAddress("0x2222222222222222222222222222222222222222")

	data, err := pairABI.Events["PairCreated"].Inputs.NonIndexed().Pack(pair, uint16(25), big.NewInt(1))
	if err != nil {
		t.Fatalf("pack PairCreated: %v", err)
	}
	record := buildLogRecord(registry, pairABI.Events["PairCreated"].ID, data, []common.Hash{
		topicFromAddress(testToken0),
		topicFromAddress(testToken1),
	})

	swapData, err := pairABI.Events["Swap"].Inputs.NonIndexed().Pack(big.NewInt(1), big.NewInt(0), big.NewInt(0), big.NewInt(1))
	if err != nil {
		t.Fatalf("pack swap: %v", err)
	}
	early := buildLogRecord(pair, pairABI.Events["Swap"].ID, swapData, []common.Hash{topicFromAddress(pair)})
	if _, err := decoder.Decode(early, ctx); err == nil {
		t.Fatalf("expected error for unknown pool")
	}

	event, err := decoder.Decode(record, ctx)
	if err != nil {
		t.Fatalf("decode PairCreated: %v", err)
	}
	created, ok := event.Decoded.(model.PairCreatedEventData)
	if !ok {
		t.Fatalf("PairCreated type mismatch")
	}
	if created.Pair != pair.Hex() || created.FeeBps != 25 || created.Index != "1" {
		t.Fatalf("PairCreated mismatch: %+v", created)
	}

	meta, ok := ctx.PoolMetaCache.Get(pair)
	if !ok || meta.Token0 != testToken0.Hex() || meta.FeeBps != 25 {
		t.Fatalf("cache mismatch: %+v", meta)
	}
	if _, err := decoder.Decode(early, ctx); err != nil {
		t.Fatalf("decode swap after PairCreated: %v", err)
	}
}

func TestPairDecoderTopicMapAndErrors(t *testing.T) {
	if _, err := NewPairDecoder(DecoderConfig{Topic0Map: map[string]string{"0x01": "collect"}}); err == nil {
		t.Fatalf("expected error for unsupported event name")
	}

	alias := "0x00000000000000000000000000000000000000000000000000000000000000aa"
	decoder, err := NewPairDecoder(DecoderConfig{Topic0Map: map[string]string{alias: "sync"}})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	if !decoder.CanDecode(alias) {
		t.Fatalf("alias topic not decodable")
	}
	if decoder.CanDecode("") || decoder.CanDecode("0xdead") {
		t.Fatalf("unexpected decodable topic")
	}

	pairABI, _ := PairABI()
	data, err := pairABI.Events["Sync"].Inputs.NonIndexed().Pack(big.NewInt(1), big.NewInt(2))
	if err != nil {
		t.Fatalf("pack sync: %v", err)
	}
	aliased := buildLogRecord(testPool, common.HexToHash(alias), data, nil)
	if _, err := decoder.Decode(aliased, newTestContext()); err != nil {
		t.Fatalf("decode aliased sync: %v", err)
	}

	extraTopic := buildLogRecord(testPool, pairABI.Events["Sync"].ID, data, []common.Hash{topicFromAddress(testPool)})
	if _, err := decoder.Decode(extraTopic, newTestContext()); err == nil {
		t.Fatalf("expected topic count error")
	}

	truncated := buildLogRecord(testPool, pairABI.Events["Sync"].ID, data[:32], nil)
	if _, err := decoder.Decode(truncated, newTestContext()); err == nil {
		t.Fatalf("expected unpack error")
	}
}

func buildLogRecord(emitter common.Address, topic0 common.Hash, data []byte, indexed []common.Hash) model.LogRecord {
	topics := make([]string, 0, len(indexed)+1)
	topics = append(topics, topic0.Hex())
	for _, topic := range indexed {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		ChainID:     1337,
		BlockNumber: 12345,
		BlockHash:   "0xabc",
		TxHash:      "0xdef",
		LogIndex:    1,
		Address:     emitter.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(data),
		Timestamp:   1700000000,
	}
}

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}
