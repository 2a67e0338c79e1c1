package events

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"liquidityCore/internal/amm"
	"liquidityCore/internal/ledger"
	"liquidityCore/internal/model"
)

func TestRecorderLogsDecodeInOrder(t *testing.T) {
	recorder, err := NewRecorder(1337, zap.NewNop())
	require.NoError(t, err)

	l := ledger.NewMemory()
	cfg := amm.DefaultConfig()
	cfg.Sink = recorder
	cfg.Clock = func() time.Time { return time.Unix(1_700_000_000, 0) }
	registry, err := amm.NewRegistry(cfg, l, nil)
	require.NoError(t, err)
	router := amm.NewRouter(registry, nil)

	alice := common.HexToAddress("0x0000000000000000000000000000000000a11ce0")
	for _, token := range []common.Address{testToken0, testToken1} {
		require.NoError(t, l.Mint(token, alice, uint256.NewInt(1_000)))
		require.NoError(t, l.Approve(token, alice, router.Address(), new(uint256.Int).SetAllOne()))
	}
	deadline := time.Unix(1_700_003_600, 0)

	recorder.Begin(1, 1_700_000_000)
	_, _, _, err = router.AddLiquidity(alice, amm.AddLiquidityParams{
		AssetA: testToken0, AssetB: testToken1,
		AmountADesired: uint256.NewInt(40), AmountBDesired: uint256.NewInt(40),
		Recipient: alice, Deadline: deadline,
	})
	require.NoError(t, err)

	recorder.Begin(2, 1_700_000_060)
	_, err = router.SwapExactTokensForTokens(alice, amm.SwapExactInParams{
		AmountIn: uint256.NewInt(20), Path: []common.Address{testToken0, testToken1},
		Recipient: alice, Deadline: deadline,
	})
	require.NoError(t, err)

	records, err := recorder.Drain()
	require.NoError(t, err)
	require.Len(t, records, 5)
	require.Equal(t, registry.Address().Hex(), records[0].Address)
	require.Equal(t, uint64(1), records[2].BlockNumber)
	require.Equal(t, uint64(2), records[2].LogIndex)
	require.Equal(t, uint64(2), records[3].BlockNumber)
	require.Equal(t, uint64(0), records[3].LogIndex)
	require.Equal(t, uint64(1_700_000_060), records[4].Timestamp)
	require.NotEqual(t, records[0].TxHash, records[3].TxHash)

	decoder, err := NewPairDecoder(DecoderConfig{})
	require.NoError(t, err)
	ctx := DecodeContext{PoolMetaCache: NewPoolMetaCache(), Logger: zap.NewNop()}

	names := make([]string, 0, len(records))
	var typed []*model.TypedEvent
	for _, record := range records {
		require.True(t, decoder.CanDecode(record.Topics[0]))
		event, err := decoder.Decode(record, ctx)
		require.NoError(t, err)
		names = append(names, event.EventName)
		typed = append(typed, event)
	}
	require.Equal(t, []string{"PairCreated", "Mint", "Sync", "Swap", "Sync"}, names)

	created := typed[0].Decoded.(model.PairCreatedEventData)
	require.Equal(t, uint16(amm.DefaultFeeBps), created.FeeBps)
	require.Equal(t, "1", created.Index)

	swap := typed[3].Decoded.(model.SwapEventData)
	require.Equal(t, "20", swap.Amount0In)
	require.Equal(t, "12", swap.Amount1Out)
	require.Equal(t, alice.Hex(), swap.To)
	require.Equal(t, "40", typed[3].PoolMeta.Reserve0)

	sync := typed[4].Decoded.(model.SyncEventData)
	require.Equal(t, "60", sync.Reserve0)
	require.Equal(t, "28", sync.Reserve1)

	again, err := recorder.Drain()
	require.NoError(t, err)
	require.Empty(t, again)
}

func TestRecorderMuted(t *testing.T) {
	recorder, err := NewRecorder(1, nil)
	require.NoError(t, err)

	recorder.SetMuted(true)
	recorder.Emit(amm.SyncEvent{Pool: testPool, Reserve0: uint256.NewInt(1), Reserve1: uint256.NewInt(2)})
	records, err := recorder.Drain()
	require.NoError(t, err)
	require.Empty(t, records)

	recorder.SetMuted(false)
	recorder.Emit(amm.SyncEvent{Pool: testPool, Reserve0: uint256.NewInt(1), Reserve1: uint256.NewInt(2)})
	records, err = recorder.Drain()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, testPool.Hex(), records[0].Address)
}

func TestEncodeEventRejectsOversizedReserve(t *testing.T) {
	pairABI, err := PairABI()
	require.NoError(t, err)
	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 112)
	_, _, err = EncodeEvent(pairABI, amm.SyncEvent{Pool: testPool, Reserve0: huge, Reserve1: uint256.NewInt(1)})
	require.Error(t, err)
}
