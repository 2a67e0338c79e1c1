package events

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"liquidityCore/internal/amm"
	"liquidityCore/internal/model"
)

// Recorder implements amm.EventSink by ABI-encoding every event into a
// model.LogRecord. Records are grouped by sequence number: one replayed
// operation is one block holding one transaction.
type Recorder struct {
	mu        sync.Mutex
	pairABI   abi.ABI
	chainID   uint64
	seq       uint64
	timestamp uint64
	logIndex  uint64
	muted     bool
	records   []model.LogRecord
	err       error
	logger    *zap.Logger
}

// NewRecorder builds a Recorder for a chain id.
func NewRecorder(chainID uint64, logger *zap.Logger) (*Recorder, error) {
	pairABI, err := PairABI()
	if err != nil {
		return nil, fmt.Errorf("parse pair abi: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{pairABI: pairABI, chainID: chainID, logger: logger}, nil
}

// Begin starts a new sequence. Subsequent events are stamped with seq and
// timestamp, with log indexes restarting at zero.
func (r *Recorder) Begin(seq, timestamp uint64) {
	r.mu.Lock()
	r.seq = seq
	r.timestamp = timestamp
	r.logIndex = 0
	r.mu.Unlock()
}

// SetMuted drops events while muted is true. Used when fast-forwarding
// already persisted operations.
func (r *Recorder) SetMuted(muted bool) {
	r.mu.Lock()
	r.muted = muted
	r.mu.Unlock()
}

// Emit encodes the event and buffers it. Encoding failures are reported by
// the next Drain.
func (r *Recorder) Emit(event amm.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.muted {
		return
	}

	topics, data, err := EncodeEvent(r.pairABI, event)
	if err != nil {
		r.logger.Warn("encode event", zap.String("event", event.EventName()), zap.Error(err))
		if r.err == nil {
			r.err = err
		}
		return
	}

	hexTopics := make([]string, 0, len(topics))
	for _, topic := range topics {
		hexTopics = append(hexTopics, topic.Hex())
	}
	r.records = append(r.records, model.LogRecord{
		ChainID:     r.chainID,
		BlockNumber: r.seq,
		BlockHash:   seqHash("block", r.chainID, r.seq).Hex(),
		TxHash:      seqHash("tx", r.chainID, r.seq).Hex(),
		LogIndex:    r.logIndex,
		Address:     event.Emitter().Hex(),
		Topics:      hexTopics,
		Data:        hexutil.Encode(data),
		Timestamp:   r.timestamp,
		IngestedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	})
	r.logIndex++
}

// Drain returns the buffered records and resets the buffer.
func (r *Recorder) Drain() ([]model.LogRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	records, err := r.records, r.err
	r.records, r.err = nil, nil
	return records, err
}

// EncodeEvent returns the topics and data of an amm event under the pair ABI.
func EncodeEvent(pairABI abi.ABI, event amm.Event) ([]common.Hash, []byte, error) {
	spec, ok := pairABI.Events[event.EventName()]
	if !ok {
		return nil, nil, fmt.Errorf("unsupported event name: %s", event.EventName())
	}

	var (
		indexed []common.Hash
		values  []interface{}
	)
	switch ev := event.(type) {
	case amm.PairCreatedEvent:
		if ev.FeeBps > 0xffff {
			return nil, nil, fmt.Errorf("fee bps %d does not fit uint16", ev.FeeBps)
		}
		indexed = []common.Hash{addressTopic(ev.Token0), addressTopic(ev.Token1)}
		values = []interface{}{ev.Pool, uint16(ev.FeeBps), new(big.Int).SetUint64(ev.Index)}
	case amm.MintEvent:
		indexed = []common.Hash{addressTopic(ev.To)}
		values = []interface{}{toBig(ev.Amount0), toBig(ev.Amount1), toBig(ev.Shares)}
	case amm.BurnEvent:
		indexed = []common.Hash{addressTopic(ev.To)}
		values = []interface{}{toBig(ev.Shares), toBig(ev.Amount0), toBig(ev.Amount1)}
	case amm.SwapEvent:
		indexed = []common.Hash{addressTopic(ev.To)}
		values = []interface{}{toBig(ev.Amount0In), toBig(ev.Amount1In), toBig(ev.Amount0Out), toBig(ev.Amount1Out)}
	case amm.SyncEvent:
		if toBig(ev.Reserve0).Cmp(maxUint112) > 0 || toBig(ev.Reserve1).Cmp(maxUint112) > 0 {
			return nil, nil, fmt.Errorf("sync reserves exceed uint112")
		}
		values = []interface{}{toBig(ev.Reserve0), toBig(ev.Reserve1)}
	default:
		return nil, nil, fmt.Errorf("unsupported event type %T", event)
	}

	data, err := spec.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		return nil, nil, fmt.Errorf("pack %s: %w", spec.Name, err)
	}
	return append([]common.Hash{spec.ID}, indexed...), data, nil
}

var maxUint112 = amm.MaxReserve.ToBig()

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func toBig(x *uint256.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x.ToBig()
}

func seqHash(kind string, chainID, seq uint64) common.Hash {
	buf := make([]byte, 0, len(kind)+16)
	buf = append(buf, kind...)
	buf = binary.BigEndian.AppendUint64(buf, chainID)
	buf = binary.BigEndian.AppendUint64(buf, seq)
	return crypto.Keccak256Hash(buf)
}
