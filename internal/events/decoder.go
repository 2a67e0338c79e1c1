package events

import (
	"go.uber.org/zap"

	"liquidityCore/internal/model"
)

// Decoder defines a log decoder.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error)
}

// DecodeContext provides shared dependencies for decoders. Pool metadata
// is learned from PairCreated logs and kept current by Sync logs, so logs
// must be decoded in emission order.
type DecodeContext struct {
	PoolMetaCache *PoolMetaCache
	Logger        *zap.Logger
}
