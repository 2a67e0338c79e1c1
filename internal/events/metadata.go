package events

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"liquidityCore/internal/model"
)

// PoolMetaCache caches pool metadata by address.
type PoolMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.PoolMeta
}

func NewPoolMetaCache() *PoolMetaCache {
	return &PoolMetaCache{data: make(map[common.Address]model.PoolMeta)}
}

func (c *PoolMetaCache) Get(address common.Address) (model.PoolMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *PoolMetaCache) Set(address common.Address, meta model.PoolMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// SetReserves records the reserves of a known pool. It reports false when
// the pool has no metadata yet.
func (c *PoolMetaCache) SetReserves(address common.Address, reserve0, reserve1 string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	meta, ok := c.data[address]
	if !ok {
		return false
	}
	meta.Reserve0 = reserve0
	meta.Reserve1 = reserve1
	c.data[address] = meta
	return true
}

// Len returns the number of cached pools.
func (c *PoolMetaCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint16(value interface{}) (uint16, error) {
	switch v := value.(type) {
	case uint16:
		return v, nil
	case *big.Int:
		if !v.IsUint64() || v.Uint64() > 0xffff {
			return 0, fmt.Errorf("uint16 overflow: %s", v.String())
		}
		return uint16(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint16 type %T", value)
	}
}
