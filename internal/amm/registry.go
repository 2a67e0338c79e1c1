package amm

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"liquidityCore/internal/ledger"
)

// poolInitCodeHash stands in for the CREATE2 init code hash when deriving
// pool addresses.
var poolInitCodeHash = crypto.Keccak256([]byte("liquidityCore/pool"))

type pairKey struct {
	token0 common.Address
	token1 common.Address
}

// SortAssets returns a and b in canonical (byte-wise ascending) order.
func SortAssets(a, b common.Address) (token0, token1 common.Address, err error) {
	if a == b {
		return common.Address{}, common.Address{}, fmt.Errorf("%w: %s", ErrIdenticalAssets, a.Hex())
	}
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	if a == (common.Address{}) {
		return common.Address{}, common.Address{}, ErrZeroAddress
	}
	return a, b, nil
}

// PoolAddress derives the pool account for a canonical pair under registry.
func PoolAddress(registry, token0, token1 common.Address) common.Address {
	salt := crypto.Keccak256Hash(token0.Bytes(), token1.Bytes())
	return crypto.CreateAddress2(registry, salt, poolInitCodeHash)
}

// Registry maps each unordered asset pair to exactly one Pool.
type Registry struct {
	cfg    Config
	ledger ledger.Ledger
	logger *zap.Logger

	mu    sync.RWMutex
	pools map[pairKey]*Pool
	all   []*Pool
}

func NewRegistry(cfg Config, l ledger.Ledger, logger *zap.Logger) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if l == nil {
		return nil, fmt.Errorf("%w: ledger is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		cfg:    cfg,
		ledger: l,
		logger: logger,
		pools:  make(map[pairKey]*Pool),
	}, nil
}

func (r *Registry) Address() common.Address { return r.cfg.Address }
func (r *Registry) Ledger() ledger.Ledger   { return r.ledger }
func (r *Registry) Config() Config          { return r.cfg }

// GetPool looks up the pool for a pair in either order.
func (r *Registry) GetPool(a, b common.Address) (*Pool, bool) {
	token0, token1, err := SortAssets(a, b)
	if err != nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[pairKey{token0, token1}]
	return p, ok
}

// GetOrCreatePool returns the pool for a pair, creating an empty one on first
// request. Creation fails if the ledger already records a share supply at the
// pool's address.
func (r *Registry) GetOrCreatePool(a, b common.Address) (*Pool, error) {
	token0, token1, err := SortAssets(a, b)
	if err != nil {
		return nil, err
	}
	key := pairKey{token0, token1}

	r.mu.RLock()
	p, ok := r.pools[key]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pools[key]; ok {
		return p, nil
	}
	address := PoolAddress(r.cfg.Address, token0, token1)
	if supply := r.ledger.TotalSupply(address); !supply.IsZero() {
		return nil, fmt.Errorf("%w: %s has supply %s", ErrPoolAddressInUse, address.Hex(), supply.Dec())
	}
	p = newPool(address, token0, token1, r.cfg, r.ledger, r.logger)
	r.pools[key] = p
	r.all = append(r.all, p)

	r.cfg.sink().Emit(PairCreatedEvent{
		Registry: r.cfg.Address,
		Token0:   token0,
		Token1:   token1,
		Pool:     address,
		FeeBps:   r.cfg.FeeBps,
		Index:    uint64(len(r.all)),
	})
	r.logger.Info("pool created",
		zap.String("pool", address.Hex()),
		zap.String("token0", token0.Hex()),
		zap.String("token1", token1.Hex()),
		zap.Int("index", len(r.all)),
	)
	return p, nil
}

// emptyPool builds an unregistered pool for dry runs.
func (r *Registry) emptyPool(token0, token1 common.Address) *Pool {
	return newPool(PoolAddress(r.cfg.Address, token0, token1), token0, token1, r.cfg, r.ledger, r.logger)
}

// AllPools lists pools in creation order.
func (r *Registry) AllPools() []*Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Pool, len(r.all))
	copy(out, r.all)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}

// lockPools locks every distinct pool in ascending address order and returns
// the matching unlock.
func lockPools(pools []*Pool) (unlock func()) {
	seen := make(map[common.Address]struct{}, len(pools))
	ordered := make([]*Pool, 0, len(pools))
	for _, p := range pools {
		if _, ok := seen[p.address]; ok {
			continue
		}
		seen[p.address] = struct{}{}
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return bytes.Compare(ordered[i].address[:], ordered[j].address[:]) < 0
	})
	for _, p := range ordered {
		p.mu.Lock()
	}
	return func() {
		for i := len(ordered) - 1; i >= 0; i-- {
			ordered[i].mu.Unlock()
		}
	}
}
