package chain

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// SimBackend is a deterministic in-memory Caller for tests and the load
// generator. Unregistered addresses revert, same as an unknown contract would.
type SimBackend struct {
	mu sync.RWMutex

	tokens   map[common.Address]SimToken
	feeds    map[common.Address]decimal.Decimal
	supplies map[common.Address]*big.Int

	// quote rate per (tokenIn, tokenOut) pair, output units per input unit
	rates map[[2]common.Address]decimal.Decimal

	// addresses forced to revert on every call
	broken map[common.Address]bool
}

type SimToken struct {
	Name     string
	Symbol   string
	Decimals uint8
}

func NewSimBackend() *SimBackend {
	return &SimBackend{
		tokens:   make(map[common.Address]SimToken),
		feeds:    make(map[common.Address]decimal.Decimal),
		supplies: make(map[common.Address]*big.Int),
		rates:    make(map[[2]common.Address]decimal.Decimal),
		broken:   make(map[common.Address]bool),
	}
}

func (s *SimBackend) RegisterToken(addr common.Address, t SimToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[addr] = t
}

func (s *SimBackend) RegisterFeed(feed common.Address, priceUSD decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds[feed] = priceUSD
}

func (s *SimBackend) RegisterSupply(token common.Address, supply *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supplies[token] = new(big.Int).Set(supply)
}

// RegisterRate sets the router quote rate from in to out, in output units per
// one input unit (decimals-adjusted by the caller).
func (s *SimBackend) RegisterRate(in, out common.Address, rate decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[[2]common.Address{in, out}] = rate
}

// Break makes every call against addr revert.
func (s *SimBackend) Break(addr common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broken[addr] = true
}

func (s *SimBackend) TokenName(_ context.Context, token common.Address, _ uint64) CallResult[string] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.broken[token] {
		return Reverted[string]()
	}
	t, ok := s.tokens[token]
	if !ok {
		return Reverted[string]()
	}
	return Ok(t.Name)
}

func (s *SimBackend) TokenSymbol(_ context.Context, token common.Address, _ uint64) CallResult[string] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.broken[token] {
		return Reverted[string]()
	}
	t, ok := s.tokens[token]
	if !ok {
		return Reverted[string]()
	}
	return Ok(t.Symbol)
}

func (s *SimBackend) TokenDecimals(_ context.Context, token common.Address, _ uint64) CallResult[uint8] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.broken[token] {
		return Reverted[uint8]()
	}
	t, ok := s.tokens[token]
	if !ok {
		return Reverted[uint8]()
	}
	return Ok(t.Decimals)
}

func (s *SimBackend) RouterAmountsOut(_ context.Context, router common.Address, amountIn *big.Int, path []common.Address, _ uint64) CallResult[*big.Int] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.broken[router] || len(path) < 2 || amountIn == nil {
		return Reverted[*big.Int]()
	}

	out := decimal.NewFromBigInt(amountIn, 0)
	for i := 0; i+1 < len(path); i++ {
		rate, ok := s.rates[[2]common.Address{path[i], path[i+1]}]
		if !ok {
			return Reverted[*big.Int]()
		}
		out = out.Mul(rate)
	}

	return Ok(out.Truncate(0).BigInt())
}

func (s *SimBackend) FeedLatestPrice(_ context.Context, feed common.Address, _ uint64) CallResult[decimal.Decimal] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.broken[feed] {
		return Reverted[decimal.Decimal]()
	}
	p, ok := s.feeds[feed]
	if !ok {
		return Reverted[decimal.Decimal]()
	}
	return Ok(p)
}

func (s *SimBackend) OutputTokenSupply(_ context.Context, token common.Address, _ uint64) CallResult[*big.Int] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.broken[token] {
		return Reverted[*big.Int]()
	}
	sup, ok := s.supplies[token]
	if !ok {
		return Reverted[*big.Int]()
	}
	return Ok(new(big.Int).Set(sup))
}
