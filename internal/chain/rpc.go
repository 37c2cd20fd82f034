package chain

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"gitlab.com/nevasik7/alerting/logger"
)

// 4-byte selectors of the views we read.
var (
	selName          = []byte{0x06, 0xfd, 0xde, 0x03} // name()
	selSymbol        = []byte{0x95, 0xd8, 0x9b, 0x41} // symbol()
	selDecimals      = []byte{0x31, 0x3c, 0xe5, 0x67} // decimals()
	selTotalSupply   = []byte{0x18, 0x16, 0x0d, 0xdd} // totalSupply()
	selGetAmountsOut = []byte{0xd0, 0x6c, 0xa6, 0x1f} // getAmountsOut(uint256,address[])
	selLatestRound   = []byte{0xfe, 0xaf, 0x96, 0x8c} // latestRoundData()
)

// RPCBackend reads chain state over JSON-RPC. Every failed or malformed call
// maps to Reverted; the pipeline substitutes defaults and keeps going.
type RPCBackend struct {
	log    logger.Logger
	client *ethclient.Client

	mu           sync.RWMutex
	feedDecimals map[common.Address]uint8
}

var _ Caller = (*RPCBackend)(nil)

func NewRPCBackend(ctx context.Context, log logger.Logger, url string) (*RPCBackend, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}

	return &RPCBackend{
		log:          log,
		client:       client,
		feedDecimals: make(map[common.Address]uint8),
	}, nil
}

func (b *RPCBackend) Close() {
	b.client.Close()
}

// call performs eth_call at the given height; block 0 means latest.
func (b *RPCBackend) call(ctx context.Context, to common.Address, data []byte, block uint64) ([]byte, bool) {
	var height *big.Int
	if block > 0 {
		height = new(big.Int).SetUint64(block)
	}

	out, err := b.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, height)
	if err != nil {
		b.log.Debugf("eth_call to %s reverted at block %d, error=%v", to.Hex(), block, err)
		return nil, false
	}
	return out, true
}

func (b *RPCBackend) TokenName(ctx context.Context, token common.Address, block uint64) CallResult[string] {
	out, ok := b.call(ctx, token, selName, block)
	if !ok {
		return Reverted[string]()
	}
	s, ok := decodeString(out)
	if !ok {
		return Reverted[string]()
	}
	return Ok(s)
}

func (b *RPCBackend) TokenSymbol(ctx context.Context, token common.Address, block uint64) CallResult[string] {
	out, ok := b.call(ctx, token, selSymbol, block)
	if !ok {
		return Reverted[string]()
	}
	s, ok := decodeString(out)
	if !ok {
		return Reverted[string]()
	}
	return Ok(s)
}

func (b *RPCBackend) TokenDecimals(ctx context.Context, token common.Address, block uint64) CallResult[uint8] {
	out, ok := b.call(ctx, token, selDecimals, block)
	if !ok || len(out) < 32 {
		return Reverted[uint8]()
	}
	return Ok(out[31])
}

func (b *RPCBackend) OutputTokenSupply(ctx context.Context, token common.Address, block uint64) CallResult[*big.Int] {
	out, ok := b.call(ctx, token, selTotalSupply, block)
	if !ok || len(out) < 32 {
		return Reverted[*big.Int]()
	}
	return Ok(new(big.Int).SetBytes(out[:32]))
}

func (b *RPCBackend) RouterAmountsOut(ctx context.Context, router common.Address, amountIn *big.Int, path []common.Address, block uint64) CallResult[*big.Int] {
	if amountIn == nil || len(path) < 2 {
		return Reverted[*big.Int]()
	}

	data := encodeGetAmountsOut(amountIn, path)
	out, ok := b.call(ctx, router, data, block)
	if !ok {
		return Reverted[*big.Int]()
	}

	amounts, ok := decodeUint256Array(out)
	if !ok || len(amounts) != len(path) {
		return Reverted[*big.Int]()
	}
	return Ok(amounts[len(amounts)-1])
}

func (b *RPCBackend) FeedLatestPrice(ctx context.Context, feed common.Address, block uint64) CallResult[decimal.Decimal] {
	out, ok := b.call(ctx, feed, selLatestRound, block)
	if !ok || len(out) < 160 {
		return Reverted[decimal.Decimal]()
	}

	// latestRoundData() = (roundId, answer, startedAt, updatedAt, answeredInRound)
	answer := decodeInt256(out[32:64])
	if answer.Sign() <= 0 {
		return Reverted[decimal.Decimal]()
	}

	dec, ok := b.decimalsOf(ctx, feed, block)
	if !ok {
		return Reverted[decimal.Decimal]()
	}

	return Ok(decimal.NewFromBigInt(answer, -int32(dec)))
}

// decimalsOf reads and caches a feed's answer scale. Feed decimals never
// change after deployment.
func (b *RPCBackend) decimalsOf(ctx context.Context, feed common.Address, block uint64) (uint8, bool) {
	b.mu.RLock()
	dec, ok := b.feedDecimals[feed]
	b.mu.RUnlock()
	if ok {
		return dec, true
	}

	out, ok := b.call(ctx, feed, selDecimals, block)
	if !ok || len(out) < 32 {
		return 0, false
	}
	dec = out[31]

	b.mu.Lock()
	b.feedDecimals[feed] = dec
	b.mu.Unlock()

	return dec, true
}

// --- raw ABI helpers ---

func encodeGetAmountsOut(amountIn *big.Int, path []common.Address) []byte {
	data := make([]byte, 0, 4+32*(3+len(path)))
	data = append(data, selGetAmountsOut...)
	data = append(data, leftPad32(amountIn.Bytes())...)
	data = append(data, leftPad32(big.NewInt(64).Bytes())...) // offset of path
	data = append(data, leftPad32(big.NewInt(int64(len(path))).Bytes())...)
	for _, addr := range path {
		data = append(data, leftPad32(addr.Bytes())...)
	}
	return data
}

func leftPad32(b []byte) []byte {
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

// decodeString handles both ABI dynamic strings and legacy bytes32 symbols.
func decodeString(out []byte) (string, bool) {
	if len(out) == 32 {
		return strings.TrimRight(string(out), "\x00"), true
	}
	if len(out) < 64 {
		return "", false
	}

	offset := new(big.Int).SetBytes(out[:32]).Uint64()
	if offset+32 > uint64(len(out)) {
		return "", false
	}
	strLen := new(big.Int).SetBytes(out[offset : offset+32]).Uint64()
	if offset+32+strLen > uint64(len(out)) {
		return "", false
	}

	return string(out[offset+32 : offset+32+strLen]), true
}

func decodeUint256Array(out []byte) ([]*big.Int, bool) {
	if len(out) < 64 {
		return nil, false
	}

	offset := new(big.Int).SetBytes(out[:32]).Uint64()
	if offset+32 > uint64(len(out)) {
		return nil, false
	}
	n := new(big.Int).SetBytes(out[offset : offset+32]).Uint64()
	if offset+32+32*n > uint64(len(out)) {
		return nil, false
	}

	arr := make([]*big.Int, 0, n)
	for i := uint64(0); i < n; i++ {
		start := offset + 32 + 32*i
		arr = append(arr, new(big.Int).SetBytes(out[start:start+32]))
	}
	return arr, true
}

// decodeInt256 interprets a 32-byte word as a signed two's-complement value.
func decodeInt256(word []byte) *big.Int {
	v := new(big.Int).SetBytes(word)
	if word[0]&0x80 != 0 {
		max := new(big.Int).Lsh(big.NewInt(1), 256)
		v.Sub(v, max)
	}
	return v
}
