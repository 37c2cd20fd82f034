//go:build ignore

// Run: go run ./build-tools/loadgen.go -url nats://localhost:4222 -subject events.decoded -rps 500 -duration 60s -pools 8

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/big"
	mrand "math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
)

// Wire shape of one decoded event, mirrors internal/domain.Event.
type Event struct {
	Kind      string    `json:"kind"`
	Block     uint64    `json:"block"`
	Timestamp time.Time `json:"timestamp"`
	TxHash    string    `json:"tx_hash"`
	LogIndex  uint32    `json:"log_index"`
	EventID   string    `json:"event_id"`

	Pool    string `json:"pool"`
	Account string `json:"account"`

	Token  string   `json:"token,omitempty"`
	Amount *big.Int `json:"amount,omitempty"`

	TokenIn   string   `json:"token_in,omitempty"`
	TokenOut  string   `json:"token_out,omitempty"`
	AmountIn  *big.Int `json:"amount_in,omitempty"`
	AmountOut *big.Int `json:"amount_out,omitempty"`

	Balances []*big.Int `json:"balances,omitempty"`

	PoolName       string   `json:"pool_name,omitempty"`
	PoolSymbol     string   `json:"pool_symbol,omitempty"`
	InputTokens    []string `json:"input_tokens,omitempty"`
	FeeBasisPoints int64    `json:"fee_basis_points,omitempty"`

	SchemaVer uint16 `json:"schema_version"`
}

type world struct {
	pools    []string
	tokens   []string
	accounts []string

	block    uint64
	logIndex uint32
}

func main() {
	var (
		url      = flag.String("url", "nats://localhost:4222", "nats server url")
		subject  = flag.String("subject", "events.decoded", "subject carrying decoded events")
		rps      = flag.Int("rps", 500, "events per second target")
		duration = flag.Duration("duration", 30*time.Second, "how long to run")
		pools    = flag.Int("pools", 8, "number of pools to simulate")
		accounts = flag.Int("accounts", 64, "number of accounts to simulate")
	)
	flag.Parse()

	nc, err := nats.Connect(*url, nats.Name("subgraphx-loadgen"))
	if err != nil {
		fmt.Printf("nats connect error: %v\n", err)
		os.Exit(1)
	}
	defer nc.Close()

	w := newWorld(*pools, *accounts)

	// every pool gets its creation event before any traffic hits it
	for i, pool := range w.pools {
		ev := w.nextHeader("pool_created")
		ev.Pool = pool
		ev.PoolName = fmt.Sprintf("Pool %d", i)
		ev.PoolSymbol = fmt.Sprintf("P%d", i)
		ev.InputTokens = []string{w.tokens[2*i%len(w.tokens)], w.tokens[(2*i+1)%len(w.tokens)]}
		ev.FeeBasisPoints = 30
		publish(nc, *subject, ev)
	}

	fmt.Printf("loadgen → url=%s subject=%s rps=%d duration=%s pools=%d\n", *url, *subject, *rps, duration.String(), *pools)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	end := start.Add(*duration)

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	perTick := float64(*rps) / 10.0
	accum := 0.0
	sent := 0

loop:
	for {
		select {
		case <-ctx.Done():
			fmt.Println("signal received, stopping…")
			break loop
		case now := <-tick.C:
			if now.After(end) {
				break loop
			}

			accum += perTick
			batch := int(math.Floor(accum))
			if batch <= 0 {
				continue
			}
			accum -= float64(batch)

			for i := 0; i < batch; i++ {
				publish(nc, *subject, w.randomEvent())
				sent++
			}
		}
	}

	_ = nc.Flush()
	fmt.Printf("done, sent %d events\n", sent)
}

func newWorld(pools, accounts int) *world {
	w := &world{block: 20_000_000}

	for i := 0; i < pools; i++ {
		w.pools = append(w.pools, "0x"+randHex(40))
	}
	for i := 0; i < 2*pools; i++ {
		w.tokens = append(w.tokens, "0x"+randHex(40))
	}
	for i := 0; i < accounts; i++ {
		w.accounts = append(w.accounts, "0x"+randHex(40))
	}

	return w
}

// nextHeader advances the cursor so events stay in blockchain order.
func (w *world) nextHeader(kind string) *Event {
	w.logIndex++
	if w.logIndex > 20 || mrand.Intn(4) == 0 {
		w.block++
		w.logIndex = 0
	}

	tx := "0x" + randHex(64)
	return &Event{
		Kind:      kind,
		Block:     w.block,
		Timestamp: time.Now().UTC(),
		TxHash:    tx,
		LogIndex:  w.logIndex,
		EventID:   fmt.Sprintf("%d:%s:%d", w.block, tx, w.logIndex),
		SchemaVer: 1,
	}
}

func (w *world) randomEvent() *Event {
	poolIdx := mrand.Intn(len(w.pools))
	pool := w.pools[poolIdx]
	tokenA := w.tokens[2*poolIdx%len(w.tokens)]
	tokenB := w.tokens[(2*poolIdx+1)%len(w.tokens)]
	account := w.accounts[mrand.Intn(len(w.accounts))]

	amount := randAmount()

	switch mrand.Intn(10) {
	case 0, 1, 2:
		ev := w.nextHeader("deposit")
		ev.Pool, ev.Account, ev.Token, ev.Amount = pool, account, tokenA, amount
		return ev
	case 3:
		ev := w.nextHeader("withdraw")
		ev.Pool, ev.Account, ev.Token, ev.Amount = pool, account, tokenA, amount
		return ev
	case 4:
		ev := w.nextHeader("sync")
		ev.Pool = pool
		ev.Balances = []*big.Int{randAmount(), randAmount()}
		return ev
	case 5:
		ev := w.nextHeader("borrow")
		ev.Pool, ev.Account, ev.Token, ev.Amount = pool, account, tokenB, amount
		return ev
	case 6:
		ev := w.nextHeader("repay")
		ev.Pool, ev.Account, ev.Token, ev.Amount = pool, account, tokenB, amount
		return ev
	default:
		ev := w.nextHeader("swap")
		ev.Pool, ev.Account = pool, account
		ev.TokenIn, ev.TokenOut = tokenA, tokenB
		ev.AmountIn, ev.AmountOut = amount, randAmount()
		return ev
	}
}

func publish(nc *nats.Conn, subject string, ev *Event) {
	data, _ := json.Marshal(ev)
	if err := nc.Publish(subject, data); err != nil {
		fmt.Printf("publish error: %v\n", err)
	}
}

func randAmount() *big.Int {
	// 1..10000 whole tokens at 18 decimals
	whole := big.NewInt(int64(1 + mrand.Intn(10_000)))
	return whole.Mul(whole, big.NewInt(1_000_000_000_000_000_000))
}

func randHex(n int) string {
	b := make([]byte, n/2)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
