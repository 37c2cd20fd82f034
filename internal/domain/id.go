package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Addr canonicalizes an address into the entity-ID form.
func Addr(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// EventID = "<block>:<tx_hash>:<log_index>"
func MakeEventID(block uint64, txHash string, logIndex uint32) string {
	return fmt.Sprintf("%d:%s:%d", block, strings.ToLower(txHash), logIndex)
}

// PositionID = "<account>-<pool>-<side>-<seq>"
func MakePositionID(account, pool string, side PositionSide, seq uint64) string {
	return fmt.Sprintf("%s-%s-%s-%d", account, pool, side, seq)
}

// ActivityID marks (bucket, account, kind) membership for per-period
// active-account counting. Re-marking the same tuple is a no-op by key.
func ActivityID(g Granularity, bucket int64, account string, kind EventKind) string {
	return fmt.Sprintf("%s:%d:%s:%s", g, bucket, account, kind)
}

type ParsedEventID struct {
	Block    uint64
	TxHash   string
	LogIndex uint32
}

func ParseEventID(id string) (ParsedEventID, error) {
	var out ParsedEventID
	parts := strings.Split(id, ":")
	if len(parts) != 3 {
		return out, fmt.Errorf("invalid event_id format: %s", id)
	}

	block, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return out, fmt.Errorf("invalid block, err=%v", err)
	}

	logIdx, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return out, fmt.Errorf("invalid log_index, err=%v", err)
	}

	out.Block = block
	out.TxHash = strings.ToLower(parts[1])
	out.LogIndex = uint32(logIdx)

	return out, nil
}
