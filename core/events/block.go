package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"cdpledger/core/types"
)

const (
	// TypeBlockExecuted is emitted after a block is committed.
	TypeBlockExecuted = "block.executed"
	// TypeBlockRejected is emitted when a block fails. Events emitted while
	// executing it are void.
	TypeBlockRejected = "block.rejected"
)

type BlockExecuted struct {
	Height    uint64
	Hash      common.Hash
	StateRoot common.Hash
	TxCount   int
}

func (BlockExecuted) EventType() string { return TypeBlockExecuted }

func (e BlockExecuted) Event() *types.Event {
	return &types.Event{Type: TypeBlockExecuted, Attributes: map[string]string{
		"height":    strconv.FormatUint(e.Height, 10),
		"hash":      e.Hash.Hex(),
		"stateRoot": e.StateRoot.Hex(),
		"txs":       strconv.Itoa(e.TxCount),
	}}
}

type BlockRejected struct {
	Height uint64
	// Reason is the reject reason of the failing transaction, if any.
	Reason string
	Err    string
}

func (BlockRejected) EventType() string { return TypeBlockRejected }

func (e BlockRejected) Event() *types.Event {
	attrs := map[string]string{
		"height": strconv.FormatUint(e.Height, 10),
		"error":  e.Err,
	}
	if e.Reason != "" {
		attrs["reason"] = e.Reason
	}
	return &types.Event{Type: TypeBlockRejected, Attributes: attrs}
}
