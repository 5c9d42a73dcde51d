package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"cdpledger/core/types"
)

const (
	// TypeTransfer is emitted for every coin transfer leg.
	TypeTransfer = "transfer.coin"
	// TypeAccountRegistered is emitted when an account receives a regid.
	TypeAccountRegistered = "account.registered"
)

type Transfer struct {
	Symbol      string
	From        types.KeyID
	To          types.KeyID
	Amount      uint64
	FrictionFee uint64
	TxID        common.Hash
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{
		"symbol": e.Symbol,
		"from":   e.From.Address(),
		"to":     e.To.Address(),
		"amount": strconv.FormatUint(e.Amount, 10),
		"txid":   e.TxID.Hex(),
	}
	if e.FrictionFee > 0 {
		attrs["frictionFee"] = strconv.FormatUint(e.FrictionFee, 10)
	}
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}

type AccountRegistered struct {
	KeyID types.KeyID
	RegID types.RegID
}

func (AccountRegistered) EventType() string { return TypeAccountRegistered }

func (e AccountRegistered) Event() *types.Event {
	return &types.Event{Type: TypeAccountRegistered, Attributes: map[string]string{
		"address": e.KeyID.Address(),
		"regid":   e.RegID.String(),
	}}
}
