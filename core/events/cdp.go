package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"cdpledger/core/types"
)

const (
	TypeCDPOpened          = "cdp.opened"
	TypeCDPStaked          = "cdp.staked"
	TypeCDPRedeemed        = "cdp.redeemed"
	TypeCDPLiquidated      = "cdp.liquidated"
	TypeCDPInterestSettled = "cdp.interest_settled"
	// TypeCDPClosed is emitted once per position, whatever closed it.
	TypeCDPClosed = "cdp.closed"
)

// CDPUpdated carries a position as stored after a transaction changed it.
// Kind is one of the cdp.* types other than TypeCDPClosed.
type CDPUpdated struct {
	Kind   string
	CDP    types.UserCDP
	TxID   common.Hash
	Height uint64
}

func (e CDPUpdated) EventType() string { return e.Kind }

func (e CDPUpdated) Event() *types.Event {
	attrs := cdpAttrs(e.CDP, e.TxID, e.Height)
	attrs["staked"] = strconv.FormatUint(e.CDP.TotalStakedBcoins, 10)
	attrs["owed"] = strconv.FormatUint(e.CDP.TotalOwedScoins, 10)
	return &types.Event{Type: e.Kind, Attributes: attrs}
}

type CDPClosed struct {
	CDP       types.UserCDP
	CloseType types.CdpCloseType
	TxID      common.Hash
	Height    uint64
}

func (CDPClosed) EventType() string { return TypeCDPClosed }

func (e CDPClosed) Event() *types.Event {
	attrs := cdpAttrs(e.CDP, e.TxID, e.Height)
	attrs["closeType"] = e.CloseType.String()
	return &types.Event{Type: TypeCDPClosed, Attributes: attrs}
}

func cdpAttrs(cdp types.UserCDP, txid common.Hash, height uint64) map[string]string {
	return map[string]string{
		"cdpid":  cdp.ID.Hex(),
		"owner":  cdp.Owner.String(),
		"pair":   cdp.CoinPair().String(),
		"txid":   txid.Hex(),
		"height": strconv.FormatUint(height, 10),
	}
}
