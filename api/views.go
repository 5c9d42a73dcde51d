package api

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"cdpledger/core/types"
)

type statusView struct {
	Height    uint64 `json:"height"`
	StateRoot string `json:"stateRoot"`
}

type rejectView struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type balanceView struct {
	Symbol string `json:"symbol"`
	types.AccountToken
}

type accountView struct {
	Address        string                        `json:"address"`
	RegID          string                        `json:"regid,omitempty"`
	OwnerPubKey    string                        `json:"ownerPubkey,omitempty"`
	MinerPubKey    string                        `json:"minerPubkey,omitempty"`
	Tokens         map[string]types.AccountToken `json:"tokens"`
	ReceivedVotes  uint64                        `json:"receivedVotes"`
	LastVoteHeight uint64                        `json:"lastVoteHeight"`
	LastVoteEpoch  uint64                        `json:"lastVoteEpoch"`
}

func newAccountView(acct *types.Account) accountView {
	view := accountView{
		Address:        acct.KeyID.Address(),
		Tokens:         acct.Tokens,
		ReceivedVotes:  acct.ReceivedVotes,
		LastVoteHeight: acct.LastVoteHeight,
		LastVoteEpoch:  acct.LastVoteEpoch,
	}
	if acct.IsRegistered() {
		view.RegID = acct.RegID.String()
	}
	if len(acct.OwnerPubKey) > 0 {
		view.OwnerPubKey = acct.OwnerPubKey.String()
	}
	if len(acct.MinerPubKey) > 0 {
		view.MinerPubKey = acct.MinerPubKey.String()
	}
	if view.Tokens == nil {
		view.Tokens = map[string]types.AccountToken{}
	}
	return view
}

type cdpView struct {
	ID                string `json:"id"`
	Owner             string `json:"owner"`
	BcoinSymbol       string `json:"bcoinSymbol"`
	ScoinSymbol       string `json:"scoinSymbol"`
	TotalStakedBcoins uint64 `json:"totalStakedBcoins"`
	TotalOwedScoins   uint64 `json:"totalOwedScoins"`
	BlockHeight       uint64 `json:"blockHeight"`
}

func newCDPView(c *types.UserCDP) cdpView {
	return cdpView{
		ID:                c.ID.Hex(),
		Owner:             c.Owner.String(),
		BcoinSymbol:       c.BcoinSymbol,
		ScoinSymbol:       c.ScoinSymbol,
		TotalStakedBcoins: c.TotalStakedBcoins,
		TotalOwedScoins:   c.TotalOwedScoins,
		BlockHeight:       c.BlockHeight,
	}
}

type closedCDPView struct {
	ID        string `json:"id"`
	CloseTxID string `json:"closeTxid"`
	CloseType string `json:"closeType"`
}

func newClosedCDPView(rec *types.ClosedCDP) closedCDPView {
	return closedCDPView{ID: rec.CdpID.Hex(), CloseTxID: rec.CloseTxID.Hex(), CloseType: rec.CloseType.String()}
}

// Totals are decimal strings; they may exceed 64 bits.
type globalView struct {
	Pair              string `json:"pair"`
	TotalStakedAssets string `json:"totalStakedAssets"`
	TotalOwedScoins   string `json:"totalOwedScoins"`
}

func newGlobalView(pair types.CdpCoinPair, g *types.CdpGlobalData) globalView {
	g = g.Clone()
	return globalView{
		Pair:              pair.String(),
		TotalStakedAssets: g.TotalStakedAssets.Dec(),
		TotalOwedScoins:   g.TotalOwedScoins.Dec(),
	}
}

type priceView struct {
	Pair           string `json:"pair"`
	Price          uint64 `json:"price"`
	LastFeedHeight uint64 `json:"lastFeedHeight"`
}

func newPriceViews(prices map[types.PriceCoinPair]types.PriceDetail) []priceView {
	pairs := make([]types.PriceCoinPair, 0, len(prices))
	for pair := range prices {
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Less(pairs[j]) })
	out := make([]priceView, 0, len(pairs))
	for _, pair := range pairs {
		d := prices[pair]
		out = append(out, priceView{Pair: pair.String(), Price: d.Price, LastFeedHeight: d.LastFeedHeight})
	}
	return out
}

type receiptView struct {
	Code   string `json:"code"`
	Op     string `json:"op"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Symbol string `json:"symbol"`
	Amount uint64 `json:"amount"`
}

func newReceiptViews(receipts types.Receipts) []receiptView {
	out := make([]receiptView, 0, len(receipts))
	for _, r := range receipts {
		view := receiptView{Code: r.Code.String(), Op: r.Op.String(), Symbol: r.Symbol, Amount: r.Amount}
		if !r.From.IsEmpty() {
			view.From = r.From.String()
		}
		if !r.To.IsEmpty() {
			view.To = r.To.String()
		}
		out = append(out, view)
	}
	return out
}

// parseUserID accepts a registration id ("height-index"), a hex encoded
// compressed public key or a base58 address.
func parseUserID(raw string) (types.UserID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return types.UserID{}, fmt.Errorf("empty account identifier")
	}
	if strings.Contains(raw, "-") {
		reg, err := types.ParseRegID(raw)
		if err != nil {
			return types.UserID{}, err
		}
		return types.RegIDUser(reg), nil
	}
	if len(raw) == 2*types.PubKeyLength {
		if b, err := hex.DecodeString(raw); err == nil && types.PubKey(b).IsValid() {
			return types.PubKeyUser(b), nil
		}
	}
	keyID, err := types.ParseAddress(raw)
	if err != nil {
		return types.UserID{}, err
	}
	return types.KeyIDUser(keyID), nil
}

func parseHash(raw string) (common.Hash, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	b, err := hex.DecodeString(raw)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid hash %q", raw)
	}
	return common.BytesToHash(b), nil
}
