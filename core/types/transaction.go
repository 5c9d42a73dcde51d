package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// TxType defines the purpose of a transaction.
type TxType byte

const (
	TxTypeBlockReward       TxType = 0x01 // Miner block reward and inflation interest
	TxTypeAccountRegister   TxType = 0x02 // Assigns a registration id
	TxTypeDelegateVote      TxType = 0x06 // Candidate vote changes
	TxTypeCoinTransfer      TxType = 0x0b // Multi-token transfer
	TxTypePriceFeed         TxType = 0x10 // Feeder price points
	TxTypePriceMedian       TxType = 0x11 // Block median prices and forced liquidation
	TxTypeCDPStake          TxType = 0x15 // Open or add to a CDP
	TxTypeCDPRedeem         TxType = 0x16 // Repay and withdraw from a CDP
	TxTypeCDPLiquidate      TxType = 0x17 // Third-party liquidation
	TxTypeCDPInterestSettle TxType = 0x18 // System interest settlement
)

var txTypeNames = map[TxType]string{
	TxTypeBlockReward:       "BLOCK_REWARD_TX",
	TxTypeAccountRegister:   "ACCOUNT_REGISTER_TX",
	TxTypeDelegateVote:      "DELEGATE_VOTE_TX",
	TxTypeCoinTransfer:      "UCOIN_TRANSFER_TX",
	TxTypePriceFeed:         "PRICE_FEED_TX",
	TxTypePriceMedian:       "PRICE_MEDIAN_TX",
	TxTypeCDPStake:          "CDP_STAKE_TX",
	TxTypeCDPRedeem:         "CDP_REDEEM_TX",
	TxTypeCDPLiquidate:      "CDP_LIQUIDATE_TX",
	TxTypeCDPInterestSettle: "CDP_FORCE_SETTLE_INTEREST_TX",
}

func (t TxType) String() string {
	if name, ok := txTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TX_%#x", byte(t))
}

// IsSystem reports whether the type is produced by block assembly rather
// than signed by a user.
func (t TxType) IsSystem() bool {
	switch t {
	case TxTypeBlockReward, TxTypePriceMedian, TxTypeCDPInterestSettle:
		return true
	default:
		return false
	}
}

// Transaction is the envelope of every ledger transaction. Data carries the
// RLP encoded payload selected by Type. Signature verification happens
// before a transaction reaches the ledger.
type Transaction struct {
	Type        TxType
	Sender      UserID
	ValidHeight uint64
	FeeSymbol   string
	Fee         uint64
	Data        []byte
	Signature   []byte
}

// NewTransaction encodes payload into a transaction envelope.
func NewTransaction(txType TxType, sender UserID, validHeight uint64, feeSymbol string, fee uint64, payload any) (*Transaction, error) {
	data, err := rlp.EncodeToBytes(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", txType, err)
	}
	return &Transaction{
		Type:        txType,
		Sender:      sender,
		ValidHeight: validHeight,
		FeeSymbol:   feeSymbol,
		Fee:         fee,
		Data:        data,
	}, nil
}

// Hash returns the keccak256 hash over the unsigned envelope.
func (tx *Transaction) Hash() common.Hash {
	unsigned := struct {
		Type        TxType
		Sender      UserID
		ValidHeight uint64
		FeeSymbol   string
		Fee         uint64
		Data        []byte
	}{tx.Type, tx.Sender, tx.ValidHeight, tx.FeeSymbol, tx.Fee, tx.Data}
	encoded, err := rlp.EncodeToBytes(&unsigned)
	if err != nil {
		panic(fmt.Sprintf("transaction hash: %v", err))
	}
	return crypto.Keccak256Hash(encoded)
}

// DecodePayload decodes Data into out.
func (tx *Transaction) DecodePayload(out any) error {
	if err := rlp.DecodeBytes(tx.Data, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", tx.Type, err)
	}
	return nil
}

// TokenAmount pairs a symbol with an amount.
type TokenAmount struct {
	Symbol string
	Amount uint64
}

// SingleTransfer is one destination of a coin transfer.
type SingleTransfer struct {
	To     UserID
	Symbol string
	Amount uint64
}

// CoinTransferPayload moves coins from the sender to each destination.
type CoinTransferPayload struct {
	Transfers []SingleTransfer
	Memo      string
}

// AccountRegisterPayload binds the owner (and optional miner) public key.
type AccountRegisterPayload struct {
	OwnerPubKey PubKey
	MinerPubKey PubKey
}

// VoteType is the direction of a candidate vote.
type VoteType uint8

const (
	VoteNull VoteType = iota
	VoteAddBcoin
	VoteMinusBcoin
)

// CandidateVote is one vote delta from a transaction.
type CandidateVote struct {
	Type      VoteType
	Candidate UserID
	Votes     uint64
}

// CandidateReceivedVote is one entry of an account's vote list.
type CandidateReceivedVote struct {
	Candidate UserID
	Votes     uint64
}

// DelegateVotePayload carries the vote deltas of one transaction.
type DelegateVotePayload struct {
	Votes []CandidateVote
}

// PriceFeedPayload carries a feeder's price points.
type PriceFeedPayload struct {
	Points []PricePoint
}

// MedianPrice is one entry of a price median transaction.
type MedianPrice struct {
	Pair  PriceCoinPair
	Price uint64
}

// PriceMedianPayload carries the medians computed by the block producer.
type PriceMedianPayload struct {
	MedianPrices []MedianPrice
}

// CDPStakePayload opens a position or adds to an existing one.
type CDPStakePayload struct {
	CdpID         common.Hash // zero for a new position
	AssetsToStake []TokenAmount
	ScoinSymbol   string
	ScoinsToMint  uint64
}

// CDPRedeemPayload repays debt and withdraws collateral.
type CDPRedeemPayload struct {
	CdpID          common.Hash
	ScoinsToRepay  uint64
	AssetsToRedeem []TokenAmount
}

// CDPLiquidatePayload liquidates an under-collateralized position.
type CDPLiquidatePayload struct {
	CdpID             common.Hash
	AssetSymbol       string // optional filter
	ScoinsToLiquidate uint64
}

// CDPInterestSettlePayload lists positions whose interest is rolled into debt.
type CDPInterestSettlePayload struct {
	CdpIDs []common.Hash
}

// BlockRewardPayload credits the block producer. TotalDelegates is either
// zero or the chain's configured delegate count.
type BlockRewardPayload struct {
	Miner          UserID
	RewardFees     uint64
	TotalDelegates uint32
}
