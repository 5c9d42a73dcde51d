package types

// BalanceOp is a primitive balance mutation.
type BalanceOp uint8

const (
	OpNull BalanceOp = iota
	OpAddFree
	OpSubFree
	OpStake
	OpUnstake
	OpFreeze
	OpUnfreeze
	OpVote
	OpUnvote
	OpPledge
	OpUnpledge
	OpDexDeal
)

var balanceOpNames = map[BalanceOp]string{
	OpAddFree:  "ADD_FREE",
	OpSubFree:  "SUB_FREE",
	OpStake:    "STAKE",
	OpUnstake:  "UNSTAKE",
	OpFreeze:   "FREEZE",
	OpUnfreeze: "UNFREEZE",
	OpVote:     "VOTE",
	OpUnvote:   "UNVOTE",
	OpPledge:   "PLEDGE",
	OpUnpledge: "UNPLEDGE",
	OpDexDeal:  "DEX_DEAL",
}

func (op BalanceOp) String() string {
	if name, ok := balanceOpNames[op]; ok {
		return name
	}
	return "NULL_OP"
}

// ReceiptCode is the closed taxonomy of reasons for a balance delta.
type ReceiptCode uint16

const (
	ReceiptNull ReceiptCode = iota
	ReceiptTxFee
	ReceiptTransferActualCoins
	ReceiptTransferFrictionFee
	ReceiptTransferFrictionBuyFcoins
	ReceiptBlockReward
	ReceiptBlockInflateInterest
	ReceiptDelegateAddVote
	ReceiptDelegateSubVote
	ReceiptDelegateVoteInterest
	ReceiptCdpPledgedAssetFromOwner
	ReceiptCdpMintedScoinToOwner
	ReceiptCdpRepaidScoinFromOwner
	ReceiptCdpRedeemedAssetToOwner
	ReceiptCdpRepayInterestToFund
	ReceiptCdpInterestBuyDeflateFcoins
	ReceiptCdpScoinFromLiquidator
	ReceiptCdpAssetToLiquidator
	ReceiptCdpLiquidatedAssetToOwner
	ReceiptCdpPenaltyToReserve
	ReceiptCdpPenaltyBuyDeflateFcoins
	ReceiptCdpTotalCloseoutScoinFromReserve
	ReceiptCdpTotalAssetToReserve
	ReceiptCdpTotalInflateFcoinToReserve
)

var receiptCodeNames = map[ReceiptCode]string{
	ReceiptTxFee:                            "TX_FEE",
	ReceiptTransferActualCoins:              "TRANSFER_ACTUAL_COINS",
	ReceiptTransferFrictionFee:              "TRANSFER_FRICTION_FEE",
	ReceiptTransferFrictionBuyFcoins:        "TRANSFER_FRICTION_BUY_DEFLATE_FCOINS",
	ReceiptBlockReward:                      "BLOCK_REWARD_TO_MINER",
	ReceiptBlockInflateInterest:             "BLOCK_INFLATE_INTEREST_TO_MINER",
	ReceiptDelegateAddVote:                  "DELEGATE_ADD_VOTE",
	ReceiptDelegateSubVote:                  "DELEGATE_SUB_VOTE",
	ReceiptDelegateVoteInterest:             "DELEGATE_VOTE_INTEREST",
	ReceiptCdpPledgedAssetFromOwner:         "CDP_PLEDGED_ASSET_FROM_OWNER",
	ReceiptCdpMintedScoinToOwner:            "CDP_MINTED_SCOIN_TO_OWNER",
	ReceiptCdpRepaidScoinFromOwner:          "CDP_REPAID_SCOIN_FROM_OWNER",
	ReceiptCdpRedeemedAssetToOwner:          "CDP_REDEEMED_ASSET_TO_OWNER",
	ReceiptCdpRepayInterestToFund:           "CDP_REPAY_INTEREST_TO_FUND",
	ReceiptCdpInterestBuyDeflateFcoins:      "CDP_INTEREST_BUY_DEFLATE_FCOINS",
	ReceiptCdpScoinFromLiquidator:           "CDP_SCOIN_FROM_LIQUIDATOR",
	ReceiptCdpAssetToLiquidator:             "CDP_ASSET_TO_LIQUIDATOR",
	ReceiptCdpLiquidatedAssetToOwner:        "CDP_LIQUIDATED_ASSET_TO_OWNER",
	ReceiptCdpPenaltyToReserve:              "CDP_PENALTY_TO_RESERVE",
	ReceiptCdpPenaltyBuyDeflateFcoins:       "CDP_PENALTY_BUY_DEFLATE_FCOINS",
	ReceiptCdpTotalCloseoutScoinFromReserve: "CDP_TOTAL_CLOSEOUT_SCOIN_FROM_RESERVE",
	ReceiptCdpTotalAssetToReserve:           "CDP_TOTAL_ASSET_TO_RESERVE",
	ReceiptCdpTotalInflateFcoinToReserve:    "CDP_TOTAL_INFLATE_FCOIN_TO_RESERVE",
}

func (c ReceiptCode) String() string {
	if name, ok := receiptCodeNames[c]; ok {
		return name
	}
	return "NULL_CODE"
}

// Receipt records one semantic balance delta. From is empty for mints and To
// is empty for burns.
type Receipt struct {
	Code   ReceiptCode `json:"code"`
	Op     BalanceOp   `json:"op"`
	From   UserID      `json:"from"`
	To     UserID      `json:"to"`
	Symbol string      `json:"symbol"`
	Amount uint64      `json:"amount"`
}

// Receipts is the ordered receipt list of one transaction.
type Receipts []Receipt
