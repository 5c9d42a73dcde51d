package types

import "sort"

// BalanceType names one of the five per-token buckets.
type BalanceType uint8

const (
	BalanceNull BalanceType = iota
	BalanceFree
	BalanceStaked
	BalanceFrozen
	BalanceVoted
	BalancePledged
)

func (b BalanceType) String() string {
	switch b {
	case BalanceFree:
		return "free"
	case BalanceStaked:
		return "staked"
	case BalanceFrozen:
		return "frozen"
	case BalanceVoted:
		return "voted"
	case BalancePledged:
		return "pledged"
	default:
		return "null"
	}
}

// AccountToken holds the buckets of one token for one account.
type AccountToken struct {
	Free    uint64 `json:"free"`
	Staked  uint64 `json:"staked"`
	Frozen  uint64 `json:"frozen"`
	Voted   uint64 `json:"voted"`
	Pledged uint64 `json:"pledged"`
}

// Get returns the bucket value and whether the bucket type is known.
func (t AccountToken) Get(b BalanceType) (uint64, bool) {
	switch b {
	case BalanceFree:
		return t.Free, true
	case BalanceStaked:
		return t.Staked, true
	case BalanceFrozen:
		return t.Frozen, true
	case BalanceVoted:
		return t.Voted, true
	case BalancePledged:
		return t.Pledged, true
	default:
		return 0, false
	}
}

// IsEmpty reports whether every bucket is zero.
func (t AccountToken) IsEmpty() bool {
	return t == AccountToken{}
}

// Account is the ledger record of one key identifier.
type Account struct {
	KeyID         KeyID                   `json:"keyid"`
	RegID         RegID                   `json:"regid"`
	OwnerPubKey   PubKey                  `json:"ownerPubkey,omitempty"`
	MinerPubKey   PubKey                  `json:"minerPubkey,omitempty"`
	Perms         uint64                  `json:"perms"`
	Tokens        map[string]AccountToken `json:"tokens"`
	ReceivedVotes uint64                  `json:"receivedVotes"`
	// LastVoteHeight is the height of the last vote action.
	LastVoteHeight uint64 `json:"lastVoteHeight"`
	// LastVoteEpoch is the block time (seconds) of the last vote action.
	LastVoteEpoch uint64 `json:"lastVoteEpoch"`
}

// NewAccount creates an empty account for id.
func NewAccount(id KeyID) *Account {
	return &Account{KeyID: id, Tokens: make(map[string]AccountToken)}
}

// Token returns the token record for symbol, or a zero record.
func (a *Account) Token(symbol string) AccountToken {
	if a == nil || a.Tokens == nil {
		return AccountToken{}
	}
	return a.Tokens[symbol]
}

// SetToken replaces the token record for symbol.
func (a *Account) SetToken(symbol string, token AccountToken) {
	if a.Tokens == nil {
		a.Tokens = make(map[string]AccountToken)
	}
	a.Tokens[symbol] = token
}

// Symbols returns the token symbols held by the account in sorted order.
func (a *Account) Symbols() []string {
	out := make([]string, 0, len(a.Tokens))
	for symbol := range a.Tokens {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// UserID returns the most compact identity of the account.
func (a *Account) UserID() UserID {
	if !a.RegID.IsEmpty() {
		return RegIDUser(a.RegID)
	}
	return KeyIDUser(a.KeyID)
}

// IsRegistered reports whether the account has a registration id.
func (a *Account) IsRegistered() bool { return !a.RegID.IsEmpty() }

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	if a.OwnerPubKey != nil {
		clone.OwnerPubKey = append(PubKey(nil), a.OwnerPubKey...)
	}
	if a.MinerPubKey != nil {
		clone.MinerPubKey = append(PubKey(nil), a.MinerPubKey...)
	}
	clone.Tokens = make(map[string]AccountToken, len(a.Tokens))
	for symbol, token := range a.Tokens {
		clone.Tokens[symbol] = token
	}
	return &clone
}

// IsSelfUID reports whether uid identifies this account: by key id, by a
// non-empty registration id, or by a valid owner public key.
func (a *Account) IsSelfUID(uid UserID) bool {
	switch uid.Kind {
	case UserIDKeyID:
		id, ok := uid.KeyID()
		return ok && id == a.KeyID
	case UserIDRegID:
		id, ok := uid.RegID()
		return ok && !a.RegID.IsEmpty() && id == a.RegID
	case UserIDPubKey:
		pub, ok := uid.PubKey()
		return ok && a.OwnerPubKey.IsValid() && string(pub) == string(a.OwnerPubKey)
	default:
		return false
	}
}
