package vote

import (
	"cdpledger/core/types"
)

// Store is the state capability used to persist vote lists.
type Store interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVGetList(key []byte, out interface{}) error
}

var (
	candidateVotesPrefix = []byte("vote/candidates/")
	activeDelegatesKey   = []byte("vote/delegates")
)

func candidateVotesKey(voter types.KeyID) []byte {
	return append(append([]byte(nil), candidateVotesPrefix...), voter[:]...)
}

// CandidateVotes loads the vote list cast by voter.
func CandidateVotes(store Store, voter types.KeyID) ([]types.CandidateReceivedVote, error) {
	var votes []types.CandidateReceivedVote
	if err := store.KVGetList(candidateVotesKey(voter), &votes); err != nil {
		return nil, err
	}
	return votes, nil
}

// SetCandidateVotes replaces the vote list cast by voter.
func SetCandidateVotes(store Store, voter types.KeyID, votes []types.CandidateReceivedVote) error {
	if votes == nil {
		votes = []types.CandidateReceivedVote{}
	}
	return store.KVPut(candidateVotesKey(voter), votes)
}

// ActiveDelegates loads the current delegate list.
func ActiveDelegates(store Store) ([]Delegate, error) {
	var delegates []Delegate
	if err := store.KVGetList(activeDelegatesKey, &delegates); err != nil {
		return nil, err
	}
	return delegates, nil
}

// SetActiveDelegates replaces the current delegate list.
func SetActiveDelegates(store Store, delegates []Delegate) error {
	return store.KVPut(activeDelegatesKey, delegates)
}

// DelegateByRegID returns the active delegate record of id.
func DelegateByRegID(store Store, id types.RegID) (Delegate, bool, error) {
	delegates, err := ActiveDelegates(store)
	if err != nil {
		return Delegate{}, false, err
	}
	for _, d := range delegates {
		if d.RegID == id {
			return d, true, nil
		}
	}
	return Delegate{}, false, nil
}
