package params

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"cdpledger/config"
	"cdpledger/core/types"
)

// ErrParamNotFound reports a consensus parameter missing from state.
var ErrParamNotFound = errors.New("params: parameter not found")

// StoreState captures the subset of state manager capabilities required by the
// parameter helpers.
type StoreState interface {
	ParamStoreSet(name string, value []byte) error
	ParamStoreGet(name string) ([]byte, bool, error)
}

// Store provides typed accessors for the consensus parameters persisted in
// state.
type Store struct {
	state StoreState
}

// NewStore constructs a parameter store wrapper using the supplied state
// backend.
func NewStore(state StoreState) *Store {
	return &Store{state: state}
}

func (s *Store) withState() (StoreState, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("params: state not configured")
	}
	return s.state, nil
}

func (s *Store) put(key string, value any) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("params: encode %s: %w", key, err)
	}
	return state.ParamStoreSet(key, encoded)
}

func (s *Store) get(key string, out any) (bool, error) {
	state, err := s.withState()
	if err != nil {
		return false, err
	}
	raw, ok, err := state.ParamStoreGet(key)
	if err != nil {
		return false, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("params: decode %s: %w", key, err)
	}
	return true, nil
}

// InitGenesis validates and persists a full parameter bundle.
func (s *Store) InitGenesis(genesis *Genesis) error {
	if err := genesis.Validate(); err != nil {
		return err
	}
	if err := s.SetSysParams(genesis.System); err != nil {
		return err
	}
	for _, p := range genesis.CDP {
		if err := s.SetCdpParams(p); err != nil {
			return err
		}
	}
	return nil
}

// SetSysParams persists the chain-wide parameters.
func (s *Store) SetSysParams(p SysParams) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.put(ParamsKeySystem, p)
}

// SysParams loads the chain-wide parameters. A missing record is an error.
func (s *Store) SysParams() (SysParams, error) {
	var p SysParams
	ok, err := s.get(ParamsKeySystem, &p)
	if err != nil {
		return SysParams{}, err
	}
	if !ok {
		return SysParams{}, fmt.Errorf("%w: %s", ErrParamNotFound, ParamsKeySystem)
	}
	return p, nil
}

// SetCdpParams persists the parameters of one coin pair and records the pair
// in the pair list.
func (s *Store) SetCdpParams(p CdpParams) error {
	if err := p.Validate(); err != nil {
		return err
	}
	pairs, err := s.CdpPairs()
	if err != nil {
		return err
	}
	found := false
	for _, pair := range pairs {
		if pair == p.CoinPair() {
			found = true
			break
		}
	}
	if !found {
		pairs = append(pairs, p.CoinPair())
		if err := s.put(ParamsKeyCdpPairs, pairs); err != nil {
			return err
		}
	}
	return s.put(ParamsKeyCdp(p.CoinPair()), p)
}

// CdpParams loads the parameters of one coin pair. A missing record is an
// error, never a silent default.
func (s *Store) CdpParams(pair types.CdpCoinPair) (CdpParams, error) {
	var p CdpParams
	ok, err := s.get(ParamsKeyCdp(pair), &p)
	if err != nil {
		return CdpParams{}, err
	}
	if !ok {
		return CdpParams{}, fmt.Errorf("%w: cdp params for %s", ErrParamNotFound, pair)
	}
	return p, nil
}

// CdpPairs lists the configured coin pairs in insertion order.
func (s *Store) CdpPairs() ([]types.CdpCoinPair, error) {
	var pairs []types.CdpCoinPair
	if _, err := s.get(ParamsKeyCdpPairs, &pairs); err != nil {
		return nil, err
	}
	return pairs, nil
}

// SetPauses persists the supplied pause configuration under the canonical
// parameter store key. Values are marshalled as JSON to align with governance
// proposal payloads.
func (s *Store) SetPauses(pauses config.Pauses) error {
	return s.put(ParamsKeyPauses, pauses)
}

// Pauses loads the persisted pause configuration. When unset, a zero-value
// configuration is returned.
func (s *Store) Pauses() (config.Pauses, error) {
	var pauses config.Pauses
	if _, err := s.get(ParamsKeyPauses, &pauses); err != nil {
		return config.Pauses{}, err
	}
	return pauses, nil
}
