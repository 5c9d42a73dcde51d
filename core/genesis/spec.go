// Package genesis loads the YAML description of a fresh chain: its start
// time, module pauses and the seeded accounts.
package genesis

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cdpledger/config"
	"cdpledger/core"
	"cdpledger/core/types"
	"cdpledger/native/params"
)

const coinDecimals = 8

type GenesisSpec struct {
	GenesisTime string        `yaml:"genesisTime"`
	Pauses      config.Pauses `yaml:"pauses"`
	Accounts    []AccountSpec `yaml:"accounts"`
}

// AccountSpec seeds one account. Exactly one of Address and PubKey names
// it. Balances are whole-coin decimals with up to eight fractional digits.
type AccountSpec struct {
	Address  string            `yaml:"address"`
	PubKey   string            `yaml:"pubKey"`
	RegID    string            `yaml:"regId"`
	Balances map[string]string `yaml:"balances"`
	Delegate bool              `yaml:"delegate"`
}

// LoadGenesisSpec reads and validates the spec at path.
func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseGenesisSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseGenesisSpec decodes a YAML spec, rejecting unknown fields.
func ParseGenesisSpec(raw []byte) (*GenesisSpec, error) {
	var spec GenesisSpec
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if _, err := spec.Build(nil); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Build converts the spec into the ledger genesis. Nil consensus
// parameters select the defaults.
func (s *GenesisSpec) Build(p *params.Genesis) (core.Genesis, error) {
	if p == nil {
		p = params.DefaultGenesis()
	}
	ts, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return core.Genesis{}, err
	}
	seenKeys := make(map[types.KeyID]int, len(s.Accounts))
	seenRegs := make(map[types.RegID]int, len(s.Accounts))
	accounts := make([]core.GenesisAccount, 0, len(s.Accounts))
	for i := range s.Accounts {
		acct, err := s.Accounts[i].build()
		if err != nil {
			return core.Genesis{}, fmt.Errorf("account[%d]: %w", i, err)
		}
		if j, dup := seenKeys[acct.KeyID]; dup {
			return core.Genesis{}, fmt.Errorf("account[%d]: duplicates account[%d]", i, j)
		}
		seenKeys[acct.KeyID] = i
		if !acct.RegID.IsEmpty() {
			if j, dup := seenRegs[acct.RegID]; dup {
				return core.Genesis{}, fmt.Errorf("account[%d]: regId %s already used by account[%d]", i, acct.RegID, j)
			}
			seenRegs[acct.RegID] = i
		}
		accounts = append(accounts, acct)
	}
	return core.Genesis{
		Params:    p,
		Accounts:  accounts,
		Pauses:    s.Pauses,
		Timestamp: uint64(ts.Unix()),
	}, nil
}

func (a AccountSpec) build() (core.GenesisAccount, error) {
	var out core.GenesisAccount
	address := strings.TrimSpace(a.Address)
	pubHex := strings.TrimPrefix(strings.TrimSpace(a.PubKey), "0x")
	switch {
	case address != "" && pubHex != "":
		return out, errors.New("address and pubKey are mutually exclusive")
	case pubHex != "":
		pub, err := hex.DecodeString(pubHex)
		if err != nil || !types.PubKey(pub).IsValid() {
			return out, fmt.Errorf("invalid pubKey %q", a.PubKey)
		}
		out.OwnerPubKey = pub
		out.KeyID = types.KeyIDFromPubKey(pub)
	case address != "":
		keyID, err := types.ParseAddress(address)
		if err != nil {
			return out, err
		}
		out.KeyID = keyID
	default:
		return out, errors.New("address or pubKey must be provided")
	}
	if reg := strings.TrimSpace(a.RegID); reg != "" {
		regID, err := types.ParseRegID(reg)
		if err != nil {
			return out, err
		}
		out.RegID = regID
	}
	if a.Delegate && out.RegID.IsEmpty() {
		return out, errors.New("delegate requires a regId")
	}
	out.Delegate = a.Delegate

	symbols := make([]string, 0, len(a.Balances))
	for symbol := range a.Balances {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	out.Balances = make(map[string]uint64, len(symbols))
	for _, symbol := range symbols {
		key := strings.ToUpper(strings.TrimSpace(symbol))
		switch key {
		case types.SymbolWICC, types.SymbolWGRT, types.SymbolWUSD:
		default:
			return out, fmt.Errorf("unsupported symbol %q", symbol)
		}
		amount, err := ParseCoins(a.Balances[symbol])
		if err != nil {
			return out, fmt.Errorf("balance %s: %w", symbol, err)
		}
		if _, dup := out.Balances[key]; dup {
			return out, fmt.Errorf("balance %s listed twice", key)
		}
		out.Balances[key] = amount
	}
	return out, nil
}

// ParseCoins converts a whole-coin decimal such as "12.5" to base units.
func ParseCoins(raw string) (uint64, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), "_", "")
	if raw == "" {
		return 0, errors.New("empty amount")
	}
	whole, frac, hasFrac := strings.Cut(raw, ".")
	if hasFrac && (frac == "" || len(frac) > coinDecimals) {
		return 0, fmt.Errorf("amount %q: at most %d decimals", raw, coinDecimals)
	}
	frac += strings.Repeat("0", coinDecimals-len(frac))
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", raw, err)
	}
	f, err := strconv.ParseUint(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", raw, err)
	}
	if w > (^uint64(0)-f)/types.Coin {
		return 0, fmt.Errorf("amount %q overflows", raw)
	}
	return w*types.Coin + f, nil
}

func parseGenesisTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("genesisTime must be provided")
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("genesisTime: %w", err)
	}
	if ts.Unix() < 0 {
		return time.Time{}, errors.New("genesisTime predates the unix epoch")
	}
	return ts.UTC(), nil
}
