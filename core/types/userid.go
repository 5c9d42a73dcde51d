package types

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcutil"
	"github.com/btcsuite/btcutil/base58"
)

const (
	// KeyIDLength is the size of a key identifier.
	KeyIDLength = 20
	// PubKeyLength is the size of a compressed secp256k1 public key.
	PubKeyLength = 33
	// AddressVersion prefixes base58 encoded addresses.
	AddressVersion byte = 0x49

	regIDLength = 6
)

// KeyID is the permanent identifier of an account: Hash160 of the owner key.
type KeyID [KeyIDLength]byte

// KeyIDFromPubKey derives the key identifier of a public key.
func KeyIDFromPubKey(pub PubKey) KeyID {
	var id KeyID
	copy(id[:], btcutil.Hash160(pub))
	return id
}

// IsEmpty reports whether the identifier is all zeroes.
func (k KeyID) IsEmpty() bool { return k == KeyID{} }

// Bytes returns a copy of the raw identifier.
func (k KeyID) Bytes() []byte { return append([]byte(nil), k[:]...) }

// Address renders the base58check address of the key identifier.
func (k KeyID) Address() string { return base58.CheckEncode(k[:], AddressVersion) }

func (k KeyID) String() string { return k.Address() }

// ParseAddress decodes a base58check address into a key identifier.
func ParseAddress(addr string) (KeyID, error) {
	var id KeyID
	payload, version, err := base58.CheckDecode(strings.TrimSpace(addr))
	if err != nil {
		return id, fmt.Errorf("address: %w", err)
	}
	if version != AddressVersion {
		return id, fmt.Errorf("address: unexpected version %d", version)
	}
	if len(payload) != KeyIDLength {
		return id, fmt.Errorf("address: payload must be %d bytes (got %d)", KeyIDLength, len(payload))
	}
	copy(id[:], payload)
	return id, nil
}

// RegID is the short registration identifier assigned when an account is
// first registered on chain: the registering block height and tx index.
type RegID struct {
	Height uint32
	Index  uint16
}

// IsEmpty reports whether the registration id is unset.
func (r RegID) IsEmpty() bool { return r.Height == 0 && r.Index == 0 }

// Bytes encodes the id as big-endian height followed by index.
func (r RegID) Bytes() []byte {
	buf := make([]byte, regIDLength)
	binary.BigEndian.PutUint32(buf[:4], r.Height)
	binary.BigEndian.PutUint16(buf[4:], r.Index)
	return buf
}

// Less orders registration ids by height, then index.
func (r RegID) Less(o RegID) bool {
	if r.Height != o.Height {
		return r.Height < o.Height
	}
	return r.Index < o.Index
}

func (r RegID) String() string {
	return strconv.FormatUint(uint64(r.Height), 10) + "-" + strconv.FormatUint(uint64(r.Index), 10)
}

// ParseRegID parses the "height-index" form.
func ParseRegID(s string) (RegID, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return RegID{}, fmt.Errorf("regid: malformed %q", s)
	}
	height, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return RegID{}, fmt.Errorf("regid: height: %w", err)
	}
	index, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return RegID{}, fmt.Errorf("regid: index: %w", err)
	}
	return RegID{Height: uint32(height), Index: uint16(index)}, nil
}

func regIDFromBytes(b []byte) RegID {
	return RegID{Height: binary.BigEndian.Uint32(b[:4]), Index: binary.BigEndian.Uint16(b[4:])}
}

// PubKey is a compressed public key.
type PubKey []byte

// IsValid reports whether the key has the compressed key shape.
func (p PubKey) IsValid() bool {
	return len(p) == PubKeyLength && (p[0] == 0x02 || p[0] == 0x03)
}

func (p PubKey) String() string { return hex.EncodeToString(p) }

// UserIDKind enumerates the identity representations a transaction may use.
type UserIDKind uint8

const (
	UserIDNone UserIDKind = iota
	UserIDKeyID
	UserIDRegID
	UserIDPubKey
)

func (k UserIDKind) String() string {
	switch k {
	case UserIDKeyID:
		return "keyid"
	case UserIDRegID:
		return "regid"
	case UserIDPubKey:
		return "pubkey"
	default:
		return "none"
	}
}

// UserID is a closed tagged variant over the identity representations. The
// zero value is the null identity used for mints and burns.
type UserID struct {
	Kind UserIDKind
	Data []byte
}

// NullUserID returns the empty identity.
func NullUserID() UserID { return UserID{} }

// KeyIDUser wraps a key identifier.
func KeyIDUser(id KeyID) UserID { return UserID{Kind: UserIDKeyID, Data: id.Bytes()} }

// RegIDUser wraps a registration id.
func RegIDUser(id RegID) UserID { return UserID{Kind: UserIDRegID, Data: id.Bytes()} }

// PubKeyUser wraps a public key.
func PubKeyUser(pub PubKey) UserID {
	return UserID{Kind: UserIDPubKey, Data: append([]byte(nil), pub...)}
}

// IsEmpty reports whether the identity is the null identity.
func (u UserID) IsEmpty() bool { return u.Kind == UserIDNone || len(u.Data) == 0 }

// KeyID returns the wrapped key identifier when the variant holds one.
func (u UserID) KeyID() (KeyID, bool) {
	var id KeyID
	if u.Kind != UserIDKeyID || len(u.Data) != KeyIDLength {
		return id, false
	}
	copy(id[:], u.Data)
	return id, true
}

// RegID returns the wrapped registration id when the variant holds one.
func (u UserID) RegID() (RegID, bool) {
	if u.Kind != UserIDRegID || len(u.Data) != regIDLength {
		return RegID{}, false
	}
	return regIDFromBytes(u.Data), true
}

// PubKey returns the wrapped public key when the variant holds one.
func (u UserID) PubKey() (PubKey, bool) {
	if u.Kind != UserIDPubKey || len(u.Data) == 0 {
		return nil, false
	}
	return PubKey(append([]byte(nil), u.Data...)), true
}

// IsRegistered reports whether the identity is a registration id.
func (u UserID) IsRegistered() bool {
	_, ok := u.RegID()
	return ok
}

// SameKind reports whether both identities use the same representation.
func (u UserID) SameKind(o UserID) bool { return u.Kind == o.Kind }

// Equal is literal equality: same representation and same payload.
func (u UserID) Equal(o UserID) bool {
	if u.IsEmpty() && o.IsEmpty() {
		return true
	}
	return u.Kind == o.Kind && bytes.Equal(u.Data, o.Data)
}

// RegIDResolver maps registration ids onto key identifiers.
type RegIDResolver interface {
	KeyIDByRegID(id RegID) (KeyID, bool, error)
}

// ResolvesToKeyID resolves the identity to its permanent key identifier.
// Key ids resolve to themselves, public keys by hashing, and registration ids
// through the supplied resolver.
func (u UserID) ResolvesToKeyID(r RegIDResolver) (KeyID, bool, error) {
	switch u.Kind {
	case UserIDKeyID:
		id, ok := u.KeyID()
		return id, ok, nil
	case UserIDPubKey:
		pub, ok := u.PubKey()
		if !ok {
			return KeyID{}, false, nil
		}
		return KeyIDFromPubKey(pub), true, nil
	case UserIDRegID:
		reg, ok := u.RegID()
		if !ok || r == nil {
			return KeyID{}, false, nil
		}
		return r.KeyIDByRegID(reg)
	default:
		return KeyID{}, false, nil
	}
}

func (u UserID) String() string {
	switch u.Kind {
	case UserIDKeyID:
		id, _ := u.KeyID()
		return id.Address()
	case UserIDRegID:
		id, _ := u.RegID()
		return id.String()
	case UserIDPubKey:
		return hex.EncodeToString(u.Data)
	default:
		return "null"
	}
}
