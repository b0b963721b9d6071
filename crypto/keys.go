package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable part used when rendering addresses.
const AddressPrefix = "mb"

// AddressLength is the byte length of every protocol address.
const AddressLength = 20

var errInvalidAddressLength = errors.New("crypto: address must be 20 bytes long")

// Address identifies an account, a module or an asset. The zero value is the
// null address.
type Address [AddressLength]byte

// BytesToAddress converts a 20 byte slice into an Address.
func BytesToAddress(b []byte) (Address, error) {
	var addr Address
	if len(b) != AddressLength {
		return addr, errInvalidAddressLength
	}
	copy(addr[:], b)
	return addr, nil
}

// ModuleAddress derives the deterministic account owned by a protocol module.
func ModuleAddress(name string) Address {
	digest := ethcrypto.Keccak256([]byte("module/" + strings.ToLower(strings.TrimSpace(name))))
	var addr Address
	copy(addr[:], digest[len(digest)-AddressLength:])
	return addr
}

// IsZero reports whether the address is the null address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// DecodeAddress parses the bech32 form produced by Address.String.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(strings.TrimSpace(addrStr))
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != AddressPrefix {
		return Address{}, fmt.Errorf("unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return BytesToAddress(conv)
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(ethcrypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Address returns the account controlled by the key.
func (k *PrivateKey) Address() Address {
	var addr Address
	copy(addr[:], ethcrypto.PubkeyToAddress(k.PrivateKey.PublicKey).Bytes())
	return addr
}
