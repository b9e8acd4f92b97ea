package hubclient

import (
	"crypto/sha256"
	"fmt"

	bip32 "github.com/FactomProject/go-bip32"
	bip39 "github.com/FactomProject/go-bip39"
	"github.com/btcsuite/btcutil/bech32"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // required for the Cosmos address scheme
)

// hdPath is the HD derivation path the Hub's account scheme requires:
// m/44'/118'/0'/0/0 (coin type 118 is the Cosmos SDK's registered SLIP-44
// value, shared by every Cosmos chain including the Hub).
var hdPath = []uint32{
	44 + bip32.FirstHardenedChild,
	118 + bip32.FirstHardenedChild,
	0 + bip32.FirstHardenedChild,
	0,
	0,
}

// SigningKey holds a derived secp256k1 key and its bech32 account address.
type SigningKey struct {
	private *secp256k1.PrivateKey
	address string
}

// DeriveSigningKey derives the relayer's signing key from a BIP-39 mnemonic
// following spec §4.2 step 1.
func DeriveSigningKey(mnemonic, accountPrefix string) (*SigningKey, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("relayer mnemonic is not a valid BIP-39 phrase")
	}
	seed := bip39.NewSeed(mnemonic, "")

	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("failed to derive master key: %w", err)
	}

	key := master
	for _, index := range hdPath {
		key, err = key.NewChildKey(index)
		if err != nil {
			return nil, fmt.Errorf("failed to derive HD child key: %w", err)
		}
	}

	priv := secp256k1.PrivKeyFromBytes(key.Key)
	address, err := bech32Address(accountPrefix, priv.PubKey().SerializeCompressed())
	if err != nil {
		return nil, fmt.Errorf("failed to derive account address: %w", err)
	}

	return &SigningKey{private: priv, address: address}, nil
}

// Address returns the bech32-encoded account address.
func (k *SigningKey) Address() string { return k.address }

// Sign produces a 64-byte compact (r||s) ECDSA signature over the sha256
// digest of msg, the Cosmos SDK's signature encoding for SIGN_MODE_DIRECT.
func (k *SigningKey) Sign(msg []byte) []byte {
	digest := sha256.Sum256(msg)
	sig := ecdsa.SignCompact(k.private, digest[:], false)
	// SignCompact prefixes a recovery byte; Cosmos expects plain r||s.
	return sig[1:]
}

// PubKeyAny returns the Any-wrapped secp256k1 public key for AuthInfo.
func (k *SigningKey) PubKeyAny() []byte {
	pubKeyBytes := k.private.PubKey().SerializeCompressed()
	w := &protoWriter{}
	w.bytesField(1, pubKeyBytes)
	return anyMsg("/cosmos.crypto.secp256k1.PubKey", w.bytes())
}

func bech32Address(prefix string, pubKeyCompressed []byte) (string, error) {
	shaHash := sha256.Sum256(pubKeyCompressed)
	ripemd := ripemd160.New()
	if _, err := ripemd.Write(shaHash[:]); err != nil {
		return "", err
	}
	addrBytes := ripemd.Sum(nil)

	converted, err := bech32.ConvertBits(addrBytes, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(prefix, converted)
}
