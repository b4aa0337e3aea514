// Package signer attests run logs with secp256k1 signatures so a log entry
// can be verified later against the service's public address.
package signer

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrBadSignature is returned by Verify for malformed signatures.
var ErrBadSignature = errors.New("signer: malformed signature")

// Signer produces recoverable ECDSA signatures over secp256k1.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// New creates a Signer from a hex-encoded private key (0x prefix optional).
// An empty key generates an ephemeral one; signatures from it only verify
// for the lifetime of the process.
func New(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("signer: generate key: %w", err)
		}
		return fromKey(key), nil
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("signer: invalid hex key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("signer: key must be 32 bytes, got %d", len(raw))
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("signer: %w", err)
	}
	return fromKey(key), nil
}

func fromKey(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// Address is the 0x-prefixed checksummed address of the signing key.
func (s *Signer) Address() string { return s.address.Hex() }

// Sign returns the 0x-hex signature of payload.
//
// Scheme:
//  1. digest = Keccak256(payload)
//  2. sig = r(32) || s(32) || v(1), v in {0,1}, low-S (go-ethereum crypto.Sign)
func (s *Signer) Sign(payload []byte) (string, error) {
	digest := crypto.Keccak256(payload)
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return "", fmt.Errorf("signer: sign: %w", err)
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// Verify reports whether sig is a signature of payload by address.
func Verify(payload []byte, sig, address string) (bool, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	if err != nil || len(raw) != crypto.SignatureLength {
		return false, ErrBadSignature
	}
	if !common.IsHexAddress(address) {
		return false, fmt.Errorf("signer: invalid address %q", address)
	}
	pub, err := crypto.SigToPub(crypto.Keccak256(payload), raw)
	if err != nil {
		return false, nil
	}
	want := common.HexToAddress(address)
	got := crypto.PubkeyToAddress(*pub)
	return bytes.Equal(got.Bytes(), want.Bytes()), nil
}
