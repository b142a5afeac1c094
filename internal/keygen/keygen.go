// Package keygen provides node keys and the enode:// URIs derived from them,
// for tests that need realistic node IDs.
package keygen

import (
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

var hardcodedKeys = []string{
	`Qz7wmX+MXfvY85IsJMnMFd8fOI4msOT24bp6Iw/NuPo=`,
	`OX9lnxz+fWNmEEBXCKfEmEsh5oGhCXXdHJBqilgZPNc=`,
	`pebDrvrc9iHxN8k7YJva6bvr6Mzimb9ZbFrGpVy/Wb0=`,
	`cl3X1He2rNZiXbsii3M9zxBTi9B7gB1Tqgk6u5rMytE=`,
}

// HardcodedKey returns the idx'th of a few fixed keys, for output that must
// be stable between runs.
func HardcodedKey(t testing.TB, idx int) *ecdsa.PrivateKey {
	t.Helper()
	if idx < 0 || idx >= len(hardcodedKeys) {
		t.Fatalf("keygen.HardcodedKey: no hardcoded key %d", idx)
	}
	data, err := base64.StdEncoding.DecodeString(hardcodedKeys[idx])
	if err != nil {
		t.Fatalf("keygen.HardcodedKey: %s", err)
	}
	privkey, err := crypto.ToECDSA(data)
	if err != nil {
		t.Fatalf("keygen.HardcodedKey: %s", err)
	}
	return privkey
}

// NewKey returns a random key.
func NewKey(t testing.TB) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// NodeID returns the hex encoded public key of key, which is how nodes are
// identified in enode:// URIs.
func NodeID(key *ecdsa.PrivateKey) string {
	// Drop the 0x04 uncompressed point prefix.
	return hex.EncodeToString(crypto.FromECDSAPub(&key.PublicKey)[1:])
}

// Enode returns the enode:// URI of a node with key listening on hostport.
func Enode(key *ecdsa.PrivateKey, hostport string) string {
	return fmt.Sprintf("enode://%s@%s", NodeID(key), hostport)
}
