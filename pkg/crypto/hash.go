// Package crypto provides the cryptographic primitives used by the wallet.
package crypto

import (
	"crypto/sha256"

	"github.com/HathorNetwork/hathor-wallet-lib-sub010/pkg/types"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/ripemd160"
)

// Sha256d computes sha256(sha256(data)). Transaction ids are sha256d over
// the signable serialization.
func Sha256d(data []byte) types.Hash {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}

// Hash160 computes ripemd160(sha256(data)), the address payload for a
// compressed public key.
func Hash160(data []byte) [types.AddressSize]byte {
	first := sha256.Sum256(data)
	h := ripemd160.New()
	h.Write(first[:])
	var out [types.AddressSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// AddressFromPubKey derives an address from a compressed public key.
func AddressFromPubKey(pubKey []byte) types.Address {
	return types.Address(Hash160(pubKey))
}

// Fingerprint computes a BLAKE3-256 digest. Used to checksum partial
// transaction proposals exchanged between swap parties, where a fast keyed
// digest matters more than chain compatibility.
func Fingerprint(data []byte) types.Hash {
	return blake3.Sum256(data)
}
