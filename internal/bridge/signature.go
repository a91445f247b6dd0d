package bridge

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru"
)

// SignatureLength is r(32) | s(32) | v(1).
const SignatureLength = 65

// SignMessage produces the validator signature over message: a recoverable
// secp256k1 signature of the "\x19Ethereum Signed Message" digest, v in {27, 28}.
func SignMessage(key *ecdsa.PrivateKey, message []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// SplitSignature returns the (v, r, s) parts of a 65-byte signature.
func SplitSignature(sig []byte) (uint8, common.Hash, common.Hash, error) {
	if len(sig) != SignatureLength {
		return 0, common.Hash{}, common.Hash{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	return sig[64], common.BytesToHash(sig[:32]), common.BytesToHash(sig[32:64]), nil
}

// JoinSignature is the inverse of SplitSignature.
func JoinSignature(v uint8, r, s common.Hash) []byte {
	out := make([]byte, 0, SignatureLength)
	out = append(out, r.Bytes()...)
	out = append(out, s.Bytes()...)
	return append(out, v)
}

// Recoverer turns signatures back into signer addresses, caching results.
type Recoverer struct {
	cache *lru.Cache
}

// NewRecoverer builds a Recoverer; size <= 0 disables caching.
func NewRecoverer(size int) (*Recoverer, error) {
	if size <= 0 {
		return &Recoverer{}, nil
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Recoverer{cache: cache}, nil
}

// Recover returns the address that signed message. High-s signatures are rejected.
func (r *Recoverer) Recover(signature, message []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(signature))
	}

	key := string(crypto.Keccak256(signature, message))
	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			return v.(common.Address), nil
		}
	}

	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	v := sig[crypto.RecoveryIDOffset]
	if v >= 27 {
		v -= 27
	}
	rr := new(big.Int).SetBytes(sig[:32])
	ss := new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(v, rr, ss, true) {
		return common.Address{}, ErrInvalidSignature
	}
	sig[crypto.RecoveryIDOffset] = v

	pub, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	addr := crypto.PubkeyToAddress(*pub)

	if r.cache != nil {
		r.cache.Add(key, addr)
	}
	return addr, nil
}
