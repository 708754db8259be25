package vrf

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/lotterykeeper/internal/crypto"
)

// Fulfillment is a provider's answer to one request, signed by the provider
// key over Digest(RequestID, Words).
type Fulfillment struct {
	RequestID *big.Int
	Words     []*big.Int
	Signature []byte
}

// Digest is the EIP-191 text hash of keccak256(requestID || words...), each
// value encoded as a 32-byte big-endian word.
func Digest(requestID *big.Int, words []*big.Int) []byte {
	buf := make([]byte, 0, 32*(len(words)+1))
	buf = append(buf, common.BigToHash(requestID).Bytes()...)
	for _, w := range words {
		buf = append(buf, common.BigToHash(w).Bytes()...)
	}
	return accounts.TextHash(ethcrypto.Keccak256(buf))
}

// Sign produces a signed Fulfillment with s.
func Sign(s *crypto.Signer, requestID *big.Int, words []*big.Int) (Fulfillment, error) {
	sig, err := s.SignHash(Digest(requestID, words))
	if err != nil {
		return Fulfillment{}, fmt.Errorf("vrf: sign fulfillment %s: %w", requestID, err)
	}
	return Fulfillment{RequestID: requestID, Words: words, Signature: sig}, nil
}

// Signer recovers the address that signed f.
func (f Fulfillment) Signer() (common.Address, error) {
	if f.RequestID == nil {
		return common.Address{}, errors.New("vrf: fulfillment without request id")
	}
	addr, err := crypto.RecoverAddress(Digest(f.RequestID, f.Words), f.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("vrf: recover fulfillment signer: %w", err)
	}
	return addr, nil
}

// Deliver authenticates f and passes it to consumer with the recovered signer
// as the caller. Whether that signer is acceptable is the consumer's call.
func Deliver(ctx context.Context, consumer Consumer, f Fulfillment) error {
	caller, err := f.Signer()
	if err != nil {
		return err
	}
	return consumer.FulfillRandomWords(ctx, caller, f.RequestID, f.Words)
}
