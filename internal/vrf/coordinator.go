// Package vrf is the boundary to the external randomness provider: the
// request side (Coordinator), the callback side (Consumer), and the signed
// fulfillment format that lets the consumer authenticate the provider.
package vrf

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNonexistentRequest is returned by coordinators asked to fulfil a request
// they never issued or already fulfilled.
var ErrNonexistentRequest = errors.New("vrf: nonexistent request")

// RequestParams are the provider tuning values sent with every request.
type RequestParams struct {
	KeyHash              common.Hash `json:"key_hash"`
	SubscriptionID       uint64      `json:"subscription_id"`
	RequestConfirmations uint16      `json:"request_confirmations"`
	CallbackGasLimit     uint32      `json:"callback_gas_limit"`
	NumWords             uint32      `json:"num_words"`
}

// Coordinator issues asynchronous randomness requests. The returned id is the
// token the provider will echo back in its callback.
type Coordinator interface {
	RequestRandomWords(ctx context.Context, params RequestParams) (*big.Int, error)
	// Address identifies the provider; only callbacks authenticated as this
	// address are accepted.
	Address() common.Address
}

// Consumer receives fulfilled randomness. caller is the authenticated
// identity of whoever delivered the words.
type Consumer interface {
	FulfillRandomWords(ctx context.Context, caller common.Address, requestID *big.Int, words []*big.Int) error
}
