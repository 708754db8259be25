package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Payer moves the settled round balance to the winner. Transfer must be
// all-or-nothing: on error no funds have moved.
type Payer interface {
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
}

// Ledger is the account book behind a Payer: entries credit the house
// account and settlement pays out of it.
type Ledger interface {
	Payer
	Credit(ctx context.Context, account common.Address, amount *big.Int) error
	Balance(ctx context.Context, account common.Address) (*big.Int, error)
}
