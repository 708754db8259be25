package vrf

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
)

const (
	// RequestStream is the durable stream external oracles consume.
	RequestStream = "vrf:requests"
	requestSeq    = "vrf:request_id"
)

// streamRequest is the payload appended to RequestStream.
type streamRequest struct {
	RequestID   string         `json:"request_id"`
	Params      RequestParams  `json:"params"`
	Coordinator common.Address `json:"coordinator"`
	RequestedAt time.Time      `json:"requested_at"`
}

// StreamCoordinator hands requests to an external oracle over a durable
// stream. The oracle answers through the signed fulfillment endpoint.
type StreamCoordinator struct {
	bus     domain.SignalBus
	seq     domain.Sequence
	address common.Address
}

// NewStreamCoordinator creates a StreamCoordinator whose oracle signs with
// the key behind address.
func NewStreamCoordinator(bus domain.SignalBus, seq domain.Sequence, address common.Address) *StreamCoordinator {
	return &StreamCoordinator{bus: bus, seq: seq, address: address}
}

// Address returns the oracle's signing address.
func (c *StreamCoordinator) Address() common.Address {
	return c.address
}

// RequestRandomWords allocates an id and publishes the request.
func (c *StreamCoordinator) RequestRandomWords(ctx context.Context, params RequestParams) (*big.Int, error) {
	n, err := c.seq.Next(ctx, requestSeq)
	if err != nil {
		return nil, fmt.Errorf("vrf: allocate request id: %w", err)
	}
	id := big.NewInt(n)

	payload, err := json.Marshal(streamRequest{
		RequestID:   id.String(),
		Params:      params,
		Coordinator: c.address,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("vrf: marshal request %s: %w", id, err)
	}
	if err := c.bus.StreamAppend(ctx, RequestStream, payload); err != nil {
		return nil, fmt.Errorf("vrf: publish request %s: %w", id, err)
	}
	return id, nil
}

var _ Coordinator = (*StreamCoordinator)(nil)
