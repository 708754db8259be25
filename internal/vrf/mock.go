package vrf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/lotterykeeper/internal/crypto"
)

// MockCoordinator is an in-process coordinator for development and tests.
// Requests are numbered from 1 and answered only when FulfillRandomWords is
// called, with words derived as keccak256(abi.encode(requestID, i)).
type MockCoordinator struct {
	signer *crypto.Signer
	logger *slog.Logger

	mu       sync.Mutex
	consumer Consumer
	nextID   int64
	requests map[string]RequestParams
}

// NewMockCoordinator creates a mock whose fulfillments are signed by signer.
func NewMockCoordinator(signer *crypto.Signer, logger *slog.Logger) *MockCoordinator {
	return &MockCoordinator{
		signer:   signer,
		logger:   logger.With(slog.String("component", "vrf_mock")),
		nextID:   1,
		requests: make(map[string]RequestParams),
	}
}

// SetConsumer registers the receiver of fulfillments. The consumer is usually
// built after the coordinator, hence the setter.
func (m *MockCoordinator) SetConsumer(c Consumer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumer = c
}

// Address returns the signing address of the mock.
func (m *MockCoordinator) Address() common.Address {
	return m.signer.Address()
}

// RequestRandomWords records the request and returns its id.
func (m *MockCoordinator) RequestRandomWords(ctx context.Context, params RequestParams) (*big.Int, error) {
	if params.NumWords == 0 {
		return nil, errors.New("vrf: num words must be >= 1")
	}

	m.mu.Lock()
	id := big.NewInt(m.nextID)
	m.nextID++
	m.requests[id.String()] = params
	m.mu.Unlock()

	m.logger.DebugContext(ctx, "randomness requested",
		slog.String("request_id", id.String()),
		slog.Int("num_words", int(params.NumWords)),
	)
	return id, nil
}

// Resume puts a request restored from a saved round back on record so it can
// still be fulfilled. New ids continue after it.
func (m *MockCoordinator) Resume(requestID *big.Int, params RequestParams) {
	if requestID == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[requestID.String()] = params
	if requestID.IsInt64() && requestID.Int64() >= m.nextID {
		m.nextID = requestID.Int64() + 1
	}
}

// Pending reports whether requestID is still awaiting fulfillment.
func (m *MockCoordinator) Pending(requestID *big.Int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.requests[requestID.String()]
	return ok
}

// FulfillRandomWords answers requestID with derived words.
func (m *MockCoordinator) FulfillRandomWords(ctx context.Context, requestID *big.Int) error {
	params, err := m.lookup(requestID)
	if err != nil {
		return err
	}
	return m.fulfill(ctx, requestID, DeriveWords(requestID, params.NumWords))
}

// FulfillRandomWordsWithOverride answers requestID with the given words.
func (m *MockCoordinator) FulfillRandomWordsWithOverride(ctx context.Context, requestID *big.Int, words []*big.Int) error {
	if _, err := m.lookup(requestID); err != nil {
		return err
	}
	return m.fulfill(ctx, requestID, words)
}

func (m *MockCoordinator) lookup(requestID *big.Int) (RequestParams, error) {
	if requestID == nil {
		return RequestParams{}, ErrNonexistentRequest
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	params, ok := m.requests[requestID.String()]
	if !ok {
		return RequestParams{}, fmt.Errorf("%w: %s", ErrNonexistentRequest, requestID)
	}
	return params, nil
}

// fulfill signs and delivers the words. The request stays on record when the
// consumer rejects it so the same answer can be redelivered.
func (m *MockCoordinator) fulfill(ctx context.Context, requestID *big.Int, words []*big.Int) error {
	m.mu.Lock()
	consumer := m.consumer
	m.mu.Unlock()
	if consumer == nil {
		return errors.New("vrf: mock has no consumer")
	}

	f, err := Sign(m.signer, requestID, words)
	if err != nil {
		return err
	}
	if err := Deliver(ctx, consumer, f); err != nil {
		m.logger.WarnContext(ctx, "fulfillment rejected by consumer",
			slog.String("request_id", requestID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}

	m.mu.Lock()
	delete(m.requests, requestID.String())
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "randomness fulfilled",
		slog.String("request_id", requestID.String()),
	)
	return nil
}

// DeriveWords returns n words as keccak256(abi.encode(requestID, i)).
func DeriveWords(requestID *big.Int, n uint32) []*big.Int {
	words := make([]*big.Int, n)
	for i := range words {
		h := ethcrypto.Keccak256(
			common.BigToHash(requestID).Bytes(),
			common.BigToHash(big.NewInt(int64(i))).Bytes(),
		)
		words[i] = new(big.Int).SetBytes(h)
	}
	return words
}

var _ Coordinator = (*MockCoordinator)(nil)
