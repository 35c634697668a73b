package vrf

import (
	"context"
	"encoding/binary"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrUnknownRequest = errors.New("unknown randomness request")
)

// Coordinator issues randomness requests. Fulfillment arrives asynchronously
// through the callback registered by the consumer.
type Coordinator interface {
	// RequestRandomWords asks for one random word and returns the request id.
	RequestRandomWords(ctx context.Context) (uint64, error)
}

// Fulfiller is implemented by consumers of random words.
type Fulfiller interface {
	FulfillRandomWords(requestID uint64, word *big.Int) error
}

// Mock is a deterministic in-process Coordinator. The word for a request is
// the keccak of its id, so tests can predict draws without stubbing.
type Mock struct {
	mu       sync.Mutex
	nextID   uint64
	pending  map[uint64]struct{}
	consumer Fulfiller
}

func NewMock() *Mock {
	return &Mock{nextID: 1, pending: make(map[uint64]struct{})}
}

// Bind registers the consumer that receives fulfillments.
func (m *Mock) Bind(c Fulfiller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumer = c
}

func (m *Mock) RequestRandomWords(context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.pending[id] = struct{}{}
	return id, nil
}

// Word is the deterministic random word for a request id.
func Word(requestID uint64) *big.Int {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], requestID)
	return new(big.Int).SetBytes(crypto.Keccak256(buf[:]))
}

// Fulfill delivers the deterministic word for a pending request to the bound
// consumer. Tests call this to advance lottery draws.
func (m *Mock) Fulfill(requestID uint64) error {
	m.mu.Lock()
	if _, ok := m.pending[requestID]; !ok {
		m.mu.Unlock()
		return ErrUnknownRequest
	}
	delete(m.pending, requestID)
	consumer := m.consumer
	m.mu.Unlock()

	if consumer == nil {
		return errors.New("no consumer bound")
	}
	return consumer.FulfillRandomWords(requestID, Word(requestID))
}

// FulfillWith delivers an arbitrary word, for tests that need a chosen draw.
func (m *Mock) FulfillWith(requestID uint64, word *big.Int) error {
	m.mu.Lock()
	if _, ok := m.pending[requestID]; !ok {
		m.mu.Unlock()
		return ErrUnknownRequest
	}
	delete(m.pending, requestID)
	consumer := m.consumer
	m.mu.Unlock()

	if consumer == nil {
		return errors.New("no consumer bound")
	}
	return consumer.FulfillRandomWords(requestID, word)
}
