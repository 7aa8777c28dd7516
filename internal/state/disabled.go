package state

import (
	"context"
	"errors"
)

// ErrDisabled is returned by every operation when the operator turned the
// conversation store off. Handlers surface it as 501.
var ErrDisabled = errors.New("state backend disabled")

// DisabledStore is the backend used when state persistence is switched off.
// Every operation fails with ErrDisabled so callers can distinguish "off" from
// "missing".
type DisabledStore struct{}

// NewDisabledStore returns the disabled backend.
func NewDisabledStore() *DisabledStore { return &DisabledStore{} }

func (*DisabledStore) Get(ctx context.Context, responseID string) (*StoredTurn, error) {
	return nil, ErrDisabled
}

func (*DisabledStore) Put(ctx context.Context, responseID string, turn *StoredTurn) error {
	return ErrDisabled
}

func (*DisabledStore) Delete(ctx context.Context, responseID string) (bool, error) {
	return false, ErrDisabled
}

func (*DisabledStore) Close() error { return nil }
