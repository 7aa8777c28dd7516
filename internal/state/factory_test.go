package state

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDisabledStoreFailsEveryOperation(t *testing.T) {
	ctx := context.Background()
	store := NewDisabledStore()

	if _, err := store.Get(ctx, "resp_1"); !errors.Is(err, ErrDisabled) {
		t.Errorf("Get = %v, want ErrDisabled", err)
	}
	if err := store.Put(ctx, "resp_1", sampleTurn()); !errors.Is(err, ErrDisabled) {
		t.Errorf("Put = %v, want ErrDisabled", err)
	}
	if _, err := store.Delete(ctx, "resp_1"); !errors.Is(err, ErrDisabled) {
		t.Errorf("Delete = %v, want ErrDisabled", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		opts    Options
		want    any
		wantErr bool
	}{
		{name: "memory", opts: Options{Backend: BackendMemory, TTL: time.Hour}, want: &MemoryStore{}},
		{name: "default is memory", opts: Options{}, want: &MemoryStore{}},
		{name: "disabled", opts: Options{Backend: BackendDisabled}, want: &DisabledStore{}},
		{name: "unknown backend", opts: Options{Backend: "postgres"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := New(ctx, tt.opts)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			switch tt.want.(type) {
			case *MemoryStore:
				if _, ok := store.(*MemoryStore); !ok {
					t.Errorf("store = %T, want *MemoryStore", store)
				}
			case *DisabledStore:
				if _, ok := store.(*DisabledStore); !ok {
					t.Errorf("store = %T, want *DisabledStore", store)
				}
			}
		})
	}
}
