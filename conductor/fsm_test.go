package conductor

import (
	"errors"
	"testing"

	"iotronic/store"
)

func TestMachineRegisterPath(t *testing.T) {
	m := NewMachine(store.StatusRegistered)

	if err := m.ProcessEvent("b-1", EventRegister); err != nil {
		t.Fatalf("register: %v", err)
	}
	if m.Current() != store.StatusOffline {
		t.Errorf("Current = %q, want %q", m.Current(), store.StatusOffline)
	}
	if m.Target() != store.StatusOnline {
		t.Errorf("Target = %q, want %q", m.Target(), store.StatusOnline)
	}

	if err := m.ProcessEvent("b-1", EventConnect); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if m.Current() != store.StatusOnline {
		t.Errorf("Current = %q, want %q", m.Current(), store.StatusOnline)
	}
	if m.Target() != "" {
		t.Errorf("Target = %q, want empty", m.Target())
	}
}

func TestMachineDisconnectReconnect(t *testing.T) {
	m := NewMachine(store.StatusOnline)

	if err := m.ProcessEvent("b-1", EventDisconnect); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if m.Current() != store.StatusDisconnected {
		t.Errorf("Current = %q, want %q", m.Current(), store.StatusDisconnected)
	}
	// A dropped board still wants to be online.
	if m.Target() != store.StatusOnline {
		t.Errorf("Target = %q, want %q", m.Target(), store.StatusOnline)
	}

	if err := m.ProcessEvent("b-1", EventConnect); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if m.Current() != store.StatusOnline {
		t.Errorf("Current = %q, want %q", m.Current(), store.StatusOnline)
	}
}

func TestMachineOfflinePaths(t *testing.T) {
	for _, start := range []string{store.StatusOnline, store.StatusDisconnected} {
		m := NewMachine(start)
		if err := m.ProcessEvent("b-1", EventOffline); err != nil {
			t.Errorf("offline from %s: %v", start, err)
			continue
		}
		if m.Current() != store.StatusOffline {
			t.Errorf("Current from %s = %q, want %q", start, m.Current(), store.StatusOffline)
		}
	}
}

func TestMachineInvalidEvent(t *testing.T) {
	m := NewMachine(store.StatusRegistered)

	err := m.ProcessEvent("b-1", EventConnect)
	var invalid *InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
	if invalid.State != store.StatusRegistered || invalid.Event != EventConnect {
		t.Errorf("error = %+v", invalid)
	}
	// Rejected events leave the machine unchanged.
	if m.Current() != store.StatusRegistered {
		t.Errorf("Current = %q, want %q", m.Current(), store.StatusRegistered)
	}
	if m.Target() != "" {
		t.Errorf("Target = %q, want empty", m.Target())
	}
}

func TestMachineNoOfflineFromRegistered(t *testing.T) {
	m := NewMachine(store.StatusRegistered)
	if err := m.ProcessEvent("b-1", EventOffline); err == nil {
		t.Error("offline should not be allowed before registration completes")
	}
}
