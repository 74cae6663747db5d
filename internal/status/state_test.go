package status

import (
	"testing"

	"github.com/matheus3301/chatline/internal/bus"
)

// walkTo drives a fresh machine to target along the shortest allowed path.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Booting:      {},
		AuthRequired: {AuthRequired},
		Connecting:   {Connecting},
		Syncing:      {Connecting, Syncing},
		Ready:        {Connecting, Ready},
		Reconnecting: {Connecting, Ready, Reconnecting},
		Stopped:      {Stopped},
		Error:        {Error},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}

func TestNewMachineBoots(t *testing.T) {
	if got := NewMachine(nil).Current(); got != Booting {
		t.Errorf("initial state = %s, want %s", got, Booting)
	}
}

func TestLifecycles(t *testing.T) {
	tests := []struct {
		name  string
		steps []State
	}{
		{"relay connect", []State{Connecting, Ready}},
		{"relay drop and redial", []State{Connecting, Ready, Reconnecting, Connecting, Ready}},
		{"relay gives up then retries", []State{Connecting, Reconnecting, Connecting, Ready}},
		{"whatsapp first pairing", []State{AuthRequired, Connecting, Syncing, Ready}},
		{"whatsapp returning device", []State{Connecting, Syncing, Ready}},
		{"whatsapp history resync", []State{Connecting, Ready, Syncing, Ready}},
		{"logged out remotely", []State{Connecting, Ready, AuthRequired}},
		{"shutdown and restart", []State{Connecting, Ready, Stopped, Connecting}},
		{"fatal error recovery", []State{Error, Booting, Connecting}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(nil)
			for _, s := range tt.steps {
				if err := m.Transition(s); err != nil {
					t.Fatalf("%s -> %s: %v", m.Current(), s, err)
				}
			}
			if want := tt.steps[len(tt.steps)-1]; m.Current() != want {
				t.Errorf("final state = %s, want %s", m.Current(), want)
			}
		})
	}
}

func TestRejectedTransitions(t *testing.T) {
	tests := []struct {
		from, to State
	}{
		{Booting, Ready},
		{Booting, Syncing},
		{AuthRequired, Syncing},
		{AuthRequired, Ready},
		{Reconnecting, Ready},
		{Stopped, Ready},
		{Error, Connecting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			b := bus.New()
			m := NewMachine(b)
			walkTo(t, m, tt.from)

			ch, unsub := b.Subscribe("session.", 1)
			defer unsub()

			if err := m.Transition(tt.to); err == nil {
				t.Fatalf("%s -> %s should be rejected", tt.from, tt.to)
			}
			if m.Current() != tt.from {
				t.Errorf("state moved to %s on a rejected transition", m.Current())
			}
			select {
			case evt := <-ch:
				t.Errorf("rejected transition published %+v", evt)
			default:
			}
		})
	}
}

func TestTransitionPublishesChange(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 4)
	defer unsub()

	m := NewMachine(b)
	for _, s := range []State{Connecting, Ready} {
		if err := m.Transition(s); err != nil {
			t.Fatal(err)
		}
	}

	want := []StatusChange{{From: Booting, To: Connecting}, {From: Connecting, To: Ready}}
	for _, w := range want {
		evt := <-ch
		if evt.Kind != bus.SessionStatusChanged {
			t.Fatalf("kind = %q, want %s", evt.Kind, bus.SessionStatusChanged)
		}
		if got, ok := evt.Payload.(StatusChange); !ok || got != w {
			t.Errorf("payload = %#v, want %#v", evt.Payload, w)
		}
	}
}

func TestSettle(t *testing.T) {
	b := bus.New()
	m := NewMachine(b)
	if !m.Settle(Connecting) {
		t.Fatal("Settle(CONNECTING) from BOOTING should succeed")
	}

	ch, unsub := b.Subscribe("session.", 1)
	defer unsub()
	if !m.Settle(Connecting) {
		t.Error("settling on the current state should succeed")
	}
	select {
	case evt := <-ch:
		t.Errorf("settling in place published %+v", evt)
	default:
	}

	if m.Settle(Booting) {
		t.Error("Settle(BOOTING) from CONNECTING should fail")
	}
	if m.Current() != Connecting {
		t.Errorf("state = %s, want CONNECTING", m.Current())
	}

	var nilMachine *Machine
	if !nilMachine.Settle(Ready) {
		t.Error("nil machine should accept any state")
	}
}

func TestStoppedIsReachableFromEveryState(t *testing.T) {
	for _, from := range []State{Booting, AuthRequired, Connecting, Syncing, Ready, Reconnecting, Error} {
		t.Run(string(from), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, from)
			if err := m.Transition(Stopped); err != nil {
				t.Errorf("%s -> STOPPED: %v", from, err)
			}
		})
	}
}
