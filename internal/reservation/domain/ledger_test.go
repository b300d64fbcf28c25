package domain

import (
	"errors"
	"testing"
)

func TestTryReserve(t *testing.T) {
	tests := []struct {
		name    string
		ledger  Ledger
		qty     int
		want    Ledger
		wantErr error
	}{
		{"moves units", Ledger{Available: 5}, 3, Ledger{Available: 2, Reserved: 3, Pending: 3}, nil},
		{"exact capacity", Ledger{Available: 4, Reserved: 1, Pending: 1}, 4, Ledger{Available: 0, Reserved: 5, Pending: 5}, nil},
		{"over capacity", Ledger{Available: 2}, 3, Ledger{}, ErrInsufficientStock},
		{"zero quantity", Ledger{Available: 2}, 0, Ledger{}, ErrInvalidRequest},
		{"negative quantity", Ledger{Available: 2}, -1, Ledger{}, ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.ledger.TryReserve(tt.qty)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTryRelease(t *testing.T) {
	tests := []struct {
		name    string
		ledger  Ledger
		qty     int
		pending bool
		want    Ledger
		wantErr error
	}{
		{"releases pending", Ledger{Available: 2, Reserved: 3, Pending: 3}, 3, true, Ledger{Available: 5, Reserved: 0, Pending: 0}, nil},
		{"releases confirmed", Ledger{Available: 2, Reserved: 3, Pending: 0}, 3, false, Ledger{Available: 5, Reserved: 0, Pending: 0}, nil},
		{"over reserved", Ledger{Available: 2, Reserved: 1}, 2, false, Ledger{}, ErrInvalidRelease},
		{"zero quantity", Ledger{Reserved: 1}, 0, false, Ledger{}, ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.ledger.TryRelease(tt.qty, tt.pending)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestConfirmPending(t *testing.T) {
	led := Ledger{Available: 2, Reserved: 3, Pending: 3}
	got, err := led.ConfirmPending(3)
	if err != nil {
		t.Fatalf("confirm pending: %v", err)
	}
	if got.Available != 2 || got.Reserved != 3 || got.Pending != 0 {
		t.Errorf("got %+v, confirm must only drain pending", got)
	}

	// Denormalized drift clamps instead of failing.
	drifted := Ledger{Reserved: 2, Pending: 1}
	got, err = drifted.ConfirmPending(2)
	if err != nil || got.Pending != 0 {
		t.Errorf("drift clamp failed: %+v, %v", got, err)
	}

	if _, err := led.ConfirmPending(0); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("zero confirm: %v", err)
	}
}

// No sequence of reserve/release calls may create or destroy units.
func TestConservation(t *testing.T) {
	led := Ledger{Available: 10}
	total := led.Available + led.Reserved

	steps := []struct {
		reserve bool
		qty     int
		pending bool
	}{
		{true, 4, true}, {true, 3, true}, {false, 2, true},
		{true, 5, true}, {false, 5, false}, {false, 1, true},
	}
	for i, s := range steps {
		var err error
		var next Ledger
		if s.reserve {
			next, err = led.TryReserve(s.qty)
		} else {
			next, err = led.TryRelease(s.qty, s.pending)
		}
		if err != nil {
			continue
		}
		led = next
		if led.Available+led.Reserved != total {
			t.Fatalf("step %d: units not conserved: %+v", i, led)
		}
		if led.Available < 0 || led.Reserved < 0 {
			t.Fatalf("step %d: negative counter: %+v", i, led)
		}
	}
}

func TestHasAvailable(t *testing.T) {
	led := Ledger{Available: 3}
	if !led.HasAvailable(3) || led.HasAvailable(4) || led.HasAvailable(0) {
		t.Errorf("HasAvailable boundaries wrong for %+v", led)
	}
}
