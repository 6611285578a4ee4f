package balance

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestMemoryLedger_DebitRequiresFunds(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Seed("alice", dec("50"))

	tests := []struct {
		name   string
		amount string
		want   bool
	}{
		{"within balance", "30", true},
		{"exact remainder", "20", true},
		{"over balance", "0.01", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := l.Debit(ctx, "alice", dec(tt.amount))
			if err != nil {
				t.Fatalf("debit: %v", err)
			}
			if ok != tt.want {
				t.Errorf("ok = %v, want %v", ok, tt.want)
			}
		})
	}

	bal, _ := l.GetBalance(ctx, "alice")
	if !bal.IsZero() {
		t.Errorf("balance = %s, want 0", bal)
	}
}

func TestMemoryLedger_NegativeAmountsRejected(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Seed("alice", dec("10"))

	if ok, _ := l.Debit(ctx, "alice", dec("-1")); ok {
		t.Error("negative debit accepted")
	}
	if ok, _ := l.Credit(ctx, "alice", dec("-1")); ok {
		t.Error("negative credit accepted")
	}
	if ok, _ := l.Transfer(ctx, "alice", "bob", dec("-1")); ok {
		t.Error("negative transfer accepted")
	}
}

func TestMemoryLedger_TransferConserves(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Seed("alice", dec("100"))

	ok, err := l.Transfer(ctx, "alice", "bob", dec("35.5"))
	if err != nil || !ok {
		t.Fatalf("transfer failed: ok=%v err=%v", ok, err)
	}

	alice, _ := l.GetBalance(ctx, "alice")
	bob, _ := l.GetBalance(ctx, "bob")
	if !alice.Equal(dec("64.5")) {
		t.Errorf("alice = %s, want 64.5", alice)
	}
	if !bob.Equal(dec("35.5")) {
		t.Errorf("bob = %s, want 35.5", bob)
	}
	if !alice.Add(bob).Equal(dec("100")) {
		t.Errorf("total changed: %s", alice.Add(bob))
	}
}

func TestMemoryLedger_TransferFailsWithoutFunds(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Seed("alice", dec("10"))

	ok, err := l.Transfer(ctx, "alice", "bob", dec("10.01"))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if ok {
		t.Fatal("transfer over balance accepted")
	}

	alice, _ := l.GetBalance(ctx, "alice")
	bob, _ := l.GetBalance(ctx, "bob")
	if !alice.Equal(dec("10")) || !bob.IsZero() {
		t.Errorf("balances touched on failed transfer: alice=%s bob=%s", alice, bob)
	}
}
