package treasury

import (
	"math/big"
	"testing"
)

// FuzzReserveBacking drives random deposit, withdraw and manage sequences and
// checks reserves never fall below outstanding debt.
func FuzzReserveBacking(f *testing.F) {
	f.Add([]byte{0, 10, 1, 3, 2, 4, 0, 50, 2, 200})
	f.Add([]byte{2, 255, 1, 255, 0, 1})
	f.Fuzz(func(t *testing.T, ops []byte) {
		h := newHarness(t)
		for _, cat := range []Category{ReserveDepositor, ReserveSpender, ReserveManager} {
			if _, err := h.engine.ToggleAccount(admin, cat, operator); err != nil {
				t.Fatalf("toggle: %v", err)
			}
		}
		for i := 0; i+1 < len(ops); i += 2 {
			amount := usdc(int64(ops[i+1]) + 1)
			snap := h.state.Snapshot()
			var err error
			switch ops[i] % 4 {
			case 0:
				if mintErr := h.bank.Mint(operator, "USDC", amount); mintErr != nil {
					t.Fatalf("mint: %v", mintErr)
				}
				_, err = h.engine.Deposit(operator, "USDC", amount, big.NewInt(0))
			case 1:
				err = h.engine.Withdraw(operator, "USDC", amount)
			case 2:
				err = h.engine.Manage(operator, "USDC", amount)
			case 3:
				// A bond market books debt it is backed for.
				reserves, _ := h.engine.TotalReserves()
				h.debt.debt = new(big.Int).Quo(reserves, big.NewInt(int64(ops[i+1]%4)+2))
			}
			if err != nil {
				h.state.RevertToSnapshot(snap)
			}
			excess, exErr := h.engine.ExcessReserves()
			if exErr != nil {
				t.Fatalf("excess: %v", exErr)
			}
			if excess.Sign() < 0 {
				t.Fatalf("backing invariant broken after op %d: excess %s", ops[i]%4, excess)
			}
		}
	})
}
