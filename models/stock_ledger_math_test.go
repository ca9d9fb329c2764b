package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/manufacturing_backend/models"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestNormalizeMovementQuantity(t *testing.T) {
	cases := []struct {
		name string
		typ  models.MovementType
		raw  string
		want string
	}{
		{"receipt positive stays positive", models.MovementTypeReceipt, "50", "50"},
		{"receipt negative flips positive", models.MovementTypeReceipt, "-50", "50"},
		{"production negative flips positive", models.MovementTypeProduction, "-10", "10"},
		{"consumption positive flips negative", models.MovementTypeConsumption, "6", "-6"},
		{"consumption negative stays negative", models.MovementTypeConsumption, "-6", "-6"},
		{"sale positive flips negative", models.MovementTypeSale, "4", "-4"},
		{"adjustment keeps caller sign positive", models.MovementTypeAdjustment, "3", "3"},
		{"adjustment keeps caller sign negative", models.MovementTypeAdjustment, "-3", "-3"},
		{"transfer keeps caller sign", models.MovementTypeTransfer, "-7", "-7"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := models.NormalizeMovementQuantity(tc.typ, dec(tc.raw))
			if !got.Equal(dec(tc.want)) {
				t.Fatalf("normalize(%s, %s) = %s, want %s", tc.typ, tc.raw, got.String(), tc.want)
			}
		})
	}
}

func movementsFor(quantities ...string) []*models.StockMovement {
	out := make([]*models.StockMovement, 0, len(quantities))
	for i, q := range quantities {
		out = append(out, &models.StockMovement{ID: i + 1, Quantity: dec(q)})
	}
	return out
}

func TestRunningBalancesFoldForward(t *testing.T) {
	// receipt +100, consumption -6, consumption -4, receipt +10
	rows := models.RunningBalances(movementsFor("100", "-6", "-4", "10"))

	want := []string{"100", "94", "90", "100"}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rows), len(want))
	}
	for i, w := range want {
		if !rows[i].BalanceAfter.Equal(dec(w)) {
			t.Fatalf("row %d: balance %s, want %s", i, rows[i].BalanceAfter.String(), w)
		}
	}
}

func TestReverseForDisplayKeepsBalances(t *testing.T) {
	rows := models.RunningBalances(movementsFor("100", "-6", "-4", "10"))
	display := models.ReverseForDisplay(rows)

	// Newest row first, its balance is the ending balance.
	if display[0].Movement.ID != 4 {
		t.Fatalf("first display row is movement %d, want 4", display[0].Movement.ID)
	}
	if !display[0].BalanceAfter.Equal(dec("100")) {
		t.Fatalf("newest balance %s, want 100", display[0].BalanceAfter.String())
	}
	// The oldest row keeps the balance it had after being applied, not a
	// value derived backward from the ending balance.
	last := display[len(display)-1]
	if last.Movement.ID != 1 || !last.BalanceAfter.Equal(dec("100")) {
		t.Fatalf("oldest row = movement %d balance %s, want movement 1 balance 100",
			last.Movement.ID, last.BalanceAfter.String())
	}
	// Source order stays untouched.
	if rows[0].Movement.ID != 1 {
		t.Fatalf("source rows mutated")
	}
}

func TestEndingBalanceOrderIndependent(t *testing.T) {
	a := models.RunningBalances(movementsFor("100", "-6", "-4", "10"))
	b := models.RunningBalances(movementsFor("10", "-4", "-6", "100"))

	endA := a[len(a)-1].BalanceAfter
	endB := b[len(b)-1].BalanceAfter
	if !endA.Equal(endB) {
		t.Fatalf("ending balances differ: %s vs %s", endA.String(), endB.String())
	}
}

func TestRunningBalancesEmpty(t *testing.T) {
	if rows := models.RunningBalances(nil); len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
}

func TestDeriveItemStatus(t *testing.T) {
	cases := []struct {
		name    string
		qty     string
		reorder string
		want    models.ItemStatus
	}{
		{"zero is out of stock", "0", "10", models.ItemStatusOutOfStock},
		{"negative is out of stock", "-5", "10", models.ItemStatusOutOfStock},
		{"at reorder point is low", "10", "10", models.ItemStatusLowStock},
		{"below reorder point is low", "3", "10", models.ItemStatusLowStock},
		{"above reorder point is in stock", "11", "10", models.ItemStatusInStock},
		{"zero reorder point never reports low", "1", "0", models.ItemStatusInStock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := models.DeriveItemStatus(dec(tc.qty), dec(tc.reorder))
			if got != tc.want {
				t.Fatalf("status(%s, %s) = %s, want %s", tc.qty, tc.reorder, got, tc.want)
			}
		})
	}
}
