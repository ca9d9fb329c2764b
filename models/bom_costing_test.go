package models_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/manufacturing_backend/models"
	"github.com/shopspring/decimal"
)

func TestComputeBomCost(t *testing.T) {
	components := []models.BomComponent{
		{Sku: "RM-001", Quantity: dec("2"), UnitCost: dec("5")},
		{Sku: "RM-002", Quantity: dec("4"), UnitCost: dec("2")},
	}

	material, total := models.ComputeBomCost(components, dec("20"), dec("15"))
	if !material.Equal(dec("18")) {
		t.Fatalf("material cost %s, want 18", material.String())
	}
	if !total.Equal(dec("53")) {
		t.Fatalf("total cost %s, want 53", total.String())
	}
}

func TestComputeBomCostNoComponents(t *testing.T) {
	material, total := models.ComputeBomCost(nil, dec("20"), dec("15"))
	if !material.IsZero() {
		t.Fatalf("material cost %s, want 0", material.String())
	}
	if !total.Equal(dec("35")) {
		t.Fatalf("total cost %s, want 35", total.String())
	}
}

func TestComputeBomCostFractionalQuantities(t *testing.T) {
	components := []models.BomComponent{
		{Sku: "RM-003", Quantity: dec("0.25"), UnitCost: dec("10.4")},
	}
	material, total := models.ComputeBomCost(components, decimal.Zero, decimal.Zero)
	if !material.Equal(dec("2.6")) {
		t.Fatalf("material cost %s, want 2.6", material.String())
	}
	if !total.Equal(material) {
		t.Fatalf("total %s should equal material with zero labor and overhead", total.String())
	}
}

func TestRecomputeCostsRefreshesStoredTotals(t *testing.T) {
	bom := models.BillOfMaterials{
		LaborCost:    dec("20"),
		OverheadCost: dec("15"),
		Components: []models.BomComponent{
			{Sku: "RM-001", Quantity: dec("2"), UnitCost: dec("5")},
			{Sku: "RM-002", Quantity: dec("4"), UnitCost: dec("2")},
		},
		// Stale stored totals.
		TotalMaterialCost: dec("999"),
		TotalCost:         dec("999"),
	}
	bom.RecomputeCosts()
	if !bom.TotalMaterialCost.Equal(dec("18")) || !bom.TotalCost.Equal(dec("53")) {
		t.Fatalf("recomputed totals %s/%s, want 18/53",
			bom.TotalMaterialCost.String(), bom.TotalCost.String())
	}
}
