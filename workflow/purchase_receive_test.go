package workflow_test

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/manufacturing_backend/config"
	"bitbucket.org/mmdatafocus/manufacturing_backend/models"
	"bitbucket.org/mmdatafocus/manufacturing_backend/utils"
	"bitbucket.org/mmdatafocus/manufacturing_backend/workflow"
)

func TestReceivePurchaseOrderStocksIn(t *testing.T) {
	ctx := setupIntegration(t)

	supplier, err := models.CreateSupplier(ctx, &models.NewSupplier{Name: "Acme Metals"})
	if err != nil {
		t.Fatalf("CreateSupplier: %v", err)
	}

	// No delivery location on the order; receiving falls back to LOC001.
	order, err := models.CreatePurchaseOrder(ctx, &models.NewPurchaseOrder{
		SupplierId: supplier.ID,
		Details: []models.NewPurchaseOrderDetail{
			{Sku: "RM-001", ItemName: "Bracket", Quantity: dec("50"), UnitCost: dec("5.5")},
			{Sku: "RM-002", ItemName: "Screws", Quantity: dec("200"), UnitCost: dec("0.2")},
		},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseOrder: %v", err)
	}
	if !order.OrderTotal.Equal(dec("315")) {
		t.Fatalf("order total %s, want 315", order.OrderTotal.String())
	}

	// Draft orders cannot be received.
	_, err = workflow.ReceivePurchaseOrder(ctx, order.ID)
	var validation *utils.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("receive draft error = %v, want ValidationError", err)
	}

	if _, err := models.ConfirmPurchaseOrder(ctx, order.ID); err != nil {
		t.Fatalf("ConfirmPurchaseOrder: %v", err)
	}
	result, err := workflow.ReceivePurchaseOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("ReceivePurchaseOrder: %v", err)
	}
	if result.Order.Status != models.PurchaseOrderStatusReceived {
		t.Fatalf("order status %s, want received", result.Order.Status)
	}
	if len(result.Movements) != 2 {
		t.Fatalf("got %d movements, want 2", len(result.Movements))
	}

	loc, err := models.EnsureDefaultStockLocation(ctx)
	if err != nil {
		t.Fatalf("EnsureDefaultStockLocation: %v", err)
	}
	item, err := models.GetOrCreateInventoryItem(ctx, "RM-001", loc.ID)
	if err != nil {
		t.Fatalf("fetch item: %v", err)
	}
	if !item.Quantity.Equal(dec("50")) {
		t.Fatalf("received balance %s, want 50", item.Quantity.String())
	}
	if !item.UnitCost.Equal(dec("5.5")) {
		t.Fatalf("unit cost %s, want 5.5 from purchase line", item.UnitCost.String())
	}

	// Receiving twice would double stock; the status gate prevents it.
	_, err = workflow.ReceivePurchaseOrder(ctx, order.ID)
	if !errors.As(err, &validation) {
		t.Fatalf("double receive error = %v, want ValidationError", err)
	}
}

func TestRebuildDetectsAndRepairsDrift(t *testing.T) {
	ctx := setupIntegration(t)

	loc, err := models.EnsureDefaultStockLocation(ctx)
	if err != nil {
		t.Fatalf("EnsureDefaultStockLocation: %v", err)
	}
	if _, _, err := models.RecordMovement(ctx, &models.NewStockMovement{
		Sku: "RM-001", LocationId: loc.ID, Type: models.MovementTypeReceipt, Quantity: dec("100"),
	}); err != nil {
		t.Fatalf("receipt: %v", err)
	}
	item, err := models.GetOrCreateInventoryItem(ctx, "RM-001", loc.ID)
	if err != nil {
		t.Fatalf("fetch item: %v", err)
	}

	// Corrupt the cached balance behind the ledger's back.
	db := config.GetDB()
	if err := db.Model(&models.InventoryItem{}).Where("id = ?", item.ID).
		UpdateColumn("quantity", dec("42")).Error; err != nil {
		t.Fatalf("corrupt balance: %v", err)
	}

	report, err := workflow.RebuildAllBalances(ctx)
	if err != nil {
		t.Fatalf("RebuildAllBalances: %v", err)
	}
	if report.ItemsDrifted != 1 {
		t.Fatalf("drifted %d items, want 1", report.ItemsDrifted)
	}

	repaired, err := models.GetOrCreateInventoryItem(ctx, "RM-001", loc.ID)
	if err != nil {
		t.Fatalf("fetch repaired item: %v", err)
	}
	if !repaired.Quantity.Equal(dec("100")) {
		t.Fatalf("repaired balance %s, want 100", repaired.Quantity.String())
	}

	// A clean second pass reports no drift.
	report, err = workflow.RebuildAllBalances(ctx)
	if err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	if report.ItemsDrifted != 0 {
		t.Fatalf("second pass drifted %d items, want 0", report.ItemsDrifted)
	}
}
