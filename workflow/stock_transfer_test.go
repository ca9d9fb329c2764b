package workflow_test

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/manufacturing_backend/models"
	"bitbucket.org/mmdatafocus/manufacturing_backend/utils"
	"bitbucket.org/mmdatafocus/manufacturing_backend/workflow"
)

func TestTransferConservesTotalStock(t *testing.T) {
	ctx := setupIntegration(t)

	main, err := models.EnsureDefaultStockLocation(ctx)
	if err != nil {
		t.Fatalf("EnsureDefaultStockLocation: %v", err)
	}
	site, err := models.CreateStockLocation(ctx, &models.NewStockLocation{
		Code: "LOC002", Name: "Assembly Site", Type: models.LocationTypeSite,
	})
	if err != nil {
		t.Fatalf("CreateStockLocation: %v", err)
	}

	if _, _, err := models.RecordMovement(ctx, &models.NewStockMovement{
		Sku: "RM-001", LocationId: main.ID, Type: models.MovementTypeReceipt, Quantity: dec("100"),
	}); err != nil {
		t.Fatalf("receipt: %v", err)
	}

	result, err := workflow.TransferStock(ctx, &workflow.StockTransferInput{
		Sku:            "RM-001",
		FromLocationId: main.ID,
		ToLocationId:   site.ID,
		Quantity:       dec("30"),
	})
	if err != nil {
		t.Fatalf("TransferStock: %v", err)
	}
	if !result.Outbound.Quantity.Equal(dec("-30")) || !result.Inbound.Quantity.Equal(dec("30")) {
		t.Fatalf("transfer quantities %s/%s, want -30/30",
			result.Outbound.Quantity.String(), result.Inbound.Quantity.String())
	}
	if result.Outbound.FromLocation != main.Code || result.Outbound.ToLocation != site.Code {
		t.Fatalf("outbound route %s -> %s, want %s -> %s",
			result.Outbound.FromLocation, result.Outbound.ToLocation, main.Code, site.Code)
	}

	sourceItem, _ := models.GetOrCreateInventoryItem(ctx, "RM-001", main.ID)
	destItem, _ := models.GetOrCreateInventoryItem(ctx, "RM-001", site.ID)
	if !sourceItem.Quantity.Equal(dec("70")) || !destItem.Quantity.Equal(dec("30")) {
		t.Fatalf("balances %s/%s, want 70/30",
			sourceItem.Quantity.String(), destItem.Quantity.String())
	}
	if !sourceItem.Quantity.Add(destItem.Quantity).Equal(dec("100")) {
		t.Fatalf("transfer did not conserve total stock")
	}
}

func TestTransferRejectsOverdrawAndSelfTransfer(t *testing.T) {
	ctx := setupIntegration(t)

	main, err := models.EnsureDefaultStockLocation(ctx)
	if err != nil {
		t.Fatalf("EnsureDefaultStockLocation: %v", err)
	}
	site, err := models.CreateStockLocation(ctx, &models.NewStockLocation{
		Code: "LOC002", Name: "Assembly Site", Type: models.LocationTypeSite,
	})
	if err != nil {
		t.Fatalf("CreateStockLocation: %v", err)
	}
	if _, _, err := models.RecordMovement(ctx, &models.NewStockMovement{
		Sku: "RM-001", LocationId: main.ID, Type: models.MovementTypeReceipt, Quantity: dec("10"),
	}); err != nil {
		t.Fatalf("receipt: %v", err)
	}

	_, err = workflow.TransferStock(ctx, &workflow.StockTransferInput{
		Sku: "RM-001", FromLocationId: main.ID, ToLocationId: site.ID, Quantity: dec("11"),
	})
	var insufficient *utils.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("overdraw error = %v, want InsufficientStockError", err)
	}
	// The rejected transfer must leave no half-posted rows.
	sourceItem, _ := models.GetOrCreateInventoryItem(ctx, "RM-001", main.ID)
	if !sourceItem.Quantity.Equal(dec("10")) {
		t.Fatalf("source balance %s after rejected transfer, want 10", sourceItem.Quantity.String())
	}

	_, err = workflow.TransferStock(ctx, &workflow.StockTransferInput{
		Sku: "RM-001", FromLocationId: main.ID, ToLocationId: main.ID, Quantity: dec("1"),
	})
	var validation *utils.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("self transfer error = %v, want ValidationError", err)
	}
}
