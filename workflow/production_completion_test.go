package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/manufacturing_backend/config"
	"bitbucket.org/mmdatafocus/manufacturing_backend/models"
	"bitbucket.org/mmdatafocus/manufacturing_backend/utils"
	"bitbucket.org/mmdatafocus/manufacturing_backend/workflow"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func setupIntegration(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "manufacturing_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")

	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:  "Test Manufacturer",
		Email: "owner@test.local",
	})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	return utils.SetBusinessIdInContext(ctx, biz.ID.String())
}

// seedBomWithStock creates an active two-component BOM and enough component
// stock at the default location for the requested number of units.
func seedBomWithStock(t *testing.T, ctx context.Context, units string) (*models.BillOfMaterials, *models.StockLocation) {
	t.Helper()
	loc, err := models.EnsureDefaultStockLocation(ctx)
	if err != nil {
		t.Fatalf("EnsureDefaultStockLocation: %v", err)
	}

	bom, err := models.CreateBillOfMaterials(ctx, &models.NewBillOfMaterials{
		ProductSku:  "FG-001",
		ProductName: "Widget",
		Status:      models.BomStatusActive,
		LaborCost:   dec("20"),
		Components: []models.NewBomComponent{
			{Sku: "RM-001", Name: "Bracket", Quantity: dec("2"), UnitCost: dec("5")},
			{Sku: "RM-002", Name: "Screws", Quantity: dec("4"), UnitCost: dec("2")},
		},
	})
	if err != nil {
		t.Fatalf("CreateBillOfMaterials: %v", err)
	}

	u := dec(units)
	for _, seed := range []struct {
		sku string
		qty decimal.Decimal
	}{
		{"RM-001", dec("2").Mul(u)},
		{"RM-002", dec("4").Mul(u)},
	} {
		if _, _, err := models.RecordMovement(ctx, &models.NewStockMovement{
			Sku: seed.sku, LocationId: loc.ID, Type: models.MovementTypeReceipt, Quantity: seed.qty,
		}); err != nil {
			t.Fatalf("seed receipt %s: %v", seed.sku, err)
		}
	}
	return bom, loc
}

func TestCompleteProductionOrderPostsMovements(t *testing.T) {
	ctx := setupIntegration(t)
	bom, loc := seedBomWithStock(t, ctx, "10")

	order, err := models.CreateProductionOrder(ctx, &models.NewProductionOrder{
		BillOfMaterialsId: bom.ID,
		LocationId:        loc.ID,
		Quantity:          dec("10"),
	})
	if err != nil {
		t.Fatalf("CreateProductionOrder: %v", err)
	}
	if !order.TotalCost.Equal(dec("380")) {
		// (2*5 + 4*2 + 20) * 10
		t.Fatalf("order total cost %s, want 380", order.TotalCost.String())
	}

	result, err := workflow.CompleteProductionOrder(ctx, order.ID, dec("10"))
	if err != nil {
		t.Fatalf("CompleteProductionOrder: %v", err)
	}
	if result.Order.Status != models.ProductionOrderStatusCompleted {
		t.Fatalf("order status %s, want completed", result.Order.Status)
	}
	if result.Order.CompletedAt == nil {
		t.Fatalf("completed_at not set")
	}
	// Two consumptions plus one production.
	if len(result.Movements) != 3 {
		t.Fatalf("got %d movements, want 3", len(result.Movements))
	}

	// Components fully consumed, product stocked in.
	for sku, want := range map[string]string{
		"RM-001": "0",
		"RM-002": "0",
		"FG-001": "10",
	} {
		item, err := models.GetOrCreateInventoryItem(ctx, sku, loc.ID)
		if err != nil {
			t.Fatalf("fetch item %s: %v", sku, err)
		}
		if !item.Quantity.Equal(dec(want)) {
			t.Fatalf("%s balance %s, want %s", sku, item.Quantity.String(), want)
		}
	}

	// Consumption movements carry the scaled component quantities.
	rows, err := models.LedgerForItem(ctx, "RM-002", loc.ID, false)
	if err != nil {
		t.Fatalf("LedgerForItem: %v", err)
	}
	last := rows[len(rows)-1]
	if !last.Movement.Quantity.Equal(dec("-40")) {
		t.Fatalf("component consumption quantity %s, want -40", last.Movement.Quantity.String())
	}
	if last.Movement.Reference != order.OrderNumber {
		t.Fatalf("movement reference %q, want %q", last.Movement.Reference, order.OrderNumber)
	}
}

func TestPartialCompletionLeavesOrderInProgress(t *testing.T) {
	ctx := setupIntegration(t)
	bom, loc := seedBomWithStock(t, ctx, "10")

	order, err := models.CreateProductionOrder(ctx, &models.NewProductionOrder{
		BillOfMaterialsId: bom.ID,
		LocationId:        loc.ID,
		Quantity:          dec("10"),
	})
	if err != nil {
		t.Fatalf("CreateProductionOrder: %v", err)
	}

	result, err := workflow.CompleteProductionOrder(ctx, order.ID, dec("4"))
	if err != nil {
		t.Fatalf("partial completion: %v", err)
	}
	if result.Order.Status != models.ProductionOrderStatusInProgress {
		t.Fatalf("order status %s, want in_progress", result.Order.Status)
	}
	if !result.Order.RemainingQuantity().Equal(dec("6")) {
		t.Fatalf("remaining %s, want 6", result.Order.RemainingQuantity().String())
	}

	// Overproduction against the remainder is rejected and posts nothing.
	fgBefore, _ := models.GetOrCreateInventoryItem(ctx, "FG-001", loc.ID)
	_, err = workflow.CompleteProductionOrder(ctx, order.ID, dec("7"))
	var validation *utils.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("overproduction error = %v, want ValidationError", err)
	}
	fgAfter, _ := models.GetOrCreateInventoryItem(ctx, "FG-001", loc.ID)
	if !fgBefore.Quantity.Equal(fgAfter.Quantity) {
		t.Fatalf("rejected completion changed product balance")
	}
}

func TestCompletionRollsBackOnComponentShortage(t *testing.T) {
	ctx := setupIntegration(t)
	// Stock for only 2 units, order 5 and try to complete 5.
	bom, loc := seedBomWithStock(t, ctx, "2")

	order, err := models.CreateProductionOrder(ctx, &models.NewProductionOrder{
		BillOfMaterialsId: bom.ID,
		LocationId:        loc.ID,
		Quantity:          dec("5"),
	})
	if err != nil {
		t.Fatalf("CreateProductionOrder: %v", err)
	}

	_, err = workflow.CompleteProductionOrder(ctx, order.ID, dec("5"))
	var insufficient *utils.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("shortage error = %v, want InsufficientStockError", err)
	}

	// Nothing was consumed, produced, or advanced.
	for sku, want := range map[string]string{"RM-001": "4", "RM-002": "8", "FG-001": "0"} {
		item, err := models.GetOrCreateInventoryItem(ctx, sku, loc.ID)
		if err != nil {
			t.Fatalf("fetch item %s: %v", sku, err)
		}
		if !item.Quantity.Equal(dec(want)) {
			t.Fatalf("%s balance %s, want %s", sku, item.Quantity.String(), want)
		}
	}
	reloaded, err := models.GetProductionOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetProductionOrder: %v", err)
	}
	if reloaded.Status != models.ProductionOrderStatusPlanned || !reloaded.QuantityProduced.IsZero() {
		t.Fatalf("order advanced despite rollback: status=%s produced=%s",
			reloaded.Status, reloaded.QuantityProduced.String())
	}
}
