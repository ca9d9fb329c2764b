package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/manufacturing_backend/config"
	"bitbucket.org/mmdatafocus/manufacturing_backend/utils"
	"github.com/shopspring/decimal"
)

type ProductionOrder struct {
	ID                int                   `gorm:"primary_key" json:"id"`
	BusinessId        string                `gorm:"index;not null" json:"business_id"`
	OrderNumber       string                `gorm:"size:20;not null" json:"order_number"`
	BillOfMaterialsId int                   `gorm:"index;not null" json:"bill_of_materials_id" binding:"required"`
	ProductSku        string                `gorm:"size:100;not null" json:"product_sku"`
	LocationId        int                   `gorm:"index;not null" json:"location_id"`
	Quantity          decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	QuantityProduced  decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"quantity_produced"`
	Status            ProductionOrderStatus `gorm:"type:enum('planned','in_progress','completed','cancelled');default:'planned'" json:"status"`
	TotalCost         decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"total_cost"`
	StartDate         *time.Time            `gorm:"default:null" json:"start_date"`
	DueDate           *time.Time            `gorm:"default:null" json:"due_date"`
	CompletedAt       *time.Time            `gorm:"default:null" json:"completed_at"`
	CreatedAt         time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

// RemainingQuantity is how much can still be produced against the order.
func (order *ProductionOrder) RemainingQuantity() decimal.Decimal {
	return order.Quantity.Sub(order.QuantityProduced)
}

type NewProductionOrder struct {
	BillOfMaterialsId int             `json:"bill_of_materials_id" binding:"required"`
	LocationId        int             `json:"location_id" binding:"required"`
	Quantity          decimal.Decimal `json:"quantity" binding:"required"`
	StartDate         *time.Time      `json:"start_date"`
	DueDate           *time.Time      `json:"due_date"`
}

// CreateProductionOrder plans a run against an active BOM. Total cost is the
// BOM total scaled by the ordered quantity, priced at creation time.
func CreateProductionOrder(ctx context.Context, input *NewProductionOrder) (*ProductionOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if input.Quantity.Sign() <= 0 {
		return nil, utils.NewValidationError("quantity", "must be positive")
	}
	if err := utils.ValidateResourceId[StockLocation](ctx, businessId, input.LocationId); err != nil {
		return nil, utils.NewNotFoundError("location", "")
	}

	bom, err := GetBillOfMaterials(ctx, input.BillOfMaterialsId)
	if err != nil {
		return nil, err
	}
	if bom.Status == BomStatusObsolete {
		return nil, utils.NewValidationError("bill_of_materials_id", "bom is obsolete")
	}

	db := config.GetDB()
	var seq int
	if err := db.WithContext(ctx).Model(&ProductionOrder{}).
		Where("business_id = ?", businessId).
		Select("COALESCE(MAX(id), 0)").Scan(&seq).Error; err != nil {
		return nil, err
	}

	order := ProductionOrder{
		BusinessId:        businessId,
		OrderNumber:       fmt.Sprintf("PRD%04d", seq+1),
		BillOfMaterialsId: bom.ID,
		ProductSku:        bom.ProductSku,
		LocationId:        input.LocationId,
		Quantity:          input.Quantity,
		Status:            ProductionOrderStatusPlanned,
		TotalCost:         bom.TotalCost.Mul(input.Quantity),
		StartDate:         input.StartDate,
		DueDate:           input.DueDate,
	}
	if err := db.WithContext(ctx).Create(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func GetProductionOrder(ctx context.Context, id int) (*ProductionOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	order, err := utils.FetchModel[ProductionOrder](ctx, businessId, id)
	if err != nil {
		return nil, utils.NewNotFoundError("production order", fmt.Sprint(id))
	}
	return order, nil
}

func ListProductionOrders(ctx context.Context, status *ProductionOrderStatus) ([]*ProductionOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	var results []*ProductionOrder
	if err := dbCtx.Order("id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// CancelProductionOrder is only valid before any quantity has been produced.
func CancelProductionOrder(ctx context.Context, id int) (*ProductionOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	order, err := utils.FetchModel[ProductionOrder](ctx, businessId, id)
	if err != nil {
		return nil, utils.NewNotFoundError("production order", fmt.Sprint(id))
	}
	if order.Status == ProductionOrderStatusCompleted {
		return nil, utils.NewValidationError("status", "completed orders cannot be cancelled")
	}
	if order.QuantityProduced.Sign() > 0 {
		return nil, utils.NewValidationError("status", "partially produced orders cannot be cancelled")
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&order).
		UpdateColumn("status", ProductionOrderStatusCancelled).Error; err != nil {
		return nil, err
	}
	order.Status = ProductionOrderStatusCancelled
	return order, nil
}
