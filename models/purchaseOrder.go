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

type PurchaseOrder struct {
	ID                   int                   `gorm:"primary_key" json:"id"`
	BusinessId           string                `gorm:"index;not null" json:"business_id"`
	OrderNumber          string                `gorm:"size:20;not null" json:"order_number"`
	SupplierId           int                   `gorm:"index;not null" json:"supplier_id" binding:"required"`
	OrderDate            time.Time             `gorm:"not null" json:"order_date"`
	ExpectedDeliveryDate *time.Time            `gorm:"default:null" json:"expected_delivery_date"`
	// DeliveryLocationId 0 falls back to the default location at receiving time.
	DeliveryLocationId   int                   `gorm:"default:0" json:"delivery_location_id"`
	Status               PurchaseOrderStatus   `gorm:"type:enum('draft','confirmed','received','cancelled');default:'draft'" json:"status"`
	ReceivedDate         *time.Time            `gorm:"default:null" json:"received_date"`
	Notes                string                `gorm:"type:text" json:"notes"`
	OrderTotal           decimal.Decimal       `gorm:"type:decimal(20,4);default:0" json:"order_total"`
	Details              []PurchaseOrderDetail `json:"purchase_order_details"`
	CreatedAt            time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseOrderDetail struct {
	ID              int             `gorm:"primary_key" json:"id"`
	PurchaseOrderId int             `gorm:"index;not null" json:"purchase_order_id"`
	Sku             string          `gorm:"size:100;not null" json:"sku"`
	ItemName        string          `gorm:"size:255" json:"item_name"`
	Quantity        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	UnitCost        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPurchaseOrderDetail struct {
	Sku      string          `json:"sku" binding:"required"`
	ItemName string          `json:"item_name"`
	Quantity decimal.Decimal `json:"quantity" binding:"required"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

type NewPurchaseOrder struct {
	SupplierId           int                      `json:"supplier_id" binding:"required"`
	OrderDate            *time.Time               `json:"order_date"`
	ExpectedDeliveryDate *time.Time               `json:"expected_delivery_date"`
	DeliveryLocationId   int                      `json:"delivery_location_id"`
	Notes                string                   `json:"notes"`
	Details              []NewPurchaseOrderDetail `json:"purchase_order_details" binding:"required,dive"`
}

func (input *NewPurchaseOrder) validate(ctx context.Context, businessId string) error {
	if err := utils.ValidateResourceId[Supplier](ctx, businessId, input.SupplierId); err != nil {
		return utils.NewNotFoundError("supplier", "")
	}
	if input.DeliveryLocationId > 0 {
		if err := utils.ValidateResourceId[StockLocation](ctx, businessId, input.DeliveryLocationId); err != nil {
			return utils.NewNotFoundError("location", "")
		}
	}
	if len(input.Details) == 0 {
		return utils.NewValidationError("purchase_order_details", "at least one line is required")
	}
	for _, d := range input.Details {
		if d.Sku == "" {
			return utils.NewValidationError("purchase_order_details", "sku is required")
		}
		if d.Quantity.Sign() <= 0 {
			return utils.NewValidationError("purchase_order_details", "quantity must be positive")
		}
	}
	return nil
}

func CreatePurchaseOrder(ctx context.Context, input *NewPurchaseOrder) (*PurchaseOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	orderDate := time.Now().UTC()
	if input.OrderDate != nil {
		orderDate = *input.OrderDate
	}

	details := make([]PurchaseOrderDetail, 0, len(input.Details))
	orderTotal := decimal.Zero
	for _, d := range input.Details {
		amount := d.Quantity.Mul(d.UnitCost)
		orderTotal = orderTotal.Add(amount)
		details = append(details, PurchaseOrderDetail{
			Sku:      d.Sku,
			ItemName: d.ItemName,
			Quantity: d.Quantity,
			UnitCost: d.UnitCost,
			Amount:   amount,
		})
	}

	db := config.GetDB()
	var seq int
	if err := db.WithContext(ctx).Model(&PurchaseOrder{}).
		Where("business_id = ?", businessId).
		Select("COALESCE(MAX(id), 0)").Scan(&seq).Error; err != nil {
		return nil, err
	}

	order := PurchaseOrder{
		BusinessId:           businessId,
		OrderNumber:          fmt.Sprintf("PO%04d", seq+1),
		SupplierId:           input.SupplierId,
		OrderDate:            orderDate,
		ExpectedDeliveryDate: input.ExpectedDeliveryDate,
		DeliveryLocationId:   input.DeliveryLocationId,
		Status:               PurchaseOrderStatusDraft,
		Notes:                input.Notes,
		OrderTotal:           orderTotal,
		Details:              details,
	}
	if err := db.WithContext(ctx).Create(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func GetPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	order, err := utils.FetchModel[PurchaseOrder](ctx, businessId, id, "Details")
	if err != nil {
		return nil, utils.NewNotFoundError("purchase order", fmt.Sprint(id))
	}
	return order, nil
}

func ListPurchaseOrders(ctx context.Context, status *PurchaseOrderStatus) ([]*PurchaseOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Preload("Details").Where("business_id = ?", businessId)
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	var results []*PurchaseOrder
	if err := dbCtx.Order("id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func ConfirmPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	order, err := utils.FetchModel[PurchaseOrder](ctx, businessId, id)
	if err != nil {
		return nil, utils.NewNotFoundError("purchase order", fmt.Sprint(id))
	}
	if order.Status != PurchaseOrderStatusDraft {
		return nil, utils.NewValidationError("status", "only draft orders can be confirmed")
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&order).
		UpdateColumn("status", PurchaseOrderStatusConfirmed).Error; err != nil {
		return nil, err
	}
	order.Status = PurchaseOrderStatusConfirmed
	return order, nil
}
