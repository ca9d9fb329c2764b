package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/manufacturing_backend/config"
	"bitbucket.org/mmdatafocus/manufacturing_backend/models"
	"bitbucket.org/mmdatafocus/manufacturing_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PurchaseReceiptResult is a received purchase order plus the receipt
// movements that stocked it in.
type PurchaseReceiptResult struct {
	Order     *models.PurchaseOrder   `json:"order"`
	Movements []*models.StockMovement `json:"movements"`
}

// ReceivePurchaseOrder stocks in a confirmed purchase order: one receipt
// movement per line into the delivery location, the line's unit cost carried
// onto the item. Orders with no delivery location receive into the default
// location, which is created on demand.
func ReceivePurchaseOrder(ctx context.Context, orderId int) (*PurchaseReceiptResult, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	locationId := 0
	performedBy, _ := utils.GetUserNameFromContext(ctx)

	db := config.GetDB()
	var result *PurchaseReceiptResult
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireBusinessPostingLock(tx, businessId); err != nil {
			return err
		}
		defer ReleaseBusinessPostingLock(tx, businessId)

		var order models.PurchaseOrder
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Details").
			Where("business_id = ?", businessId).
			First(&order, orderId).Error; err != nil {
			return utils.NewNotFoundError("purchase order", fmt.Sprint(orderId))
		}
		if order.Status != models.PurchaseOrderStatusConfirmed {
			return utils.NewValidationError("status", "only confirmed orders can be received")
		}

		locationId = order.DeliveryLocationId
		if locationId == 0 {
			defaultLocation, err := models.EnsureDefaultStockLocationTx(tx, businessId)
			if err != nil {
				return err
			}
			locationId = defaultLocation.ID
		}

		now := time.Now().UTC()
		movements := make([]*models.StockMovement, 0, len(order.Details))
		for _, detail := range order.Details {
			movement, _, err := models.RecordMovementTx(tx, businessId, performedBy, &models.NewStockMovement{
				Sku:        detail.Sku,
				LocationId: locationId,
				Type:       models.MovementTypeReceipt,
				Quantity:   detail.Quantity,
				Date:       &now,
				Reference:  order.OrderNumber,
			})
			if err != nil {
				return err
			}
			// Latest purchase price becomes the item's unit cost.
			if detail.UnitCost.Sign() > 0 {
				if err := tx.Model(&models.InventoryItem{}).
					Where("id = ?", movement.ItemId).
					UpdateColumn("unit_cost", detail.UnitCost).Error; err != nil {
					return err
				}
			}
			movements = append(movements, movement)
		}

		order.Status = models.PurchaseOrderStatusReceived
		if err := tx.Model(&models.PurchaseOrder{}).Where("id = ?", order.ID).
			Updates(map[string]interface{}{
				"status":        order.Status,
				"received_date": now,
			}).Error; err != nil {
			return err
		}

		result = &PurchaseReceiptResult{Order: &order, Movements: movements}
		return nil
	})
	if err != nil {
		return nil, err
	}

	config.GetLogger().WithFields(logrus.Fields{
		"business_id":  businessId,
		"order_number": result.Order.OrderNumber,
		"location_id":  locationId,
		"lines":        len(result.Movements),
	}).Info("purchase.receive.done")

	return result, nil
}
