package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/manufacturing_backend/config"
	"bitbucket.org/mmdatafocus/manufacturing_backend/models"
	"bitbucket.org/mmdatafocus/manufacturing_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductionCompletionResult is what a completion posting produced: the order
// after the update plus every ledger row written for it.
type ProductionCompletionResult struct {
	Order     *models.ProductionOrder `json:"order"`
	Movements []*models.StockMovement `json:"movements"`
}

// CompleteProductionOrder posts a production run: one consumption movement per
// BOM component scaled by the produced quantity, then one production movement
// for the finished product. All movements and the order update commit or roll
// back together; a failed component consumption leaves no partial posting.
func CompleteProductionOrder(ctx context.Context, orderId int, qtyProduced decimal.Decimal) (*ProductionCompletionResult, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if qtyProduced.Sign() <= 0 {
		return nil, utils.NewValidationError("quantity_produced", "must be positive")
	}

	performedBy, _ := utils.GetUserNameFromContext(ctx)
	logger := config.GetLogger()

	db := config.GetDB()
	var result *ProductionCompletionResult
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireBusinessPostingLock(tx, businessId); err != nil {
			return err
		}
		defer ReleaseBusinessPostingLock(tx, businessId)

		var order models.ProductionOrder
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("business_id = ?", businessId).
			First(&order, orderId).Error; err != nil {
			return utils.NewNotFoundError("production order", fmt.Sprint(orderId))
		}

		switch order.Status {
		case models.ProductionOrderStatusCompleted:
			return utils.NewValidationError("status", "order is already completed")
		case models.ProductionOrderStatusCancelled:
			return utils.NewValidationError("status", "cancelled orders cannot be completed")
		}

		remaining := order.RemainingQuantity()
		if qtyProduced.Cmp(remaining) > 0 {
			return utils.NewValidationError("quantity_produced",
				fmt.Sprintf("exceeds remaining quantity %s", remaining.String()))
		}

		var bom models.BillOfMaterials
		if err := tx.Preload("Components").
			Where("business_id = ?", businessId).
			First(&bom, order.BillOfMaterialsId).Error; err != nil {
			return utils.NewNotFoundError("bill of materials", fmt.Sprint(order.BillOfMaterialsId))
		}
		if len(bom.Components) == 0 {
			return utils.NewValidationError("bill_of_materials_id", "bom has no components")
		}

		now := time.Now().UTC()
		movements := make([]*models.StockMovement, 0, len(bom.Components)+1)

		for _, component := range bom.Components {
			movement, _, err := models.RecordMovementTx(tx, businessId, performedBy, &models.NewStockMovement{
				Sku:        component.Sku,
				LocationId: order.LocationId,
				Type:       models.MovementTypeConsumption,
				Quantity:   component.Quantity.Mul(qtyProduced),
				Date:       &now,
				Reference:  order.OrderNumber,
				Notes:      fmt.Sprintf("Consumed for %s", order.ProductSku),
			})
			if err != nil {
				return err
			}
			movements = append(movements, movement)
		}

		produced, _, err := models.RecordMovementTx(tx, businessId, performedBy, &models.NewStockMovement{
			Sku:        order.ProductSku,
			LocationId: order.LocationId,
			Type:       models.MovementTypeProduction,
			Quantity:   qtyProduced,
			Date:       &now,
			Reference:  order.OrderNumber,
		})
		if err != nil {
			return err
		}
		movements = append(movements, produced)

		order.QuantityProduced = order.QuantityProduced.Add(qtyProduced)
		if order.QuantityProduced.Cmp(order.Quantity) >= 0 {
			order.Status = models.ProductionOrderStatusCompleted
			order.CompletedAt = &now
		} else {
			order.Status = models.ProductionOrderStatusInProgress
		}
		if err := tx.Model(&models.ProductionOrder{}).Where("id = ?", order.ID).
			Updates(map[string]interface{}{
				"quantity_produced": order.QuantityProduced,
				"status":            order.Status,
				"completed_at":      order.CompletedAt,
			}).Error; err != nil {
			return err
		}

		result = &ProductionCompletionResult{Order: &order, Movements: movements}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"business_id":  businessId,
		"order_number": result.Order.OrderNumber,
		"produced":     qtyProduced.String(),
		"status":       result.Order.Status,
		"movements":    len(result.Movements),
	}).Info("production.complete.done")

	return result, nil
}
