package models

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/manufacturing_backend/config"
	"bitbucket.org/mmdatafocus/manufacturing_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PurgeResult reports rows removed per table, in deletion order.
type PurgeResult struct {
	DeletedCounts map[string]int64 `json:"deleted_counts"`
}

// PurgeManufacturingData bulk-deletes every manufacturing table for the
// business, children before parents. It is irreversible by design; the
// confirm flag is the only guard.
func PurgeManufacturingData(ctx context.Context, confirm bool) (*PurgeResult, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if !confirm {
		return nil, utils.NewValidationError("confirm", "must be true to purge manufacturing data")
	}

	result := &PurgeResult{DeletedCounts: make(map[string]int64)}

	db := config.GetDB()
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		steps := []struct {
			name  string
			model interface{}
		}{
			{"production_orders", &ProductionOrder{}},
			{"stock_movements", &StockMovement{}},
			{"purchase_order_details", nil}, // handled below, joined delete
			{"purchase_orders", &PurchaseOrder{}},
			{"bom_components", nil}, // handled below, joined delete
			{"bill_of_materials", &BillOfMaterials{}},
			{"inventory_items", &InventoryItem{}},
			{"stock_locations", &StockLocation{}},
			{"suppliers", &Supplier{}},
		}

		for _, step := range steps {
			switch step.name {
			case "purchase_order_details":
				res := tx.Exec(`
					DELETE d FROM purchase_order_details d
					INNER JOIN purchase_orders o ON o.id = d.purchase_order_id
					WHERE o.business_id = ?`, businessId)
				if res.Error != nil {
					return res.Error
				}
				result.DeletedCounts[step.name] = res.RowsAffected
			case "bom_components":
				res := tx.Exec(`
					DELETE c FROM bom_components c
					INNER JOIN bill_of_materials b ON b.id = c.bill_of_materials_id
					WHERE b.business_id = ?`, businessId)
				if res.Error != nil {
					return res.Error
				}
				result.DeletedCounts[step.name] = res.RowsAffected
			default:
				res := tx.Where("business_id = ?", businessId).Delete(step.model)
				if res.Error != nil {
					return res.Error
				}
				result.DeletedCounts[step.name] = res.RowsAffected
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	_ = utils.RemoveRedisList[StockLocation](businessId)
	_ = utils.RemoveRedisList[BillOfMaterials](businessId)
	_ = utils.RemoveRedisList[Supplier](businessId)

	config.GetLogger().WithFields(logrus.Fields{
		"business_id": businessId,
		"deleted":     result.DeletedCounts,
	}).Info("manufacturing.purge.done")

	return result, nil
}

// CountManufacturingData reports current row counts in purge order, for
// dry-run output.
func CountManufacturingData(ctx context.Context) (map[string]int64, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	counts := make(map[string]int64)

	countScoped := func(name string, model interface{}) error {
		var n int64
		if err := db.WithContext(ctx).Model(model).Where("business_id = ?", businessId).Count(&n).Error; err != nil {
			return err
		}
		counts[name] = n
		return nil
	}

	if err := countScoped("production_orders", &ProductionOrder{}); err != nil {
		return nil, err
	}
	if err := countScoped("stock_movements", &StockMovement{}); err != nil {
		return nil, err
	}
	if err := countScoped("purchase_orders", &PurchaseOrder{}); err != nil {
		return nil, err
	}
	if err := countScoped("bill_of_materials", &BillOfMaterials{}); err != nil {
		return nil, err
	}
	if err := countScoped("inventory_items", &InventoryItem{}); err != nil {
		return nil, err
	}
	if err := countScoped("stock_locations", &StockLocation{}); err != nil {
		return nil, err
	}
	if err := countScoped("suppliers", &Supplier{}); err != nil {
		return nil, err
	}
	return counts, nil
}
