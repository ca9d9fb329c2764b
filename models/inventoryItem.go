package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/manufacturing_backend/config"
	"bitbucket.org/mmdatafocus/manufacturing_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InventoryItem struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BusinessId string `gorm:"index;not null;uniqueIndex:uniq_item_sku_location" json:"business_id"`
	Sku        string `gorm:"size:100;not null;uniqueIndex:uniq_item_sku_location" json:"sku" binding:"required"`
	// LocationId 0 means unlocated (transient, pre-multi-location data).
	LocationId    int             `gorm:"index;uniqueIndex:uniq_item_sku_location" json:"location_id"`
	Name          string          `gorm:"size:255" json:"name"`
	Category      string          `gorm:"size:100" json:"category"`
	Unit          string          `gorm:"size:50" json:"unit"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	UnitCost      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	ReorderPoint  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"reorder_point"`
	ReorderQty    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"reorder_qty"`
	LastRestocked *time.Time      `gorm:"default:null" json:"last_restocked"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Status is derived from the cached quantity and the reorder point on every
// read. It is never stored, so it cannot drift.
func (item *InventoryItem) Status() ItemStatus {
	return DeriveItemStatus(item.Quantity, item.ReorderPoint)
}

func DeriveItemStatus(quantity decimal.Decimal, reorderPoint decimal.Decimal) ItemStatus {
	if quantity.Sign() <= 0 {
		return ItemStatusOutOfStock
	}
	if quantity.Cmp(reorderPoint) <= 0 {
		return ItemStatusLowStock
	}
	return ItemStatusInStock
}

// MarshalJSON includes the derived status field in API responses.
func (item InventoryItem) MarshalJSON() ([]byte, error) {
	type alias InventoryItem
	return json.Marshal(struct {
		alias
		Status ItemStatus `json:"status"`
	}{alias(item), item.Status()})
}

type InventoryItemFilter struct {
	Category *string     `form:"category" json:"category"`
	Sku      *string     `form:"sku" json:"sku"`
	Status   *ItemStatus `form:"status" json:"status"`
}

// GetOrCreateInventoryItem returns the (sku, location) row, creating it with
// zero quantity if absent.
func GetOrCreateInventoryItem(ctx context.Context, sku string, locationId int) (*InventoryItem, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if sku == "" {
		return nil, utils.NewValidationError("sku", "required")
	}
	if err := utils.ValidateResourceId[StockLocation](ctx, businessId, locationId); err != nil {
		return nil, utils.NewNotFoundError("location", "")
	}

	db := config.GetDB()
	var item *InventoryItem
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		item, txErr = GetOrCreateInventoryItemTx(tx, businessId, sku, locationId)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// GetOrCreateInventoryItemTx locks the row for the remainder of the
// transaction. The unique index on (business_id, sku, location_id) makes a
// concurrent double-create impossible; FirstOrCreate retries as a lookup when
// the insert loses the race.
func GetOrCreateInventoryItemTx(tx *gorm.DB, businessId string, sku string, locationId int) (*InventoryItem, error) {
	item := InventoryItem{
		BusinessId: businessId,
		Sku:        sku,
		LocationId: locationId,
	}
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND sku = ? AND location_id = ?", businessId, sku, locationId).
		FirstOrCreate(&item)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			var existing InventoryItem
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("business_id = ? AND sku = ? AND location_id = ?", businessId, sku, locationId).
				First(&existing).Error; err == nil {
				return &existing, nil
			}
		}
		return nil, result.Error
	}
	return &item, nil
}

func GetInventoryItem(ctx context.Context, id int) (*InventoryItem, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	item, err := utils.FetchModel[InventoryItem](ctx, businessId, id)
	if err != nil {
		return nil, utils.NewNotFoundError("inventory item", "")
	}
	return item, nil
}

// ListInventoryItems returns items, optionally scoped to one location.
// Duplicate (sku, location) rows should be impossible under the unique index;
// legacy data may still carry them, so the read path merges defensively and
// logs the offenders.
func ListInventoryItems(ctx context.Context, locationId *int, filter *InventoryItemFilter) ([]*InventoryItem, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if locationId != nil && *locationId > 0 {
		dbCtx = dbCtx.Where("location_id = ?", *locationId)
	}
	if filter != nil {
		if filter.Category != nil && *filter.Category != "" {
			dbCtx = dbCtx.Where("category = ?", *filter.Category)
		}
		if filter.Sku != nil && *filter.Sku != "" {
			dbCtx = dbCtx.Where("sku = ?", *filter.Sku)
		}
	}

	var rows []*InventoryItem
	if err := dbCtx.Order("sku, location_id").Find(&rows).Error; err != nil {
		return nil, err
	}

	results := dedupeInventoryItems(rows)

	if filter != nil && filter.Status != nil && *filter.Status != "" {
		filtered := make([]*InventoryItem, 0, len(results))
		for _, item := range results {
			if item.Status() == *filter.Status {
				filtered = append(filtered, item)
			}
		}
		results = filtered
	}
	return results, nil
}

func dedupeInventoryItems(rows []*InventoryItem) []*InventoryItem {
	type key struct {
		sku        string
		locationId int
	}
	seen := make(map[key]*InventoryItem, len(rows))
	results := make([]*InventoryItem, 0, len(rows))
	for _, item := range rows {
		k := key{sku: item.Sku, locationId: item.LocationId}
		if first, ok := seen[k]; ok {
			config.GetLogger().WithFields(logrus.Fields{
				"sku":         item.Sku,
				"location_id": item.LocationId,
				"kept_id":     first.ID,
				"merged_id":   item.ID,
			}).Warn("inventory.duplicate_item_merged")
			first.Quantity = first.Quantity.Add(item.Quantity)
			continue
		}
		seen[k] = item
		results = append(results, item)
	}
	return results
}

// ReassignUnlocatedItems assigns every item with location_id=0 to the target
// location. Rows that would collide with an existing (sku, target) item are
// merged into it instead. Running twice is a no-op.
func ReassignUnlocatedItems(ctx context.Context, targetLocationId int) (int64, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return 0, errors.New("business id is required")
	}
	if err := utils.ValidateResourceId[StockLocation](ctx, businessId, targetLocationId); err != nil {
		return 0, utils.NewNotFoundError("location", "")
	}

	db := config.GetDB()
	var moved int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var unlocated []*InventoryItem
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("business_id = ? AND location_id = 0", businessId).
			Find(&unlocated).Error; err != nil {
			return err
		}

		for _, item := range unlocated {
			var existing InventoryItem
			lookupErr := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("business_id = ? AND sku = ? AND location_id = ?", businessId, item.Sku, targetLocationId).
				First(&existing).Error
			if lookupErr == nil {
				// merge quantities into the located row, drop the orphan
				if err := tx.Model(&InventoryItem{}).Where("id = ?", existing.ID).
					UpdateColumn("quantity", gorm.Expr("quantity + ?", item.Quantity)).Error; err != nil {
					return err
				}
				if err := tx.Delete(&InventoryItem{}, item.ID).Error; err != nil {
					return err
				}
			} else {
				if err := tx.Model(&InventoryItem{}).Where("id = ?", item.ID).
					UpdateColumn("location_id", targetLocationId).Error; err != nil {
					return err
				}
			}
			moved++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return moved, nil
}

// RecomputeBalance refolds the ledger for one item and overwrites the cached
// quantity. The ledger is authoritative; this is the reconciliation path.
func RecomputeBalance(ctx context.Context, itemId int) (decimal.Decimal, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return decimal.Zero, errors.New("business id is required")
	}

	db := config.GetDB()
	var balance decimal.Decimal
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		balance, txErr = RecomputeItemBalanceTx(tx, businessId, itemId)
		return txErr
	})
	return balance, err
}

// RecomputeItemBalanceTx sums every remaining movement for the item (the sum
// is order-independent) and writes it back to the cached quantity.
func RecomputeItemBalanceTx(tx *gorm.DB, businessId string, itemId int) (decimal.Decimal, error) {
	var item InventoryItem
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ?", businessId).
		First(&item, itemId).Error; err != nil {
		return decimal.Zero, utils.NewNotFoundError("inventory item", "")
	}

	type totals struct {
		Qty decimal.Decimal
	}
	var t totals
	if err := tx.Raw(`
		SELECT COALESCE(SUM(quantity), 0) AS qty
		FROM stock_movements
		WHERE business_id = ? AND item_id = ?
	`, businessId, itemId).Scan(&t).Error; err != nil {
		return decimal.Zero, err
	}

	if err := tx.Model(&InventoryItem{}).Where("id = ?", itemId).
		UpdateColumn("quantity", t.Qty).Error; err != nil {
		return decimal.Zero, err
	}
	return t.Qty, nil
}
