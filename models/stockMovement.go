package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/manufacturing_backend/config"
	"bitbucket.org/mmdatafocus/manufacturing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockMovement rows are append-only. The stored Quantity is the signed effect
// on the item balance; the sum of all movements for an item must always equal
// the item's cached quantity.
type StockMovement struct {
	ID             int             `gorm:"primary_key" json:"id"`
	BusinessId     string          `gorm:"index;not null" json:"business_id"`
	MovementNumber string          `gorm:"size:20;not null" json:"movement_number"`
	SequenceNo     int             `gorm:"index;default:0" json:"sequence_no"`
	Date           time.Time       `gorm:"index;not null" json:"date"`
	Type           MovementType    `gorm:"type:enum('receipt','consumption','production','sale','adjustment','transfer');not null" json:"type"`
	ItemId         int             `gorm:"index;not null" json:"item_id"`
	Sku            string          `gorm:"index;size:100;not null" json:"sku"`
	LocationId     int             `gorm:"index;not null" json:"location_id"`
	Quantity       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	FromLocation   string          `gorm:"size:100" json:"from_location"`
	ToLocation     string          `gorm:"size:100" json:"to_location"`
	Reference      string          `gorm:"size:255" json:"reference"`
	PerformedBy    string          `gorm:"size:100" json:"performed_by"`
	Notes          string          `gorm:"type:text" json:"notes"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// NormalizeMovementQuantity maps the caller's raw quantity to the signed
// effect stored on the ledger. Receipts and production always add stock,
// consumption and sales always remove it; adjustments and transfers state
// their own direction. Every movement creation goes through this one rule.
func NormalizeMovementQuantity(movementType MovementType, raw decimal.Decimal) decimal.Decimal {
	switch movementType {
	case MovementTypeReceipt, MovementTypeProduction:
		return raw.Abs()
	case MovementTypeConsumption, MovementTypeSale:
		return raw.Abs().Neg()
	default:
		return raw
	}
}

type NewStockMovement struct {
	Sku          string          `json:"sku" binding:"required"`
	LocationId   int             `json:"location_id" binding:"required"`
	Type         MovementType    `json:"type" binding:"required"`
	Quantity     decimal.Decimal `json:"quantity" binding:"required"`
	Date         *time.Time      `json:"date"`
	FromLocation string          `json:"from_location"`
	ToLocation   string          `json:"to_location"`
	Reference    string          `json:"reference"`
	Notes        string          `json:"notes"`
}

func (input *NewStockMovement) validate() error {
	if !input.Type.Valid() {
		return utils.NewValidationError("type", "invalid movement type")
	}
	if input.Sku == "" {
		return utils.NewValidationError("sku", "required")
	}
	if input.Quantity.IsZero() {
		return utils.NewValidationError("quantity", "must be non-zero")
	}
	return nil
}

// RecordMovement is the single write path for any inventory change. The
// movement insert and the cached-balance update commit or roll back together.
func RecordMovement(ctx context.Context, input *NewStockMovement) (*StockMovement, decimal.Decimal, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, decimal.Zero, errors.New("business id is required")
	}
	if err := input.validate(); err != nil {
		return nil, decimal.Zero, err
	}
	if err := utils.ValidateResourceId[StockLocation](ctx, businessId, input.LocationId); err != nil {
		return nil, decimal.Zero, utils.NewNotFoundError("location", "")
	}

	performedBy, _ := utils.GetUserNameFromContext(ctx)

	db := config.GetDB()
	var movement *StockMovement
	var newBalance decimal.Decimal
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		movement, newBalance, txErr = RecordMovementTx(tx, businessId, performedBy, input)
		return txErr
	})
	if err != nil {
		return nil, decimal.Zero, err
	}
	return movement, newBalance, nil
}

// RecordMovementTx runs inside the caller's transaction. It locks the item
// row, so concurrent movements for the same (sku, location) serialize and the
// cached quantity can never lose an update.
func RecordMovementTx(tx *gorm.DB, businessId string, performedBy string, input *NewStockMovement) (*StockMovement, decimal.Decimal, error) {
	if err := input.validate(); err != nil {
		return nil, decimal.Zero, err
	}

	item, err := GetOrCreateInventoryItemTx(tx, businessId, input.Sku, input.LocationId)
	if err != nil {
		return nil, decimal.Zero, err
	}

	signed := NormalizeMovementQuantity(input.Type, input.Quantity)
	newBalance := item.Quantity.Add(signed)

	// Consumption and sales may not drive the balance negative. Adjustments
	// and transfers are the correction path and state their own direction.
	if (input.Type == MovementTypeConsumption || input.Type == MovementTypeSale) && newBalance.IsNegative() {
		return nil, decimal.Zero, &utils.InsufficientStockError{
			Sku:        input.Sku,
			LocationId: input.LocationId,
			OnHand:     item.Quantity,
			Requested:  signed.Abs(),
		}
	}

	seq, err := nextMovementSequenceTx(tx, businessId)
	if err != nil {
		return nil, decimal.Zero, err
	}

	date := time.Now().UTC()
	if input.Date != nil {
		date = *input.Date
	}

	movement := StockMovement{
		BusinessId:     businessId,
		MovementNumber: fmt.Sprintf("MOV%04d", seq),
		SequenceNo:     seq,
		Date:           date,
		Type:           input.Type,
		ItemId:         item.ID,
		Sku:            input.Sku,
		LocationId:     input.LocationId,
		Quantity:       signed,
		FromLocation:   input.FromLocation,
		ToLocation:     input.ToLocation,
		Reference:      input.Reference,
		PerformedBy:    performedBy,
		Notes:          input.Notes,
	}
	if err := tx.Create(&movement).Error; err != nil {
		return nil, decimal.Zero, err
	}

	// Atomic increment; never read-modify-write the cached balance.
	update := tx.Model(&InventoryItem{}).Where("id = ?", item.ID).
		UpdateColumn("quantity", gorm.Expr("quantity + ?", signed))
	if update.Error != nil {
		return nil, decimal.Zero, update.Error
	}
	if signed.IsPositive() {
		if err := tx.Model(&InventoryItem{}).Where("id = ?", item.ID).
			UpdateColumn("last_restocked", date).Error; err != nil {
			return nil, decimal.Zero, err
		}
	}

	return &movement, newBalance, nil
}

// nextMovementSequenceTx picks the next MOV number within the business. The
// caller already holds the item row lock, so collisions are only possible
// across different items; sequence numbers are references, not identities.
func nextMovementSequenceTx(tx *gorm.DB, businessId string) (int, error) {
	var max int
	err := tx.Model(&StockMovement{}).
		Where("business_id = ?", businessId).
		Select("COALESCE(MAX(sequence_no), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// DeleteMovement removes a ledger row (correction path) and recomputes the
// affected item balance by refolding the remaining movements from zero. A
// naive subtract of the deleted effect would go wrong under concurrent edits.
func DeleteMovement(ctx context.Context, id int) (decimal.Decimal, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return decimal.Zero, errors.New("business id is required")
	}

	db := config.GetDB()
	var newBalance decimal.Decimal
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var movement StockMovement
		if err := tx.Where("business_id = ?", businessId).First(&movement, id).Error; err != nil {
			return utils.NewNotFoundError("stock movement", fmt.Sprint(id))
		}
		if err := tx.Delete(&StockMovement{}, movement.ID).Error; err != nil {
			return err
		}
		var txErr error
		newBalance, txErr = RecomputeItemBalanceTx(tx, businessId, movement.ItemId)
		return txErr
	})
	if err != nil {
		return decimal.Zero, err
	}
	return newBalance, nil
}

type StockMovementFilter struct {
	Sku        *string    `form:"sku" json:"sku"`
	LocationId *int       `form:"location_id" json:"location_id"`
	ItemId     *int       `form:"item_id" json:"item_id"`
	FromDate   *time.Time `form:"from_date" json:"from_date"`
	ToDate     *time.Time `form:"to_date" json:"to_date"`
}

// ListMovements returns movements in chronological ascending order — the
// canonical order for balance computation. Callers reverse for display.
func ListMovements(ctx context.Context, filter *StockMovementFilter) ([]*StockMovement, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if filter != nil {
		if filter.Sku != nil && *filter.Sku != "" {
			dbCtx = dbCtx.Where("sku = ?", *filter.Sku)
		}
		if filter.LocationId != nil && *filter.LocationId > 0 {
			dbCtx = dbCtx.Where("location_id = ?", *filter.LocationId)
		}
		if filter.ItemId != nil && *filter.ItemId > 0 {
			dbCtx = dbCtx.Where("item_id = ?", *filter.ItemId)
		}
		if filter.FromDate != nil {
			dbCtx = dbCtx.Where("date >= ?", *filter.FromDate)
		}
		if filter.ToDate != nil {
			dbCtx = dbCtx.Where("date <= ?", *filter.ToDate)
		}
	}

	var results []*StockMovement
	if err := dbCtx.Order("date ASC, id ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// MovementWithBalance pairs a ledger row with the running balance immediately
// after it was applied.
type MovementWithBalance struct {
	Movement     *StockMovement  `json:"movement"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
}

// RunningBalances folds the movements forward from zero, in the order given
// (callers pass chronological ascending). The balance shown next to movement
// N is the total after applying movements 1..N.
func RunningBalances(movements []*StockMovement) []MovementWithBalance {
	results := make([]MovementWithBalance, 0, len(movements))
	balance := decimal.Zero
	for _, m := range movements {
		balance = balance.Add(m.Quantity)
		results = append(results, MovementWithBalance{Movement: m, BalanceAfter: balance})
	}
	return results
}

// ReverseForDisplay flips precomputed (movement, balance) rows newest-first.
// The balances must never be recomputed backward from the ending balance;
// with mixed-sign movement types that produces wrong intermediate values.
func ReverseForDisplay(rows []MovementWithBalance) []MovementWithBalance {
	reversed := make([]MovementWithBalance, len(rows))
	for i, row := range rows {
		reversed[len(rows)-1-i] = row
	}
	return reversed
}

// LedgerForItem fetches an item's movements and returns them with running
// balances, newest-first when desc is set.
func LedgerForItem(ctx context.Context, sku string, locationId int, desc bool) ([]MovementWithBalance, error) {
	movements, err := ListMovements(ctx, &StockMovementFilter{Sku: &sku, LocationId: &locationId})
	if err != nil {
		return nil, err
	}
	rows := RunningBalances(movements)
	if desc {
		rows = ReverseForDisplay(rows)
	}
	return rows, nil
}
