package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/manufacturing_backend/config"
	"bitbucket.org/mmdatafocus/manufacturing_backend/models"
	"bitbucket.org/mmdatafocus/manufacturing_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// StockCountRow is one physical-count line from the import sheet.
type StockCountRow struct {
	Sku        string
	Name       string
	CountedQty decimal.Decimal
}

// StockImportResult reports what a count import changed.
type StockImportResult struct {
	RowsRead     int                     `json:"rows_read"`
	RowsAdjusted int                     `json:"rows_adjusted"`
	RowsSkipped  int                     `json:"rows_skipped"`
	Movements    []*models.StockMovement `json:"movements"`
}

// ParseStockCountSheet reads Sheet1 of an xlsx count sheet. Expected columns:
// sku, name, counted quantity. The header row is skipped; blank rows are
// ignored.
func ParseStockCountSheet(r io.Reader) ([]StockCountRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	if err != nil {
		return nil, fmt.Errorf("unable to read sheet: %v", err)
	}
	if len(rows) < 2 {
		return nil, utils.NewValidationError("file", "sheet has no data rows")
	}

	results := make([]StockCountRow, 0, len(rows)-1)
	for idx, row := range rows[1:] {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		if len(row) < 3 {
			return nil, utils.NewValidationError("file",
				fmt.Sprintf("row %d: expected sku, name, counted quantity", idx+2))
		}
		qty, err := decimal.NewFromString(strings.TrimSpace(row[2]))
		if err != nil {
			return nil, utils.NewValidationError("file",
				fmt.Sprintf("row %d: invalid quantity %q", idx+2, row[2]))
		}
		if qty.IsNegative() {
			return nil, utils.NewValidationError("file",
				fmt.Sprintf("row %d: counted quantity cannot be negative", idx+2))
		}
		results = append(results, StockCountRow{
			Sku:        strings.TrimSpace(row[0]),
			Name:       strings.TrimSpace(row[1]),
			CountedQty: qty,
		})
	}

	skus := make([]string, 0, len(results))
	for _, row := range results {
		skus = append(skus, row.Sku)
	}
	if len(utils.UniqueSlice(skus)) != len(skus) {
		return nil, utils.NewValidationError("file", "sheet contains duplicate skus")
	}
	return results, nil
}

// ImportStockCount applies a physical count to one location. Each row whose
// counted quantity differs from the cached balance gets one adjustment
// movement for the delta; matching rows produce nothing, so re-importing the
// same sheet is a no-op.
func ImportStockCount(ctx context.Context, locationId int, fileName string, file io.Reader) (*StockImportResult, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if !strings.HasSuffix(fileName, ".xlsx") {
		return nil, utils.NewValidationError("file", "only .xlsx files are allowed")
	}
	if err := utils.ValidateResourceId[models.StockLocation](ctx, businessId, locationId); err != nil {
		return nil, utils.NewNotFoundError("location", fmt.Sprint(locationId))
	}

	counts, err := ParseStockCountSheet(file)
	if err != nil {
		return nil, err
	}

	performedBy, _ := utils.GetUserNameFromContext(ctx)
	now := time.Now().UTC()

	// Count date in the business timezone so a late-night count is
	// referenced on the local day it happened.
	countDate := now
	if business, err := models.GetBusiness(ctx); err == nil && business.Timezone != "" {
		countDate = utils.ConvertToLocalTime(now, business.Timezone)
	}
	reference := fmt.Sprintf("COUNT %s", countDate.Format("2006-01-02"))

	result := &StockImportResult{RowsRead: len(counts)}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireBusinessPostingLock(tx, businessId); err != nil {
			return err
		}
		defer ReleaseBusinessPostingLock(tx, businessId)

		for _, count := range counts {
			item, err := models.GetOrCreateInventoryItemTx(tx, businessId, count.Sku, locationId)
			if err != nil {
				return err
			}
			if item.Name == "" && count.Name != "" {
				if err := tx.Model(&models.InventoryItem{}).Where("id = ?", item.ID).
					UpdateColumn("name", count.Name).Error; err != nil {
					return err
				}
			}

			delta := count.CountedQty.Sub(item.Quantity)
			if delta.IsZero() {
				result.RowsSkipped++
				continue
			}

			movement, _, err := models.RecordMovementTx(tx, businessId, performedBy, &models.NewStockMovement{
				Sku:        count.Sku,
				LocationId: locationId,
				Type:       models.MovementTypeAdjustment,
				Quantity:   delta,
				Date:       &now,
				Reference:  reference,
				Notes:      fmt.Sprintf("Physical count %s", fileName),
			})
			if err != nil {
				return err
			}
			result.RowsAdjusted++
			result.Movements = append(result.Movements, movement)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	config.GetLogger().WithFields(logrus.Fields{
		"business_id": businessId,
		"location_id": locationId,
		"file":        fileName,
		"rows":        result.RowsRead,
		"adjusted":    result.RowsAdjusted,
	}).Info("stock.count_import.done")

	return result, nil
}
