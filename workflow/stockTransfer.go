package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/manufacturing_backend/config"
	"bitbucket.org/mmdatafocus/manufacturing_backend/models"
	"bitbucket.org/mmdatafocus/manufacturing_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// StockTransferInput moves quantity of one sku between two locations.
type StockTransferInput struct {
	Sku            string          `json:"sku" binding:"required"`
	FromLocationId int             `json:"from_location_id" binding:"required"`
	ToLocationId   int             `json:"to_location_id" binding:"required"`
	Quantity       decimal.Decimal `json:"quantity" binding:"required"`
	Reference      string          `json:"reference"`
	Notes          string          `json:"notes"`
}

// TransferResult pairs the outbound and inbound ledger rows of one transfer.
type TransferResult struct {
	Outbound *models.StockMovement `json:"outbound"`
	Inbound  *models.StockMovement `json:"inbound"`
}

// TransferStock posts a paired transfer: a negative movement at the source and
// a positive movement at the destination, equal in magnitude, in one
// transaction. Total stock across locations is unchanged by construction.
func TransferStock(ctx context.Context, input *StockTransferInput) (*TransferResult, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if input.Quantity.Sign() <= 0 {
		return nil, utils.NewValidationError("quantity", "must be positive")
	}
	if input.FromLocationId == input.ToLocationId {
		return nil, utils.NewValidationError("to_location_id", "must differ from source location")
	}

	from, err := models.GetStockLocation(ctx, input.FromLocationId)
	if err != nil {
		return nil, err
	}
	to, err := models.GetStockLocation(ctx, input.ToLocationId)
	if err != nil {
		return nil, err
	}

	performedBy, _ := utils.GetUserNameFromContext(ctx)
	now := time.Now().UTC()

	db := config.GetDB()
	var result *TransferResult
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Raw transfer movements carry their own sign and may overdraw; a
		// paired transfer must not, so the outbound balance is checked here.
		outbound, outBalance, err := models.RecordMovementTx(tx, businessId, performedBy, &models.NewStockMovement{
			Sku:          input.Sku,
			LocationId:   from.ID,
			Type:         models.MovementTypeTransfer,
			Quantity:     input.Quantity.Neg(),
			Date:         &now,
			FromLocation: from.Code,
			ToLocation:   to.Code,
			Reference:    input.Reference,
			Notes:        input.Notes,
		})
		if err != nil {
			return err
		}
		if outBalance.IsNegative() {
			return &utils.InsufficientStockError{
				Sku:        input.Sku,
				LocationId: from.ID,
				OnHand:     outBalance.Add(input.Quantity),
				Requested:  input.Quantity,
			}
		}

		inbound, _, err := models.RecordMovementTx(tx, businessId, performedBy, &models.NewStockMovement{
			Sku:          input.Sku,
			LocationId:   to.ID,
			Type:         models.MovementTypeTransfer,
			Quantity:     input.Quantity,
			Date:         &now,
			FromLocation: from.Code,
			ToLocation:   to.Code,
			Reference:    input.Reference,
			Notes:        input.Notes,
		})
		if err != nil {
			return err
		}

		result = &TransferResult{Outbound: outbound, Inbound: inbound}
		return nil
	})
	if err != nil {
		return nil, err
	}

	config.GetLogger().WithFields(logrus.Fields{
		"business_id": businessId,
		"sku":         input.Sku,
		"from":        from.Code,
		"to":          to.Code,
		"quantity":    input.Quantity.String(),
	}).Info("stock.transfer.done")

	return result, nil
}
