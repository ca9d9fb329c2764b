package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/manufacturing_backend/config"
	"bitbucket.org/mmdatafocus/manufacturing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BillOfMaterials struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BusinessId string `gorm:"index;not null;uniqueIndex:uniq_bom_product_version" json:"business_id"`
	ProductSku string `gorm:"size:100;not null;uniqueIndex:uniq_bom_product_version" json:"product_sku" binding:"required"`
	Version    int    `gorm:"not null;default:1;uniqueIndex:uniq_bom_product_version" json:"version"`

	ProductName  string          `gorm:"size:255" json:"product_name"`
	Status       BomStatus       `gorm:"type:enum('draft','active','obsolete');default:'draft'" json:"status"`
	LaborCost    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"labor_cost"`
	OverheadCost decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"overhead_cost"`
	// Stored totals are a convenience; RecomputeCosts is the authority.
	TotalMaterialCost decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_material_cost"`
	TotalCost         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_cost"`

	Components []BomComponent `json:"components"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type BomComponent struct {
	ID                int             `gorm:"primary_key" json:"id"`
	BillOfMaterialsId int             `gorm:"index;not null" json:"bill_of_materials_id"`
	Position          int             `gorm:"not null;default:0" json:"position"`
	Sku               string          `gorm:"size:100;not null" json:"sku" binding:"required"`
	Name              string          `gorm:"size:255" json:"name"`
	Quantity          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	UnitCost          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// ComputeBomCost is the single costing rule:
// material = sum(component qty * component unit cost); total = material + labor + overhead.
func ComputeBomCost(components []BomComponent, laborCost decimal.Decimal, overheadCost decimal.Decimal) (materialCost decimal.Decimal, totalCost decimal.Decimal) {
	materialCost = decimal.Zero
	for _, c := range components {
		materialCost = materialCost.Add(c.Quantity.Mul(c.UnitCost))
	}
	totalCost = materialCost.Add(laborCost).Add(overheadCost)
	return materialCost, totalCost
}

// RecomputeCosts refreshes the stored totals from the current inputs. Called
// on every write and on read paths that surface costs.
func (bom *BillOfMaterials) RecomputeCosts() {
	bom.TotalMaterialCost, bom.TotalCost = ComputeBomCost(bom.Components, bom.LaborCost, bom.OverheadCost)
}

type NewBomComponent struct {
	Sku      string          `json:"sku" binding:"required"`
	Name     string          `json:"name"`
	Quantity decimal.Decimal `json:"quantity" binding:"required"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

type NewBillOfMaterials struct {
	ProductSku   string            `json:"product_sku" binding:"required"`
	ProductName  string            `json:"product_name"`
	Version      int               `json:"version"`
	Status       BomStatus         `json:"status"`
	LaborCost    decimal.Decimal   `json:"labor_cost"`
	OverheadCost decimal.Decimal   `json:"overhead_cost"`
	Components   []NewBomComponent `json:"components" binding:"required,dive"`
}

func (input *NewBillOfMaterials) validate() error {
	if input.ProductSku == "" {
		return utils.NewValidationError("product_sku", "required")
	}
	if input.Status != "" && !input.Status.Valid() {
		return utils.NewValidationError("status", "invalid bom status")
	}
	if len(input.Components) == 0 {
		return utils.NewValidationError("components", "at least one component is required")
	}
	for _, c := range input.Components {
		if c.Sku == "" {
			return utils.NewValidationError("components", "component sku is required")
		}
		if c.Quantity.Sign() <= 0 {
			return utils.NewValidationError("components", "component quantity must be positive")
		}
		if c.UnitCost.IsNegative() {
			return utils.NewValidationError("components", "component unit cost cannot be negative")
		}
	}
	if input.LaborCost.IsNegative() || input.OverheadCost.IsNegative() {
		return utils.NewValidationError("labor_cost", "costs cannot be negative")
	}
	return nil
}

func (input *NewBillOfMaterials) toComponents(bomId int) []BomComponent {
	components := make([]BomComponent, 0, len(input.Components))
	for i, c := range input.Components {
		components = append(components, BomComponent{
			BillOfMaterialsId: bomId,
			Position:          i,
			Sku:               c.Sku,
			Name:              c.Name,
			Quantity:          c.Quantity,
			UnitCost:          c.UnitCost,
		})
	}
	return components
}

func CreateBillOfMaterials(ctx context.Context, input *NewBillOfMaterials) (*BillOfMaterials, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	version := input.Version
	if version <= 0 {
		version = 1
	}
	status := input.Status
	if status == "" {
		status = BomStatusDraft
	}

	bom := BillOfMaterials{
		BusinessId:   businessId,
		ProductSku:   input.ProductSku,
		ProductName:  input.ProductName,
		Version:      version,
		Status:       status,
		LaborCost:    input.LaborCost,
		OverheadCost: input.OverheadCost,
		Components:   input.toComponents(0),
	}
	bom.RecomputeCosts()

	db := config.GetDB()
	err := db.WithContext(ctx).Create(&bom).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, utils.NewConflictError("bill of materials", input.ProductSku)
		}
		return nil, err
	}
	_ = utils.RemoveRedisList[BillOfMaterials](businessId)
	return &bom, nil
}

// UpdateBillOfMaterials replaces the component list and cost inputs, then
// recomputes totals. Stored totals are never trusted across an edit.
func UpdateBillOfMaterials(ctx context.Context, id int, input *NewBillOfMaterials) (*BillOfMaterials, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var bom *BillOfMaterials
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing BillOfMaterials
		if err := tx.Where("business_id = ?", businessId).First(&existing, id).Error; err != nil {
			return utils.NewNotFoundError("bill of materials", "")
		}

		if err := tx.Where("bill_of_materials_id = ?", existing.ID).Delete(&BomComponent{}).Error; err != nil {
			return err
		}

		existing.ProductSku = input.ProductSku
		existing.ProductName = input.ProductName
		if input.Version > 0 {
			existing.Version = input.Version
		}
		if input.Status != "" {
			existing.Status = input.Status
		}
		existing.LaborCost = input.LaborCost
		existing.OverheadCost = input.OverheadCost
		existing.Components = input.toComponents(existing.ID)
		existing.RecomputeCosts()

		if err := tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(&existing).Error; err != nil {
			return err
		}
		bom = &existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	_ = utils.RemoveRedisItem[BillOfMaterials](id)
	_ = utils.RemoveRedisList[BillOfMaterials](businessId)
	return bom, nil
}

// GetBillOfMaterials returns the BOM with totals recomputed from components.
func GetBillOfMaterials(ctx context.Context, id int) (*BillOfMaterials, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	bom, err := utils.FetchModel[BillOfMaterials](ctx, businessId, id, "Components")
	if err != nil {
		return nil, utils.NewNotFoundError("bill of materials", "")
	}
	bom.RecomputeCosts()
	return bom, nil
}

func ListBillsOfMaterials(ctx context.Context, status *BomStatus) ([]*BillOfMaterials, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Preload("Components").Where("business_id = ?", businessId)
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	var results []*BillOfMaterials
	if err := dbCtx.Order("product_sku, version").Find(&results).Error; err != nil {
		return nil, err
	}
	for _, bom := range results {
		bom.RecomputeCosts()
	}
	return results, nil
}

func DeleteBillOfMaterials(ctx context.Context, id int) (*BillOfMaterials, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	bom, err := utils.FetchModel[BillOfMaterials](ctx, businessId, id)
	if err != nil {
		return nil, utils.NewNotFoundError("bill of materials", "")
	}

	// check if a production order still references it
	var count int64
	if err := db.WithContext(ctx).Model(&ProductionOrder{}).
		Where("business_id = ? AND bill_of_materials_id = ?", businessId, id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewConflictError("bill of materials", bom.ProductSku+" is referenced by production orders")
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("bill_of_materials_id = ?", id).Delete(&BomComponent{}).Error; err != nil {
			return err
		}
		return tx.Delete(&BillOfMaterials{}, id).Error
	})
	if err != nil {
		return nil, err
	}
	_ = utils.RemoveRedisItem[BillOfMaterials](id)
	_ = utils.RemoveRedisList[BillOfMaterials](businessId)
	return bom, nil
}
