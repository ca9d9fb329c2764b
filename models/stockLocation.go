package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/manufacturing_backend/config"
	"bitbucket.org/mmdatafocus/manufacturing_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultLocationCode = "LOC001"
	DefaultLocationName = "Main Warehouse"
)

type StockLocation struct {
	ID            int          `gorm:"primary_key" json:"id"`
	BusinessId    string       `gorm:"index;not null;uniqueIndex:uniq_location_code" json:"business_id"`
	Code          string       `gorm:"size:20;not null;uniqueIndex:uniq_location_code" json:"code" binding:"required"`
	Name          string       `gorm:"size:100;not null" json:"name" binding:"required"`
	Type          LocationType `gorm:"type:enum('warehouse','site','vehicle','other');default:'warehouse'" json:"type"`
	Address       string       `gorm:"type:text" json:"address"`
	ContactPerson string       `gorm:"size:100" json:"contact_person"`
	Phone         string       `gorm:"size:20" json:"phone"`
	Email         string       `gorm:"size:100" json:"email"`
	IsActive      *bool        `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewStockLocation struct {
	Code          string       `json:"code" binding:"required"`
	Name          string       `json:"name" binding:"required"`
	Type          LocationType `json:"type"`
	Address       string       `json:"address"`
	ContactPerson string       `json:"contact_person"`
	Phone         string       `json:"phone"`
	Email         string       `json:"email"`
}

type StockLocationFilter struct {
	Type     *LocationType `form:"type" json:"type"`
	IsActive *bool         `form:"is_active" json:"is_active"`
	Name     *string       `form:"name" json:"name"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewStockLocation) validate(ctx context.Context, businessId string, id int) error {
	if strings.TrimSpace(input.Code) == "" {
		return utils.NewValidationError("code", "required")
	}
	if input.Type != "" && !input.Type.Valid() {
		return utils.NewValidationError("type", "invalid location type")
	}
	// code
	if err := utils.ValidateUnique[StockLocation](ctx, businessId, "code", input.Code, id); err != nil {
		return err
	}
	return nil
}

func CreateStockLocation(ctx context.Context, input *NewStockLocation) (*StockLocation, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	locationType := input.Type
	if locationType == "" {
		locationType = LocationTypeWarehouse
	}

	location := StockLocation{
		BusinessId:    businessId,
		Code:          strings.TrimSpace(input.Code),
		Name:          input.Name,
		Type:          locationType,
		Address:       input.Address,
		ContactPerson: input.ContactPerson,
		Phone:         input.Phone,
		Email:         input.Email,
		IsActive:      utils.NewTrue(),
	}

	// db action
	db := config.GetDB()
	err := db.WithContext(ctx).Create(&location).Error
	if err != nil {
		// unique index on (business_id, code) backstops the pre-check above
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, utils.NewConflictError("location code", location.Code)
		}
		return nil, err
	}
	if err := utils.RemoveRedisList[StockLocation](businessId); err != nil {
		config.LogError(config.GetLogger(), "models", "CreateStockLocation", "clear cache", nil, err)
	}
	return &location, nil
}

func UpdateStockLocation(ctx context.Context, id int, input *NewStockLocation) (*StockLocation, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}

	location, err := utils.FetchModel[StockLocation](ctx, businessId, id)
	if err != nil {
		return nil, utils.NewNotFoundError("location", input.Code)
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&location).Updates(map[string]interface{}{
		"Code":          strings.TrimSpace(input.Code),
		"Name":          input.Name,
		"Type":          input.Type,
		"Address":       input.Address,
		"ContactPerson": input.ContactPerson,
		"Phone":         input.Phone,
		"Email":         input.Email,
	}).Error
	if err != nil {
		return nil, err
	}

	if err := utils.RemoveRedisItem[StockLocation](id); err == nil {
		_ = utils.RemoveRedisList[StockLocation](businessId)
	}
	return location, nil
}

// DeleteStockLocation refuses to remove a location that inventory still
// references. Reassign or purge first.
func DeleteStockLocation(ctx context.Context, id int) (*StockLocation, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	location, err := utils.FetchModel[StockLocation](ctx, businessId, id)
	if err != nil {
		return nil, utils.NewNotFoundError("location", "")
	}

	// check if location still holds inventory
	var count int64
	if err := db.WithContext(ctx).Model(&InventoryItem{}).
		Where("business_id = ? AND location_id = ?", businessId, id).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewConflictError("location", location.Code+" still has inventory")
	}

	err = db.WithContext(ctx).Delete(&location).Error
	if err != nil {
		return nil, err
	}
	_ = utils.RemoveRedisItem[StockLocation](id)
	_ = utils.RemoveRedisList[StockLocation](businessId)
	return location, nil
}

func GetStockLocation(ctx context.Context, id int) (*StockLocation, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	// find in redis first
	cached, err := utils.RetrieveRedis[StockLocation](id)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		if cached.BusinessId != businessId {
			return nil, errors.New("cannot access resource owned by other business")
		}
		return cached, nil
	}

	location, err := utils.FetchModel[StockLocation](ctx, businessId, id)
	if err != nil {
		return nil, utils.NewNotFoundError("location", "")
	}
	if err := utils.StoreRedis[StockLocation](location, id); err != nil {
		config.LogError(config.GetLogger(), "models", "GetStockLocation", "cache store", nil, err)
	}
	return location, nil
}

func ListStockLocations(ctx context.Context, filter *StockLocationFilter) ([]*StockLocation, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var results []*StockLocation

	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if filter != nil {
		if filter.Type != nil && *filter.Type != "" {
			dbCtx = dbCtx.Where("type = ?", *filter.Type)
		}
		if filter.IsActive != nil {
			dbCtx = dbCtx.Where("is_active = ?", *filter.IsActive)
		}
		if filter.Name != nil && len(*filter.Name) > 0 {
			dbCtx = dbCtx.Where("name LIKE ?", "%"+*filter.Name+"%")
		}
	}
	err := dbCtx.Order("code").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// EnsureDefaultStockLocation idempotently returns the LOC001 "Main Warehouse"
// location, creating it if absent. The unique index on (business_id, code)
// makes a concurrent double-create fail; the loser falls back to lookup.
func EnsureDefaultStockLocation(ctx context.Context) (*StockLocation, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	location := StockLocation{
		BusinessId: businessId,
		Code:       DefaultLocationCode,
		Name:       DefaultLocationName,
		Type:       LocationTypeWarehouse,
		IsActive:   utils.NewTrue(),
	}
	err := db.WithContext(ctx).
		Where("business_id = ? AND code = ?", businessId, DefaultLocationCode).
		FirstOrCreate(&location).Error
	if err != nil {
		var existing StockLocation
		if lookupErr := db.WithContext(ctx).
			Where("business_id = ? AND code = ?", businessId, DefaultLocationCode).
			First(&existing).Error; lookupErr == nil {
			return &existing, nil
		}
		return nil, err
	}
	return &location, nil
}

// EnsureDefaultStockLocationTx is EnsureDefaultStockLocation inside the
// caller's transaction, for postings that receive into the default location.
func EnsureDefaultStockLocationTx(tx *gorm.DB, businessId string) (*StockLocation, error) {
	location := StockLocation{
		BusinessId: businessId,
		Code:       DefaultLocationCode,
		Name:       DefaultLocationName,
		Type:       LocationTypeWarehouse,
		IsActive:   utils.NewTrue(),
	}
	err := tx.Where("business_id = ? AND code = ?", businessId, DefaultLocationCode).
		FirstOrCreate(&location).Error
	if err != nil {
		return nil, err
	}
	return &location, nil
}

// CreateDefaultStockLocation seeds LOC001 during tenant provisioning.
func CreateDefaultStockLocation(tx *gorm.DB, businessId string) error {
	location := StockLocation{
		BusinessId: businessId,
		Code:       DefaultLocationCode,
		Name:       DefaultLocationName,
		Type:       LocationTypeWarehouse,
		IsActive:   utils.NewTrue(),
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&location).Error
}

func ToggleActiveStockLocation(ctx context.Context, id int, isActive bool) (*StockLocation, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	location, err := utils.FetchModel[StockLocation](ctx, businessId, id)
	if err != nil {
		return nil, utils.NewNotFoundError("location", "")
	}
	if err := db.WithContext(ctx).Model(&location).UpdateColumn("IsActive", isActive).Error; err != nil {
		return nil, err
	}
	_ = utils.RemoveRedisItem[StockLocation](id)
	_ = utils.RemoveRedisList[StockLocation](businessId)
	return location, nil
}
