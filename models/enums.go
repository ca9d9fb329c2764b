package models

import (
	"encoding/json"
	"errors"
)

type MovementType string

const (
	MovementTypeReceipt     MovementType = "receipt"
	MovementTypeConsumption MovementType = "consumption"
	MovementTypeProduction  MovementType = "production"
	MovementTypeSale        MovementType = "sale"
	MovementTypeAdjustment  MovementType = "adjustment"
	MovementTypeTransfer    MovementType = "transfer"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementTypeReceipt, MovementTypeConsumption, MovementTypeProduction,
		MovementTypeSale, MovementTypeAdjustment, MovementTypeTransfer:
		return true
	}
	return false
}

// convert input to enum type
func (t *MovementType) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return errors.New("movement type must be string")
	}
	v := MovementType(str)
	if !v.Valid() {
		return errors.New("invalid movement type")
	}
	*t = v
	return nil
}

type LocationType string

const (
	LocationTypeWarehouse LocationType = "warehouse"
	LocationTypeSite      LocationType = "site"
	LocationTypeVehicle   LocationType = "vehicle"
	LocationTypeOther     LocationType = "other"
)

func (t LocationType) Valid() bool {
	switch t {
	case LocationTypeWarehouse, LocationTypeSite, LocationTypeVehicle, LocationTypeOther:
		return true
	}
	return false
}

type ItemStatus string

const (
	ItemStatusInStock    ItemStatus = "in_stock"
	ItemStatusLowStock   ItemStatus = "low_stock"
	ItemStatusOutOfStock ItemStatus = "out_of_stock"
)

type BomStatus string

const (
	BomStatusDraft    BomStatus = "draft"
	BomStatusActive   BomStatus = "active"
	BomStatusObsolete BomStatus = "obsolete"
)

func (s BomStatus) Valid() bool {
	switch s {
	case BomStatusDraft, BomStatusActive, BomStatusObsolete:
		return true
	}
	return false
}

type ProductionOrderStatus string

const (
	ProductionOrderStatusPlanned    ProductionOrderStatus = "planned"
	ProductionOrderStatusInProgress ProductionOrderStatus = "in_progress"
	ProductionOrderStatusCompleted  ProductionOrderStatus = "completed"
	ProductionOrderStatusCancelled  ProductionOrderStatus = "cancelled"
)

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusDraft     PurchaseOrderStatus = "draft"
	PurchaseOrderStatusConfirmed PurchaseOrderStatus = "confirmed"
	PurchaseOrderStatusReceived  PurchaseOrderStatus = "received"
	PurchaseOrderStatusCancelled PurchaseOrderStatus = "cancelled"
)
