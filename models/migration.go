package models

import (
	"log"

	"bitbucket.org/mmdatafocus/manufacturing_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{},
		&StockLocation{}, &InventoryItem{}, &StockMovement{},
		&BillOfMaterials{}, &BomComponent{}, &ProductionOrder{},
		&Supplier{}, &PurchaseOrder{}, &PurchaseOrderDetail{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
