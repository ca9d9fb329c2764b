package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/manufacturing_backend/config"
	"bitbucket.org/mmdatafocus/manufacturing_backend/middlewares"
	"bitbucket.org/mmdatafocus/manufacturing_backend/models"
	"bitbucket.org/mmdatafocus/manufacturing_backend/utils"
	"bitbucket.org/mmdatafocus/manufacturing_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("manufacturing-backend")

// writeError maps typed domain errors onto HTTP statuses. Unknown errors are
// never echoed to the client.
func writeError(c *gin.Context, err error) {
	var notFound *utils.NotFoundError
	var conflict *utils.ConflictError
	var validation *utils.ValidationError
	var insufficient *utils.InsufficientStockError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": conflict.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": validation.Error(), "field": validation.Field})
	case errors.As(err, &insufficient):
		c.JSON(http.StatusConflict, gin.H{
			"error":       insufficient.Error(),
			"sku":         insufficient.Sku,
			"location_id": insufficient.LocationId,
			"on_hand":     insufficient.OnHand,
			"requested":   insufficient.Requested,
		})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
}

func pathId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func createLocationHandler(c *gin.Context) {
	var input models.NewStockLocation
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	location, err := models.CreateStockLocation(c.Request.Context(), &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, location)
}

func updateLocationHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.NewStockLocation
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	location, err := models.UpdateStockLocation(c.Request.Context(), id, &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, location)
}

func deleteLocationHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	location, err := models.DeleteStockLocation(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, location)
}

func getLocationHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	location, err := models.GetStockLocation(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, location)
}

func listLocationsHandler(c *gin.Context) {
	var filter models.StockLocationFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		bindError(c, err)
		return
	}
	locations, err := models.ListStockLocations(c.Request.Context(), &filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, locations)
}

func ensureDefaultLocationHandler(c *gin.Context) {
	location, err := models.EnsureDefaultStockLocation(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, location)
}

func getBusinessHandler(c *gin.Context) {
	business, err := models.GetBusiness(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, business)
}

func toggleLocationActiveHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var body struct {
		IsActive *bool `json:"is_active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		bindError(c, err)
		return
	}
	location, err := models.ToggleActiveStockLocation(c.Request.Context(), id, *body.IsActive)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, location)
}

func getInventoryItemHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	item, err := models.GetInventoryItem(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func recomputeItemBalanceHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	balance, err := models.RecomputeBalance(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

func listInventoryHandler(c *gin.Context) {
	var filter models.InventoryItemFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		bindError(c, err)
		return
	}
	var locationId *int
	if v := c.Query("location_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location_id"})
			return
		}
		locationId = &id
	}
	items, err := models.ListInventoryItems(c.Request.Context(), locationId, &filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func recordMovementHandler(c *gin.Context) {
	var input models.NewStockMovement
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	movement, balance, err := models.RecordMovement(c.Request.Context(), &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"movement": movement, "balance": balance})
}

func listMovementsHandler(c *gin.Context) {
	var filter models.StockMovementFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		bindError(c, err)
		return
	}
	movements, err := models.ListMovements(c.Request.Context(), &filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, movements)
}

func deleteMovementHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	balance, err := models.DeleteMovement(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

// ledgerHandler returns an item's movements with running balances. Balances
// are folded oldest-first; order=desc only reverses the rows for display.
func ledgerHandler(c *gin.Context) {
	sku := c.Query("sku")
	if sku == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sku is required"})
		return
	}
	locationId, err := strconv.Atoi(c.DefaultQuery("location_id", "0"))
	if err != nil || locationId <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location_id"})
		return
	}
	desc := strings.EqualFold(c.DefaultQuery("order", "desc"), "desc")

	rows, err := models.LedgerForItem(c.Request.Context(), sku, locationId, desc)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func createBomHandler(c *gin.Context) {
	var input models.NewBillOfMaterials
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	bom, err := models.CreateBillOfMaterials(c.Request.Context(), &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bom)
}

func updateBomHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.NewBillOfMaterials
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	bom, err := models.UpdateBillOfMaterials(c.Request.Context(), id, &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bom)
}

func getBomHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	bom, err := models.GetBillOfMaterials(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bom)
}

func listBomsHandler(c *gin.Context) {
	var status *models.BomStatus
	if v := c.Query("status"); v != "" {
		s := models.BomStatus(v)
		status = &s
	}
	boms, err := models.ListBillsOfMaterials(c.Request.Context(), status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, boms)
}

func deleteBomHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	bom, err := models.DeleteBillOfMaterials(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bom)
}

func createProductionOrderHandler(c *gin.Context) {
	var input models.NewProductionOrder
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	order, err := models.CreateProductionOrder(c.Request.Context(), &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func listProductionOrdersHandler(c *gin.Context) {
	var status *models.ProductionOrderStatus
	if v := c.Query("status"); v != "" {
		s := models.ProductionOrderStatus(v)
		status = &s
	}
	orders, err := models.ListProductionOrders(c.Request.Context(), status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func getProductionOrderHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	order, err := models.GetProductionOrder(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func completeProductionOrderHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var body struct {
		QuantityProduced decimal.Decimal `json:"quantity_produced" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		bindError(c, err)
		return
	}

	ctx, span := tracer.Start(c.Request.Context(), "production.complete")
	defer span.End()

	result, err := workflow.CompleteProductionOrder(ctx, id, body.QuantityProduced)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func cancelProductionOrderHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	order, err := models.CancelProductionOrder(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func createSupplierHandler(c *gin.Context) {
	var input models.NewSupplier
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	supplier, err := models.CreateSupplier(c.Request.Context(), &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, supplier)
}

func listSuppliersHandler(c *gin.Context) {
	var name *string
	if v := c.Query("name"); v != "" {
		name = &v
	}
	suppliers, err := models.ListSuppliers(c.Request.Context(), name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, suppliers)
}

func deleteSupplierHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	supplier, err := models.DeleteSupplier(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, supplier)
}

func createPurchaseOrderHandler(c *gin.Context) {
	var input models.NewPurchaseOrder
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	order, err := models.CreatePurchaseOrder(c.Request.Context(), &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func getPurchaseOrderHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	order, err := models.GetPurchaseOrder(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func listPurchaseOrdersHandler(c *gin.Context) {
	var status *models.PurchaseOrderStatus
	if v := c.Query("status"); v != "" {
		s := models.PurchaseOrderStatus(v)
		status = &s
	}
	orders, err := models.ListPurchaseOrders(c.Request.Context(), status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func confirmPurchaseOrderHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	order, err := models.ConfirmPurchaseOrder(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func receivePurchaseOrderHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}

	ctx, span := tracer.Start(c.Request.Context(), "purchase.receive")
	defer span.End()

	result, err := workflow.ReceivePurchaseOrder(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func transferStockHandler(c *gin.Context) {
	var input workflow.StockTransferInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}

	ctx, span := tracer.Start(c.Request.Context(), "stock.transfer")
	defer span.End()

	result, err := workflow.TransferStock(ctx, &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func importStockCountHandler(c *gin.Context) {
	locationId, err := strconv.Atoi(c.PostForm("location_id"))
	if err != nil || locationId <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid location_id"})
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		writeError(c, err)
		return
	}
	defer file.Close()

	result, err := workflow.ImportStockCount(c.Request.Context(), locationId, fileHeader.Filename, file)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// reassignUnlocatedHandler moves pre-multi-location items (location_id=0)
// onto a real location, merging into existing rows where needed.
func reassignUnlocatedHandler(c *gin.Context) {
	var body struct {
		TargetLocationId int `json:"target_location_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		bindError(c, err)
		return
	}
	moved, err := models.ReassignUnlocatedItems(c.Request.Context(), body.TargetLocationId)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"moved": moved})
}

func rebuildBalancesHandler(c *gin.Context) {
	report, err := workflow.RebuildAllBalances(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// purgeHandler drops every manufacturing table for the business. Destructive;
// requires confirm=true in the body.
func purgeHandler(c *gin.Context) {
	var body struct {
		Confirm bool `json:"confirm"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		bindError(c, err)
		return
	}
	result, err := models.PurgeManufacturingData(c.Request.Context(), body.Confirm)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func createBusinessHandler(c *gin.Context) {
	var input models.NewBusiness
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}
	business, err := models.CreateBusiness(c.Request.Context(), &input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, business)
}

func registerRoutes(r *gin.Engine) {
	api := r.Group("/api", middlewares.SessionMiddleware())

	api.POST("/locations", createLocationHandler)
	api.GET("/locations", listLocationsHandler)
	api.GET("/locations/:id", getLocationHandler)
	api.PUT("/locations/:id", updateLocationHandler)
	api.DELETE("/locations/:id", deleteLocationHandler)
	api.POST("/locations/default", ensureDefaultLocationHandler)
	api.PATCH("/locations/:id/active", toggleLocationActiveHandler)

	api.GET("/business", getBusinessHandler)

	api.GET("/inventory", listInventoryHandler)
	api.GET("/inventory/:id", getInventoryItemHandler)
	api.POST("/inventory/recompute/:id", recomputeItemBalanceHandler)
	api.POST("/inventory/import", importStockCountHandler)

	api.POST("/movements", recordMovementHandler)
	api.GET("/movements", listMovementsHandler)
	api.DELETE("/movements/:id", deleteMovementHandler)
	api.GET("/movements/ledger", ledgerHandler)

	api.POST("/boms", createBomHandler)
	api.GET("/boms", listBomsHandler)
	api.GET("/boms/:id", getBomHandler)
	api.PUT("/boms/:id", updateBomHandler)
	api.DELETE("/boms/:id", deleteBomHandler)

	api.POST("/production-orders", createProductionOrderHandler)
	api.GET("/production-orders", listProductionOrdersHandler)
	api.GET("/production-orders/:id", getProductionOrderHandler)
	api.POST("/production-orders/:id/complete", completeProductionOrderHandler)
	api.POST("/production-orders/:id/cancel", cancelProductionOrderHandler)

	api.POST("/suppliers", createSupplierHandler)
	api.GET("/suppliers", listSuppliersHandler)
	api.DELETE("/suppliers/:id", deleteSupplierHandler)

	api.POST("/purchase-orders", createPurchaseOrderHandler)
	api.GET("/purchase-orders", listPurchaseOrdersHandler)
	api.GET("/purchase-orders/:id", getPurchaseOrderHandler)
	api.POST("/purchase-orders/:id/confirm", confirmPurchaseOrderHandler)
	api.POST("/purchase-orders/:id/receive", receivePurchaseOrderHandler)

	api.POST("/transfers", transferStockHandler)

	// Ops tooling (admin only).
	api.POST("/internal/ops/rebuild-balances", rebuildBalancesHandler)
	api.POST("/internal/ops/reassign-unlocated", reassignUnlocatedHandler)
	api.POST("/internal/ops/purge", purgeHandler)

	r.POST("/businesses", createBusinessHandler)
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until the DB is ready, app endpoints return 503.
	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production, require an explicit allowlist via CORS_ALLOWED_ORIGINS.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "X-Business-Id", "X-User-Id", "X-User-Name")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	registerRoutes(r)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running it as a
	// separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// READ COMMITTED: postings rely on row locks, not gap locks.
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{"port": port}).Info("server started")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
