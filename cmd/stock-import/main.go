package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bitbucket.org/mmdatafocus/manufacturing_backend/config"
	"bitbucket.org/mmdatafocus/manufacturing_backend/utils"
	"bitbucket.org/mmdatafocus/manufacturing_backend/workflow"
	"github.com/joho/godotenv"
)

// Applies a physical stock count sheet (.xlsx) to one location from the
// command line, for counts too large to upload through the API.
func main() {
	_ = godotenv.Load()

	businessID := flag.String("business-id", "", "Required: business id (uuid)")
	locationID := flag.Int("location-id", 0, "Required: location to apply the count to")
	filePath := flag.String("file", "", "Required: path to the .xlsx count sheet")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" || *locationID <= 0 || strings.TrimSpace(*filePath) == "" {
		fmt.Fprintln(os.Stderr, "--business-id, --location-id and --file are required")
		os.Exit(1)
	}

	f, err := os.Open(*filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot open file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := utils.SetBusinessIdInContext(context.Background(), *businessID)
	ctx = utils.SetUserNameInContext(ctx, "stock-import")

	result, err := workflow.ImportStockCount(ctx, *locationID, filepath.Base(*filePath), f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("read %d rows: %d adjusted, %d already matched\n",
		result.RowsRead, result.RowsAdjusted, result.RowsSkipped)
}
