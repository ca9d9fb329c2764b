package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/manufacturing_backend/config"
	"bitbucket.org/mmdatafocus/manufacturing_backend/models"
	"bitbucket.org/mmdatafocus/manufacturing_backend/utils"
	"bitbucket.org/mmdatafocus/manufacturing_backend/workflow"
	"github.com/bsm/redislock"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	businessID := flag.String("business-id", "", "Required: business id (uuid)")
	itemID := flag.Int("item-id", 0, "Optional: rebuild a single inventory item")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	var biz models.Business
	if err := db.Where("id = ?", *businessID).First(&biz).Error; err != nil {
		fmt.Fprintf(os.Stderr, "business not found: %v\n", err)
		os.Exit(1)
	}

	ctx := utils.SetBusinessIdInContext(context.Background(), *businessID)

	// A second rebuild of the same business is wasted work at best; guard with
	// a Redis lock when Redis is configured. MySQL advisory locks inside the
	// workflow still protect correctness if Redis is down.
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(config.GetRedisContext(), "inv_rebuild:"+*businessID, 10*time.Minute, nil)
		if err == redislock.ErrNotObtained {
			fmt.Fprintln(os.Stderr, "another rebuild is already running for this business")
			os.Exit(1)
		}
		if err == nil {
			defer lock.Release(config.GetRedisContext())
		}
	}

	if *itemID > 0 {
		drifted, err := workflow.RebuildItemBalance(ctx, *itemID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
			os.Exit(1)
		}
		if drifted {
			fmt.Printf("item %d: cached balance corrected from ledger\n", *itemID)
		} else {
			fmt.Printf("item %d: cached balance matches ledger\n", *itemID)
		}
		return
	}

	report, err := workflow.RebuildAllBalances(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("checked %d items, corrected %d\n", report.ItemsChecked, report.ItemsDrifted)
	for _, id := range report.DriftedItems {
		fmt.Printf("  corrected item %d\n", id)
	}
}
