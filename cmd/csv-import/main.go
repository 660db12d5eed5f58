package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bitbucket.org/mmdatafocus/csvfilereader/config"
	"bitbucket.org/mmdatafocus/csvfilereader/models"
	"bitbucket.org/mmdatafocus/csvfilereader/service"
	"bitbucket.org/mmdatafocus/csvfilereader/utils"
)

// csv-import runs one import and exits. It takes no lock; do not run it
// while the service is importing the same dataset.
func main() {
	dataset := flag.String("dataset", "all", "organization, employee or all")
	migrate := flag.Bool("migrate", false, "Run AutoMigrate before importing")
	flag.Parse()

	cfg, err := config.LoadImportConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config.ConnectDatabaseWithRetry()
	defer config.CloseDatabase()
	defer config.ClosePubSub()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	if *migrate {
		if err := models.MigrateTable(db); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
	}

	orch := service.NewOrchestrator(cfg, models.NewImportStore(db), config.GetLogger())
	ctx = utils.SetTriggeredByInContext(ctx, models.ImportTriggeredManual)

	switch *dataset {
	case "organization":
		err = orch.ImportOrganizations(ctx)
	case "employee":
		err = orch.ImportEmployees(ctx)
	case "all":
		err = orch.Run(ctx)
	default:
		fmt.Fprintln(os.Stderr, "--dataset must be organization, employee or all")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("import finished: %s\n", orch.State())
}
