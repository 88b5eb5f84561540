// Command taxiemissions enriches the yellow and green taxi trips tables with CO2 emissions,
// average speed and calendar columns.
package main

import (
	"context"
	"embed"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tigerroll/taxiemissions/internal/app"
	"github.com/tigerroll/taxiemissions/pkg/batch/support/util/logger"
)

//go:embed resources/application.yaml
var embeddedConfig []byte

//go:embed resources/vehicle_emissions.csv
var emissionsSeed []byte

//go:embed all:resources/migrations
var migrationsFS embed.FS

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Attempting to stop the job...", sig)
		cancel()
	}()

	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	migrations, err := fs.Sub(migrationsFS, "resources/migrations")
	if err != nil {
		logger.Fatalf("Failed to open embedded migrations: %v", err)
	}

	code := app.RunApplication(ctx, envFilePath, app.Resources{
		Config:        embeddedConfig,
		Migrations:    migrations,
		EmissionsSeed: emissionsSeed,
	})
	cancel()
	os.Exit(code)
}
