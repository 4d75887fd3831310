package main

import (
	"context"
	"embed"
	"log"

	"investment-tracker/config"
	"investment-tracker/internal/api"
	"investment-tracker/internal/app"
	"investment-tracker/observability"

	"github.com/joho/godotenv"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	observability.InitLoggerWithLevel(cfg.Log.Production, observability.ParseLevel(cfg.Log.Level))
	observability.InitMetrics()

	ctx := context.Background()

	application, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		observability.Fatal("failed to start ledger", "error", err)
	}

	if err := application.StartScheduler(ctx); err != nil {
		observability.Fatal("failed to start scheduler", "error", err)
	}

	apiHandler := api.NewRouter(api.NewHandler(application, cfg), cfg)

	// Run Wails application
	err = wails.Run(&options.App{
		Title:  "Investment Tracker",
		Width:  1280,
		Height: 800,
		AssetServer: &assetserver.Options{
			Assets:  assets,
			Handler: apiHandler,
		},
		BackgroundColour: options.NewRGB(27, 38, 54),
		OnStartup:        application.Startup,
		OnShutdown:       application.Shutdown,
		Bind: []interface{}{
			application,
		},
	})

	if err != nil {
		log.Fatal(err)
	}
}
