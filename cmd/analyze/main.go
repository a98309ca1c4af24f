package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/billwatch/munibill/internal/config"
	"github.com/billwatch/munibill/internal/models"
	"github.com/billwatch/munibill/internal/parser"
	"github.com/billwatch/munibill/internal/report"
	"github.com/billwatch/munibill/internal/repository"
	"github.com/billwatch/munibill/internal/service"
	"github.com/billwatch/munibill/internal/verify"
	"github.com/billwatch/munibill/pkg/database"
	"github.com/billwatch/munibill/pkg/utils"
)

// Command-line analyzer for a single statement. Takes a CoJ statement PDF
// (or an already-parsed bill as JSON), runs the full analysis pipeline
// against the local tariff database and prints the plain-text report.

func main() {
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", "configs/config.yaml", "path to config file")
		billPath   = flag.String("bill", "", "path to statement PDF or parsed-bill JSON")
		xlsxPath   = flag.String("xlsx", "", "optional path for an Excel findings workbook")
	)
	flag.Parse()

	if *billPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      "warn",
		OutputPath: "stderr",
		Format:     "console",
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	bill, err := loadBill(*billPath, logger)
	if err != nil {
		log.Fatalf("Failed to load bill: %v", err)
	}

	tariffRepo := repository.NewTariffRepository(db, logger)
	findingRepo := repository.NewFindingRepository(db, logger)
	missingRepo := repository.NewMissingTariffRepository(db, logger)

	engine := verify.NewEngine(tariffRepo, cfg.Analysis.Provider, logger)
	analysisService := service.NewAnalysisService(engine, findingRepo, missingRepo, nil, logger)

	analysis, err := analysisService.Analyze(context.Background(), bill)
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	fmt.Println(report.BuildReport(analysis))

	if *xlsxPath != "" {
		exporter := report.NewWorkbookExporter(logger)
		if err := exporter.Export(analysis, *xlsxPath); err != nil {
			log.Fatalf("Failed to write workbook: %v", err)
		}
		fmt.Printf("Workbook written to %s\n", *xlsxPath)
	}
}

func loadBill(path string, logger *zap.Logger) (*models.ParsedBill, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		reader := parser.NewPDFReader(logger)
		text, err := reader.ExtractText(path)
		if err != nil {
			return nil, err
		}
		return parser.NewStatementParser(logger).Parse(text), nil
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var bill models.ParsedBill
		if err := json.Unmarshal(data, &bill); err != nil {
			return nil, fmt.Errorf("invalid bill JSON: %w", err)
		}
		return &bill, nil
	default:
		return nil, fmt.Errorf("unsupported bill format %q", filepath.Ext(path))
	}
}
