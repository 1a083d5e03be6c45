// reportwatch subscribes to a saved report over the realtime service and
// streams its updates to stdout. With -export it additionally runs a
// one-off export of the report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"training-portal/reporting-engine/internal/config"
	"training-portal/reporting-engine/internal/report"
	"training-portal/reporting-engine/internal/report/client"
	"training-portal/reporting-engine/internal/report/export"
	"training-portal/reporting-engine/internal/report/realtime"
	"training-portal/reporting-engine/internal/report/schedule"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	reportID := flag.String("report", "", "saved report id to watch")
	frequency := flag.Int("frequency", 30, "update frequency in seconds")
	exportFormat := flag.String("export", "", "also export once in the given format (csv, xlsx, pdf, json, xml)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := buildLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatal("failed to build logger: ", err)
	}
	defer logger.Sync()

	if *reportID == "" {
		log.Fatal("-report is required")
	}

	api := client.NewClient(cfg.API.BaseURL, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := realtime.NewWebsocketTransport(cfg.Realtime.URL, logger)
	manager := realtime.NewManager(transport, logger)
	defer manager.Destroy()

	if err := manager.Connect(ctx); err != nil {
		log.Fatal("failed to connect: ", err)
	}

	sub, err := manager.Subscribe(ctx, report.SubscribeRequest{
		Type:            report.SubscriptionReport,
		Config:          map[string]any{"report_id": *reportID},
		UpdateFrequency: *frequency,
		AutoRefresh:     true,
	})
	if err != nil {
		log.Fatal("failed to subscribe: ", err)
	}
	logger.Info("watching report", zap.String("subscription_id", sub.ID))

	if *exportFormat != "" {
		runExport(ctx, api, cfg, logger, *reportID, report.ExportFormat(*exportFormat))
	}

	data, cancelData := manager.Data(16)
	defer cancelData()
	errs, cancelErrs := manager.Errors(16)
	defer cancelErrs()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case update, ok := <-data:
			if !ok {
				return
			}
			pretty, _ := json.MarshalIndent(json.RawMessage(update.Data), "", "  ")
			fmt.Printf("[%s] %s\n%s\n", update.Timestamp.Format("15:04:05"), update.SubscriptionID, pretty)
		case repErr, ok := <-errs:
			if !ok {
				return
			}
			logger.Warn("report error",
				zap.String("subscription_id", repErr.SubscriptionID),
				zap.String("error", repErr.Error))
		case <-sigCh:
			for _, result := range manager.UnsubscribeAll(ctx) {
				if !result.Success {
					logger.Warn("unsubscribe failed",
						zap.String("subscription_id", result.ID),
						zap.String("error", result.Error))
				}
			}
			return
		}
	}
}

func runExport(ctx context.Context, api *client.Client, cfg *config.Config, logger *zap.Logger, reportID string, format report.ExportFormat) {
	saved, err := api.GetReport(ctx, reportID)
	if err != nil {
		logger.Error("failed to load report", zap.Error(err))
		return
	}

	delivery := schedule.NewDeliveryManager(schedule.EmailConfig{
		SMTPHost:    cfg.Email.SMTPHost,
		SMTPPort:    cfg.Email.SMTPPort,
		Username:    cfg.Email.Username,
		Password:    cfg.Email.Password,
		FromAddress: cfg.Email.FromAddress,
		FromName:    cfg.Email.FromName,
	}, nil, logger)

	orchestrator := export.NewOrchestrator(api, delivery, cfg.Export.OutputDir, logger)
	job, err := orchestrator.Export(ctx, export.Request{
		ReportName: saved.Name,
		Config:     saved.Config,
		Format:     format,
		Delivery:   report.DeliveryDownload,
	})
	if err != nil {
		logger.Error("export failed", zap.Error(err))
		return
	}
	logger.Info("export saved",
		zap.String("file", job.FileName),
		zap.Int64("size_bytes", job.SizeBytes))
}

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}
