package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/maildigest/internal/assistant"
	"github.com/xxxsen/maildigest/internal/caption"
	"github.com/xxxsen/maildigest/internal/config"
	"github.com/xxxsen/maildigest/internal/convert"
	"github.com/xxxsen/maildigest/internal/extract"
	"github.com/xxxsen/maildigest/internal/filestore"
	"github.com/xxxsen/maildigest/internal/handler"
	"github.com/xxxsen/maildigest/internal/job"
	"github.com/xxxsen/maildigest/internal/mailbox"
	"github.com/xxxsen/maildigest/internal/middleware"
	"github.com/xxxsen/maildigest/internal/repo"
	"github.com/xxxsen/maildigest/internal/retry"
	"github.com/xxxsen/maildigest/internal/schedule"
	"github.com/xxxsen/maildigest/internal/service"
	"github.com/xxxsen/maildigest/internal/summarycache"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "maildigest",
		Short: "maildigest summarization server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run maildigest server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			db, err := repo.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := repo.ApplyMigrations(db); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, db)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, db *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("db_path", cfg.DBPath),
		zap.String("file_store", cfg.FileStore.Type),
		zap.String("model", cfg.Summarizer.Model),
	)

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	captioner, err := buildCaptioner(cfg)
	if err != nil {
		return fmt.Errorf("init caption provider: %w", err)
	}

	client := assistant.NewClient(cfg.Summarizer)
	manager := assistant.NewManager(client, captioner, cfg.Summarizer)

	cache := summarycache.Disabled()
	cacheTTL := time.Duration(cfg.Cache.TTLS) * time.Second
	if cfg.Cache.Enabled {
		cache = summarycache.NewMemory(cfg.Cache.MaxEntries, cacheTTL)
	}
	policy := retry.PolicyFromConfig(cfg.Retry, time.Duration(cfg.Summarizer.CallTimeoutS)*time.Second)
	extractor := extract.New(extract.WithMaxImageBytes(cfg.Summarizer.MaxImageBytes))
	summarizer := service.NewSummarizeService(extractor, manager, cache, policy, cacheTTL)

	reportRepo := repo.NewReportRepo(db)
	messageRepo := repo.NewMessageRepo(db)
	reportService := service.NewReportService(reportRepo)
	sender := service.NewEmailSender(cfg.Mail.SMTP)
	converter := convert.New(convert.WithMaxBytes(cfg.Summarizer.MaxAttachmentBytes))

	scheduler := schedule.NewCronScheduler()
	if cfg.Mail.IMAP.Host != "" {
		box := mailbox.NewIMAP(cfg.Mail.IMAP, mailbox.WithMaxAttachmentBytes(cfg.Summarizer.MaxAttachmentBytes))
		digestJob := job.NewMailDigestJob(job.MailDigestDeps{
			Mailbox:    box,
			Converter:  converter,
			Summarizer: summarizer,
			Reports:    reportService,
			Sender:     sender,
			Messages:   messageRepo,
			Store:      store,
			BaseURL:    cfg.ExternalURL,
		}, cfg.Summarizer.Guidance, cfg.Mail.DigestTo, cfg.Mail.FetchLimit, cfg.Concurrency)
		if err := scheduler.AddJob(digestJob, cfg.DigestCron); err != nil {
			return fmt.Errorf("schedule digest job: %w", err)
		}
	} else {
		logutil.GetLogger(context.Background()).Warn("imap not configured, mailbox digest disabled")
	}
	cleanupJob := job.NewReportCleanupJob(reportRepo, cfg.ReportKeepDays)
	if err := scheduler.AddJob(cleanupJob, "30 3 * * *"); err != nil {
		return fmt.Errorf("schedule cleanup job: %w", err)
	}

	deps := handler.RouterDeps{
		Digest:    handler.NewDigestHandler(scheduler),
		Summarize: handler.NewSummarizeHandler(converter, summarizer, int64(cfg.Summarizer.MaxAttachmentBytes)),
		Reports:   handler.NewReportHandler(reportService),
		Files:     handler.NewFileHandler(store),
		APIToken:  cfg.APIToken,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler.Start(ctx)
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	scheduler.Stop()
	return nil
}

func buildCaptioner(cfg *config.Config) (caption.Provider, error) {
	if cfg.Caption.Provider == "" {
		return nil, nil
	}
	args := cfg.Caption.Data
	if args == nil {
		args = map[string]interface{}{
			"api_key":     cfg.Summarizer.APIKey,
			"base_url":    cfg.Summarizer.BaseURL,
			"temperature": cfg.Summarizer.CaptionTemperature,
		}
	}
	return caption.NewProvider(cfg.Caption.Provider, cfg.Caption.Model, args)
}
