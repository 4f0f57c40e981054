package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"wialonblock/internal/adapters/exporter"
	"wialonblock/internal/app"
	"wialonblock/internal/bot"
	"wialonblock/internal/log"
	"wialonblock/internal/pkg/config"
	"wialonblock/internal/server"
)

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:           "wialonblock",
		Short:         "Telegram bot that locks and unlocks Wialon units",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", ".env.toml", "path to config file (.toml, .yml)")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		slog.Error("application run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run инкапсулирует всю логику инициализации и запуска приложения.
func run(ctx context.Context, configPath string) error {
	// 1. Загрузка и валидация конфигурации
	cfg, err := config.Load(configPath)
	if err != nil {
		// Логгер еще не инициализирован, выводим в stderr
		_, _ = fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return err
	}

	// 2. Инициализация логгера с маскировкой токенов
	logger := log.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// 3. Инициализация зависимостей
	core, err := app.NewCore(cfg, logger)
	if err != nil {
		return err
	}

	if err := tgbotapi.SetLogger(&log.TGBotAPIAdapter{Logger: logger.With(slog.String("component", "tgbotapi"))}); err != nil {
		return fmt.Errorf("failed to set telegram logger: %w", err)
	}
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return fmt.Errorf("failed to create bot api: %w", err)
	}
	logger.Info("Authorized on account", slog.String("username", api.Self.UserName))

	b := bot.NewBot(api, core.Locks, exporter.NewExcelExporter(), bot.Settings{
		ParseMode:           cfg.Telegram.BotProps.ParseMode,
		DisableNotification: cfg.Telegram.BotProps.DisableNotification,
		PageSize:            cfg.Telegram.PageSize,
		OutdatedTimeout:     cfg.Telegram.OutdatedTimeout,
		DeleteTimeout:       cfg.Telegram.DeleteTimeout,
		PollTimeout:         cfg.Telegram.PollTimeout,
	}, logger.With(slog.String("component", "bot")))

	// 4. HTTP-сервер проверки состояния
	var srv *server.Server
	if cfg.Health.Enabled {
		srv = server.New(cfg.Address(), core.Wialon, len(core.Resolver.ChatKeys()), logger.With(slog.String("component", "health")))
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				logger.Error("health server failed", slog.String("error", err.Error()))
			}
		}()
	}

	logger.Info("Starting bot...", slog.Int("chats", len(core.Resolver.ChatKeys())))

	// Start возвращается после отмены контекста и завершения обработчиков.
	b.Start(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Health.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("health server shutdown failed", slog.String("error", err.Error()))
		}
	}

	logger.Info("Bot stopped gracefully")
	return nil
}
