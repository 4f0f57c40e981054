// Package app собирает общие зависимости бота и CLI из конфигурации.
package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"wialonblock/internal/adapters/wialon"
	"wialonblock/internal/core/services"
	"wialonblock/internal/pkg/config"
)

// Core — клиент Wialon и менеджер состояния блокировки, построенные по конфигурации.
type Core struct {
	Wialon   *wialon.Client
	Resolver *services.GroupResolver
	Locks    *services.LockService
}

// NewCore создает клиент Wialon, резолвер групп и LockService.
func NewCore(cfg *config.Config, logger *slog.Logger) (*Core, error) {
	resolver, err := services.NewGroupResolver(cfg.TrackedGroups())
	if err != nil {
		return nil, fmt.Errorf("failed to build group resolver: %w", err)
	}

	client := wialon.NewClient(cfg.Wialon.Host, cfg.Wialon.Token,
		wialon.WithHTTPClient(&http.Client{Timeout: cfg.Wialon.RequestTimeout}),
		wialon.WithRateLimit(cfg.Wialon.RateLimit, cfg.Wialon.Burst),
		wialon.WithLoginRetries(cfg.Wialon.LoginRetries, 0),
		wialon.WithLogger(logger.With(slog.String("component", "wialon"))),
	)

	locks := services.NewLockService(resolver, client,
		services.WithLockLogger(logger.With(slog.String("component", "locks"))),
		services.WithLogoutTimeout(cfg.Wialon.LogoutTimeout),
	)

	return &Core{Wialon: client, Resolver: resolver, Locks: locks}, nil
}
