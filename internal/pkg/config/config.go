// Package config предоставляет управление конфигурацией приложения
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"wialonblock/internal/domain"
)

// Переменные окружения, переопределяющие значения из файла.
const (
	EnvTelegramBotToken = "TELEGRAM_BOT_TOKEN"
	EnvWialonToken      = "WIALON_TOKEN"
	EnvWialonHost       = "WIALON_HOST"
)

var (
	telegramTokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]{35}$`)
	wialonTokenPattern   = regexp.MustCompile(`^[a-fA-F0-9]{72}$`)
	botNamePattern       = regexp.MustCompile(`^t.me/[a-zA-Z][a-zA-Z0-9_]{4,31}$`)
)

// BotProps содержит параметры отправки сообщений
type BotProps struct {
	DisableNotification bool   `yaml:"disable_notification" toml:"disable_notification"`
	ParseMode           string `yaml:"parse_mode" toml:"parse_mode"` // HTML, Markdown, MarkdownV2
}

// Group связывает чат Telegram с группами Wialon
type Group struct {
	Tag           string `yaml:"tag" toml:"tag"`
	ChatName      string `yaml:"chat_name" toml:"chat_name"`
	ChatID        string `yaml:"chat_id" toml:"chat_id"`
	LockedGroup   string `yaml:"wln_group_locked" toml:"wln_group_locked"`
	UnlockedGroup string `yaml:"wln_group_unlocked" toml:"wln_group_unlocked"`
	IgnoredGroup  string `yaml:"wln_group_ignored" toml:"wln_group_ignored"`
}

// Telegram содержит конфигурацию бота
type Telegram struct {
	BotName  string   `yaml:"bot_name" toml:"bot_name"`
	BotToken string   `yaml:"bot_token" toml:"bot_token"`
	BotProps BotProps `yaml:"bot_props" toml:"bot_props"`
	Groups   []Group  `yaml:"groups" toml:"groups"`

	PageSize        int           `yaml:"page_size" toml:"page_size"`
	OutdatedTimeout time.Duration `yaml:"outdated_timeout" toml:"outdated_timeout"`
	DeleteTimeout   time.Duration `yaml:"delete_timeout" toml:"delete_timeout"` // 0 - карточки не удаляются
	PollTimeout     int           `yaml:"poll_timeout_seconds" toml:"poll_timeout_seconds"`
}

// Wialon содержит параметры подключения к Wialon Remote API
type Wialon struct {
	Host           string        `yaml:"host" toml:"host"`
	Token          string        `yaml:"token" toml:"token"`
	RequestTimeout time.Duration `yaml:"request_timeout" toml:"request_timeout"`
	RateLimit      float64       `yaml:"rate_limit" toml:"rate_limit"` // запросов в секунду, 0 - без ограничений
	Burst          int           `yaml:"burst" toml:"burst"`
	LoginRetries   uint64        `yaml:"login_retries" toml:"login_retries"`
	LogoutTimeout  time.Duration `yaml:"logout_timeout" toml:"logout_timeout"`
}

// Health содержит конфигурацию HTTP-сервера проверки состояния
type Health struct {
	Enabled         bool          `yaml:"enabled" toml:"enabled"`
	Host            string        `yaml:"host" toml:"host"`
	Port            int           `yaml:"port" toml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// Logging содержит конфигурацию логирования
type Logging struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // json, text
}

// Config содержит конфигурацию приложения
type Config struct {
	Telegram Telegram `yaml:"tg" toml:"tg"`
	Wialon   Wialon   `yaml:"wialon" toml:"wialon"`
	Health   Health   `yaml:"health" toml:"health"`
	Logging  Logging  `yaml:"logging" toml:"logging"`
}

// Load загружает конфигурацию из YAML- или TOML-файла (по расширению),
// затем применяет переменные окружения (в том числе из .env).
func Load(path string) (*Config, error) {
	// Отсутствие .env файла не является ошибкой.
	_ = godotenv.Load()

	cfg := defaultConfig()
	if err := loadFile(path, cfg); err != nil {
		return nil, err
	}
	applyEnv(cfg)
	return cfg, nil
}

// loadFile накладывает содержимое файла на cfg.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("не удалось прочитать файл конфигурации %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return fmt.Errorf("не удалось разобрать YAML конфигурацию: %w", err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return fmt.Errorf("не удалось разобрать TOML конфигурацию: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("неизвестные ключи в TOML конфигурации: %v", undecoded)
		}
	default:
		return fmt.Errorf("неподдерживаемый формат конфигурации %q", path)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvTelegramBotToken); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv(EnvWialonToken); v != "" {
		cfg.Wialon.Token = v
	}
	if v := os.Getenv(EnvWialonHost); v != "" {
		cfg.Wialon.Host = v
	}
}

// TrackedGroups переводит группы чатов в доменную модель.
func (c *Config) TrackedGroups() []domain.TrackedGroup {
	groups := make([]domain.TrackedGroup, 0, len(c.Telegram.Groups))
	for _, g := range c.Telegram.Groups {
		groups = append(groups, domain.TrackedGroup{
			ChatKey:           g.ChatID,
			LockedGroupName:   g.LockedGroup,
			UnlockedGroupName: g.UnlockedGroup,
			IgnoredGroupName:  g.IgnoredGroup,
		})
	}
	return groups
}

// GroupByChat ищет группу по идентификатору чата или тегу.
func (c *Config) GroupByChat(key string) (Group, bool) {
	for _, g := range c.Telegram.Groups {
		if g.ChatID == key || (g.Tag != "" && g.Tag == key) {
			return g, true
		}
	}
	return Group{}, false
}

// Address возвращает адрес сервера проверки состояния в формате "host:port"
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Health.Host, c.Health.Port)
}

// Validate проверяет, являются ли значения конфигурации допустимыми.
func (c *Config) Validate() error {
	var errs []error

	t := c.Telegram
	if !botNamePattern.MatchString(t.BotName) {
		errs = append(errs, fmt.Errorf("tg.bot_name %q не соответствует формату t.me/<username>", t.BotName))
	}
	if !telegramTokenPattern.MatchString(t.BotToken) {
		errs = append(errs, errors.New("tg.bot_token имеет неверный формат"))
	}
	switch t.BotProps.ParseMode {
	case "HTML", "Markdown", "MarkdownV2":
	default:
		errs = append(errs, fmt.Errorf("tg.bot_props.parse_mode должен быть одним из: HTML, Markdown, MarkdownV2"))
	}
	if t.PageSize < 1 || t.PageSize > MaxPageSize {
		errs = append(errs, fmt.Errorf("tg.page_size должен быть в диапазоне 1-%d", MaxPageSize))
	}
	if t.OutdatedTimeout <= 0 {
		errs = append(errs, errors.New("tg.outdated_timeout должен быть положительным"))
	}
	if t.DeleteTimeout < 0 {
		errs = append(errs, errors.New("tg.delete_timeout должен быть неотрицательным (0 - не удалять)"))
	}

	if len(t.Groups) == 0 {
		errs = append(errs, errors.New("tg.groups не может быть пустым"))
	}
	seen := make(map[string]struct{}, len(t.Groups))
	for i, g := range t.Groups {
		if _, err := strconv.ParseInt(g.ChatID, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("tg.groups[%d].chat_id %q должен быть целым числом", i, g.ChatID))
		}
		if _, dup := seen[g.ChatID]; dup {
			errs = append(errs, fmt.Errorf("tg.groups[%d].chat_id %q повторяется", i, g.ChatID))
		}
		seen[g.ChatID] = struct{}{}
		if g.LockedGroup == "" || g.UnlockedGroup == "" {
			errs = append(errs, fmt.Errorf("tg.groups[%d]: wln_group_locked и wln_group_unlocked обязательны", i))
		} else if strings.EqualFold(g.LockedGroup, g.UnlockedGroup) {
			errs = append(errs, fmt.Errorf("tg.groups[%d]: wln_group_locked и wln_group_unlocked совпадают", i))
		}
		if g.IgnoredGroup != "" && (strings.EqualFold(g.IgnoredGroup, g.LockedGroup) || strings.EqualFold(g.IgnoredGroup, g.UnlockedGroup)) {
			errs = append(errs, fmt.Errorf("tg.groups[%d]: wln_group_ignored совпадает с группой блокировки", i))
		}
	}

	w := c.Wialon
	if !strings.HasPrefix(w.Host, "http://") && !strings.HasPrefix(w.Host, "https://") {
		errs = append(errs, fmt.Errorf("wialon.host %q должен начинаться с http:// или https://", w.Host))
	}
	if !wialonTokenPattern.MatchString(w.Token) {
		errs = append(errs, errors.New("wialon.token имеет неверный формат"))
	}
	if w.RateLimit < 0 {
		errs = append(errs, errors.New("wialon.rate_limit должен быть неотрицательным"))
	}
	if w.RequestTimeout <= 0 {
		errs = append(errs, errors.New("wialon.request_timeout должен быть положительным"))
	}

	if c.Health.Enabled && (c.Health.Port <= 0 || c.Health.Port > 65535) {
		errs = append(errs, errors.New("health.port должен быть действительным номером порта (1-65535)"))
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, errors.New("logging.level должен быть одним из: debug, info, warn, error"))
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, errors.New("logging.format должен быть json или text"))
	}

	return errors.Join(errs...)
}
