// Package log содержит обвязку slog: маскировку секретов и адаптер для tgbotapi.
package log

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// SecretMaskerHandler оборачивает slog.Handler и вырезает из записей токены
// Telegram-бота и Wialon.
type SecretMaskerHandler struct {
	handler slog.Handler
}

// NewSecretMaskerHandler создает обработчик с маскировкой секретов.
func NewSecretMaskerHandler(handler slog.Handler) *SecretMaskerHandler {
	return &SecretMaskerHandler{handler: handler}
}

const (
	maskedTelegram = "bot***:***masked-token***"
	maskedWialon   = "***masked-wialon-token***"
)

var (
	// bot<ID>:<secret> в URL Bot API.
	telegramURLTokenRegex = regexp.MustCompile(`\bbot\d+:[A-Za-z0-9_-]{35,}`)
	// <ID>:<secret> как он записан в конфигурации.
	telegramTokenRegex = regexp.MustCompile(`\b\d{5,}:[A-Za-z0-9_-]{35,}`)
	// Токен Wialon: 72 шестнадцатеричных символа.
	wialonTokenRegex = regexp.MustCompile(`\b[a-fA-F0-9]{72}\b`)
)

// maskSecrets заменяет найденные секреты на маску.
func maskSecrets(text string) string {
	text = telegramURLTokenRegex.ReplaceAllString(text, maskedTelegram)
	text = telegramTokenRegex.ReplaceAllString(text, maskedTelegram)
	return wialonTokenRegex.ReplaceAllString(text, maskedWialon)
}

// Enabled реализует интерфейс slog.Handler
func (h *SecretMaskerHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle реализует интерфейс slog.Handler
func (h *SecretMaskerHandler) Handle(ctx context.Context, record slog.Record) error {
	// Новая запись вместо изменения исходной: slog может переиспользовать record.
	r := slog.NewRecord(record.Time, record.Level, maskSecrets(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		r.AddAttrs(maskAttr(a))
		return true
	})
	return h.handler.Handle(ctx, r)
}

// WithAttrs реализует интерфейс slog.Handler
func (h *SecretMaskerHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = maskAttr(a)
	}
	return &SecretMaskerHandler{handler: h.handler.WithAttrs(masked)}
}

// WithGroup реализует интерфейс slog.Handler
func (h *SecretMaskerHandler) WithGroup(name string) slog.Handler {
	return &SecretMaskerHandler{handler: h.handler.WithGroup(name)}
}

func maskAttr(a slog.Attr) slog.Attr {
	return slog.Attr{Key: a.Key, Value: maskValue(a.Value)}
}

// maskValue рекурсивно маскирует значения атрибутов.
func maskValue(value slog.Value) slog.Value {
	switch value.Kind() {
	case slog.KindString:
		return slog.StringValue(maskSecrets(value.String()))
	case slog.KindAny:
		// Ошибки HTTP-клиента содержат полный URL вместе с токеном.
		if err, ok := value.Any().(error); ok {
			return slog.StringValue(maskSecrets(err.Error()))
		}
		return value
	case slog.KindLogValuer:
		return maskValue(value.Resolve())
	case slog.KindGroup:
		group := value.Group()
		masked := make([]slog.Attr, len(group))
		for i, a := range group {
			masked[i] = maskAttr(a)
		}
		return slog.GroupValue(masked...)
	default:
		return value
	}
}

// NewMaskedLogger создает slog.Logger с маскировкой секретов.
func NewMaskedLogger(handler slog.Handler) *slog.Logger {
	return slog.New(NewSecretMaskerHandler(handler))
}

// ParseLevel переводит уровень из конфигурации в slog.Level. Неизвестное значение
// дает Info.
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// New создает маскирующий логгер с JSON- или текстовым выводом.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return NewMaskedLogger(h)
}
