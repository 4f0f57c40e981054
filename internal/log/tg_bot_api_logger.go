package log

import (
	"fmt"
	"log/slog"
	"strings"
)

// TGBotAPIAdapter адаптирует slog.Logger под интерфейс логгера,
// который ожидает библиотека go-telegram-bot-api/v5 (tgbotapi.SetLogger).
type TGBotAPIAdapter struct {
	Logger *slog.Logger
}

// Println реализует метод интерфейса tgbotapi.BotLogger.
func (a *TGBotAPIAdapter) Println(v ...interface{}) {
	a.log(strings.TrimSpace(fmt.Sprintln(v...)))
}

// Printf реализует метод интерфейса tgbotapi.BotLogger.
func (a *TGBotAPIAdapter) Printf(format string, v ...interface{}) {
	a.log(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Библиотека пишет через логгер только сбои long polling, остальное считаем отладкой.
func (a *TGBotAPIAdapter) log(msg string) {
	if strings.Contains(msg, "Failed") || strings.Contains(msg, "error") {
		a.Logger.Warn(msg, slog.String("source", "tgbotapi"))
		return
	}
	a.Logger.Debug(msg, slog.String("source", "tgbotapi"))
}
