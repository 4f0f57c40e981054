// Package bot реализует Telegram-интерфейс управления блокировкой объектов Wialon.
package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"wialonblock/internal/domain"
	"wialonblock/internal/pagination"
	"wialonblock/internal/ports"
)

const (
	startCommand      = "start"
	listCommand       = "list"
	exportCommand     = "export"
	getGroupIDCommand = "get_group_id"

	// Шаблон поиска хранится в callback_data кнопок навигации (не более 64 байт).
	maxPatternBytes = 32
)

// API — часть tgbotapi.BotAPI, которую использует бот.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// LockManager — операции над состоянием блокировки объектов чата.
type LockManager interface {
	ListUnits(ctx context.Context, chatKey, pattern string) ([]domain.Unit, error)
	GetUnitAndState(ctx context.Context, chatKey string, unitID int64) (domain.Unit, domain.LockState, error)
	Lock(ctx context.Context, chatKey string, unitID int64) (domain.Unit, domain.LockState, error)
	Unlock(ctx context.Context, chatKey string, unitID int64) (domain.Unit, domain.LockState, error)
}

// Settings — параметры отображения и жизни сообщений.
type Settings struct {
	ParseMode           string
	DisableNotification bool
	PageSize            int
	OutdatedTimeout     time.Duration
	DeleteTimeout       time.Duration // 0 - карточки объектов не удаляются
	PollTimeout         int
}

// Bot представляет собой основной объект Telegram-бота.
type Bot struct {
	api      API
	service  LockManager
	exporter ports.Exporter
	settings Settings
	codec    *pagination.Codec
	format   formatter
	expiry   *ExpiryStore
	logger   *slog.Logger
	now      func() time.Time

	wg sync.WaitGroup
}

// NewBot создает бота. exporter используется командой /export.
func NewBot(api API, service LockManager, exporter ports.Exporter, settings Settings, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		api:      api,
		service:  service,
		exporter: exporter,
		settings: settings,
		codec:    pagination.NewCodec(settings.PageSize),
		format:   formatter{mode: settings.ParseMode},
		expiry:   NewExpiryStore(),
		logger:   logger,
		now:      time.Now,
	}
}

// Start регистрирует меню команд и запускает цикл обработки обновлений.
// Возвращается после отмены ctx и завершения начатых обработчиков.
func (b *Bot) Start(ctx context.Context) {
	b.setCommands()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.settings.PollTimeout
	u.AllowedUpdates = []string{"message", "callback_query"}

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("bot started, waiting for updates")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Context cancelled, stopping bot...")
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			b.expiry.StopAll()
			return
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				b.expiry.StopAll()
				return
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

func (b *Bot) setCommands() {
	cmds := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: listCommand, Description: "Показать список объектов"},
		tgbotapi.BotCommand{Command: exportCommand, Description: "Выгрузить список объектов в Excel"},
		tgbotapi.BotCommand{Command: getGroupIDCommand, Description: "Показать ID чата"},
	)
	if _, err := b.api.Request(cmds); err != nil {
		b.logger.Error("failed to set bot commands", slog.String("error", err.Error()))
		return
	}
	b.logger.Info("default commands set")
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic while handling update", slog.Int("update_id", update.UpdateID), slog.Any("panic", r))
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

// handleMessage обрабатывает входящее сообщение.
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	// Обычный текст в чате трактуется как шаблон поиска.
	b.sendList(ctx, msg.Chat.ID, text, true)
}

// handleCommand обрабатывает команды.
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case startCommand:
		b.sendText(chatID, b.format.plain(helpText))
	case getGroupIDCommand:
		var userID int64
		if msg.From != nil {
			userID = msg.From.ID
		}
		b.logger.Info("chat id requested", slog.Int64("user_id", userID), slog.Int64("chat_id", chatID))
		text := fmt.Sprintf("Команда: %s, пользователь: %d, чат: %d", msg.Text, userID, chatID)
		b.sendText(chatID, b.format.plain(text))
	case listCommand:
		b.sendList(ctx, chatID, args, false)
	case exportCommand:
		b.sendExport(ctx, chatID, args)
	default:
		b.sendText(chatID, b.format.plain("Я не знаю такой команды."))
	}
}

func chatKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

// sendList отправляет первую страницу списка объектов и закрепляет сообщение.
// fromText означает, что шаблон пришел обычным сообщением, а не командой:
// тогда бот молчит в чатах без настройки и на длинный текст.
func (b *Bot) sendList(ctx context.Context, chatID int64, pattern string, fromText bool) {
	if len(pattern) > maxPatternBytes {
		if fromText {
			b.logger.Debug("text too long for a search pattern, ignored", slog.Int64("chat_id", chatID))
			return
		}
		b.sendText(chatID, b.format.plain(fmt.Sprintf("Шаблон поиска слишком длинный (не более %d байт).", maxPatternBytes)))
		return
	}

	units, err := b.service.ListUnits(ctx, chatKey(chatID), pattern)
	if err != nil {
		if fromText && errors.Is(err, domain.ErrNotConfigured) {
			b.logger.Debug("text in unconfigured chat ignored", slog.Int64("chat_id", chatID))
			return
		}
		b.reportError(chatID, "", err)
		return
	}

	w := b.codec.Resolve(b.codec.First(pattern), len(units))
	text, kb, err := b.renderList(units, w)
	if err != nil {
		b.reportError(chatID, "", err)
		return
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = b.settings.ParseMode
	msg.DisableNotification = b.settings.DisableNotification
	msg.ReplyMarkup = kb
	sent, err := b.api.Send(msg)
	if err != nil {
		b.logger.Error("failed to send unit list", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
		return
	}

	if len(units) > 0 {
		pin := tgbotapi.PinChatMessageConfig{ChatID: chatID, MessageID: sent.MessageID, DisableNotification: true}
		if _, err := b.api.Request(pin); err != nil {
			// Боту могут не дать права на закрепление, список при этом остается рабочим.
			b.logger.Warn("failed to pin unit list", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
		}
	}
	b.scheduleOutdated(chatID, sent.MessageID, w)
}

// renderList строит текст и клавиатуру для разрешенного окна.
func (b *Bot) renderList(units []domain.Unit, w pagination.PageWindow) (string, tgbotapi.InlineKeyboardMarkup, error) {
	text := b.format.listText(w.Pattern, w.Start, w.End, len(units), b.now())
	kb, err := listKeyboard(units[w.Start:w.End], b.codec.Controls(w, len(units)))
	if err != nil {
		return "", tgbotapi.InlineKeyboardMarkup{}, fmt.Errorf("build list keyboard: %w", err)
	}
	return text, kb, nil
}

// scheduleOutdated помечает список устаревшим по истечении OutdatedTimeout.
func (b *Bot) scheduleOutdated(chatID int64, messageID int, w pagination.PageWindow) {
	if b.settings.OutdatedTimeout <= 0 {
		return
	}
	b.expiry.Schedule(chatID, messageID, b.settings.OutdatedTimeout, func() {
		kb, err := refreshKeyboard(b.codec.Refresh(w))
		if err != nil {
			b.logger.Error("failed to build refresh keyboard", slog.String("error", err.Error()))
			return
		}
		edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, b.format.outdatedText(b.now()), kb)
		edit.ParseMode = b.settings.ParseMode
		if _, err := b.api.Send(edit); err != nil {
			b.logger.Error("failed to mark list as outdated",
				slog.Int64("chat_id", chatID), slog.Int("message_id", messageID), slog.String("error", err.Error()))
		}
	})
}

// scheduleDelete удаляет карточку объекта по истечении DeleteTimeout.
func (b *Bot) scheduleDelete(chatID int64, messageID int) {
	if b.settings.DeleteTimeout <= 0 {
		return
	}
	b.expiry.Schedule(chatID, messageID, b.settings.DeleteTimeout, func() {
		b.deleteMessage(chatID, messageID)
	})
}

func (b *Bot) deleteMessage(chatID int64, messageID int) {
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		b.logger.Error("failed to delete unit card",
			slog.Int64("chat_id", chatID), slog.Int("message_id", messageID), slog.String("error", err.Error()))
	}
}

// handleCallback обрабатывает нажатия на inline-кнопки.
func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.Message == nil || q.Message.Chat == nil {
		b.answer(q.ID, "")
		return
	}

	cb, err := parseCallback(q.Data)
	if err != nil {
		b.logger.Info("unknown callback", slog.String("data", q.Data), slog.String("error", err.Error()))
		b.answer(q.ID, "")
		return
	}

	switch cb.kind {
	case callbackNoop:
		b.answer(q.ID, "")
	case callbackPage:
		b.handlePage(ctx, q, cb.window)
	case callbackUnit:
		b.handleUnit(ctx, q, cb.unitID)
	case callbackLock, callbackUnlock:
		b.handleTransition(ctx, q, cb.unitID, cb.kind == callbackLock)
	}
}

// handlePage перерисовывает список на месте для окна из токена.
func (b *Bot) handlePage(ctx context.Context, q *tgbotapi.CallbackQuery, w pagination.PageWindow) {
	chatID, messageID := q.Message.Chat.ID, q.Message.MessageID

	units, err := b.service.ListUnits(ctx, chatKey(chatID), w.Pattern)
	if err != nil {
		b.reportError(chatID, q.ID, err)
		return
	}

	w = b.codec.Resolve(w, len(units))
	text, kb, err := b.renderList(units, w)
	if err != nil {
		b.reportError(chatID, q.ID, err)
		return
	}

	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, kb)
	edit.ParseMode = b.settings.ParseMode
	if _, err := b.api.Send(edit); err != nil {
		if isNotModified(err) {
			b.answer(q.ID, "Обновлений нет")
			return
		}
		b.reportError(chatID, q.ID, fmt.Errorf("edit unit list: %w", err))
		return
	}

	if w.Action == pagination.ActionRefresh {
		b.answer(q.ID, "Список объектов обновлен")
	} else {
		b.answer(q.ID, "")
	}
	b.scheduleOutdated(chatID, messageID, w)
}

// handleUnit отправляет карточку объекта с кнопкой обратного перехода.
func (b *Bot) handleUnit(ctx context.Context, q *tgbotapi.CallbackQuery, unitID int64) {
	chatID := q.Message.Chat.ID

	unit, state, err := b.service.GetUnitAndState(ctx, chatKey(chatID), unitID)
	if err != nil {
		b.reportError(chatID, q.ID, err)
		return
	}

	msg := tgbotapi.NewMessage(chatID, b.format.unitText(unit, state, b.now()))
	msg.ParseMode = b.settings.ParseMode
	msg.DisableNotification = b.settings.DisableNotification
	if kb := unitKeyboard(unit.ID, state); kb != nil {
		msg.ReplyMarkup = *kb
	}
	sent, err := b.api.Send(msg)
	if err != nil {
		b.logger.Error("failed to send unit card", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
		b.answer(q.ID, "")
		return
	}
	b.answer(q.ID, "")
	b.scheduleDelete(chatID, sent.MessageID)
}

// handleTransition блокирует или разблокирует объект и обновляет карточку.
func (b *Bot) handleTransition(ctx context.Context, q *tgbotapi.CallbackQuery, unitID int64, lock bool) {
	chatID, messageID := q.Message.Chat.ID, q.Message.MessageID
	logger := b.logger.With(slog.Int64("chat_id", chatID), slog.Int64("unit_id", unitID), slog.Bool("lock", lock))
	if q.From != nil {
		logger = logger.With(slog.Int64("user_id", q.From.ID), slog.String("username", q.From.UserName))
	}
	logger.Info("lock state change requested")

	op := b.service.Unlock
	done := "Выезд разрешен"
	if lock {
		op = b.service.Lock
		done = "Выезд запрещен"
	}

	unit, state, err := op(ctx, chatKey(chatID), unitID)
	if err != nil {
		b.reportError(chatID, q.ID, err)
		if errors.Is(err, domain.ErrUnitNotInSourceGroup) || errors.Is(err, domain.ErrSwapFailed) {
			b.refreshCard(ctx, chatID, messageID, unitID)
		}
		return
	}

	b.editCard(chatID, messageID, unit, state)
	b.answer(q.ID, done)
	logger.Info("lock state changed", slog.String("state", state.String()))
}

// refreshCard перечитывает состояние, чтобы карточка не предлагала устаревший переход.
// Карточка объекта, которого больше нет в группах чата, удаляется сразу.
func (b *Bot) refreshCard(ctx context.Context, chatID int64, messageID int, unitID int64) {
	unit, state, err := b.service.GetUnitAndState(ctx, chatKey(chatID), unitID)
	if err != nil {
		b.logger.Warn("failed to refresh unit card", slog.Int64("unit_id", unitID), slog.String("error", err.Error()))
		if errors.Is(err, domain.ErrUnitNotFound) {
			b.expiry.Cancel(chatID, messageID)
			b.deleteMessage(chatID, messageID)
		}
		return
	}
	b.editCard(chatID, messageID, unit, state)
}

func (b *Bot) editCard(chatID int64, messageID int, unit domain.Unit, state domain.LockState) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, b.format.unitText(unit, state, b.now()))
	edit.ParseMode = b.settings.ParseMode
	edit.ReplyMarkup = unitKeyboard(unit.ID, state)
	if _, err := b.api.Send(edit); err != nil && !isNotModified(err) {
		b.logger.Error("failed to edit unit card", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
		return
	}
	b.scheduleDelete(chatID, messageID)
}

// sendExport отправляет список объектов xlsx-документом.
func (b *Bot) sendExport(ctx context.Context, chatID int64, pattern string) {
	units, err := b.service.ListUnits(ctx, chatKey(chatID), pattern)
	if err != nil {
		b.reportError(chatID, "", err)
		return
	}
	if len(units) == 0 {
		b.sendText(chatID, b.format.plain("Объекты не найдены"))
		return
	}

	var buf bytes.Buffer
	if err := b.exporter.Export(&buf, units); err != nil {
		b.reportError(chatID, "", fmt.Errorf("export units: %w", err))
		return
	}

	fileName := fmt.Sprintf("units_%s.xlsx", b.now().Format("2006-01-02_15-04-05"))
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: fileName, Bytes: buf.Bytes()})
	doc.Caption = fmt.Sprintf("Найдено объектов: %d", len(units))
	doc.DisableNotification = b.settings.DisableNotification
	if _, err := b.api.Send(doc); err != nil {
		b.logger.Error("failed to send export", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
	}
}

// reportError логирует ошибку и показывает пользователю безопасное сообщение
// с кодом для поиска в логах.
func (b *Bot) reportError(chatID int64, callbackID string, err error) {
	id := uuid.NewString()
	text, expected := userMessage(err)
	logger := b.logger.With(slog.Int64("chat_id", chatID), slog.String("correlation_id", id), slog.String("error", err.Error()))
	if expected {
		logger.Warn("request rejected")
	} else {
		logger.Error("request failed")
		text = "Произошла ошибка, попробуйте позже."
	}
	text = fmt.Sprintf("%s Код: %s", text, id)

	if callbackID != "" {
		if _, err := b.api.Request(tgbotapi.NewCallbackWithAlert(callbackID, text)); err != nil {
			b.logger.Error("failed to answer callback", slog.String("error", err.Error()))
		}
		return
	}
	b.sendText(chatID, b.format.plain(text))
}

// userMessage переводит ошибки предметной области в текст для чата.
// expected == false означает непредвиденную ошибку.
func userMessage(err error) (text string, expected bool) {
	switch {
	case errors.Is(err, domain.ErrNotConfigured):
		return "Этот чат не подключен к Wialon.", true
	case errors.Is(err, domain.ErrUnitNotInSourceGroup):
		return "Состояние объекта уже изменилось. Карточка обновлена.", true
	case errors.Is(err, domain.ErrUnitNotFound):
		return "Объект не найден.", true
	default:
		return "", false
	}
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.logger.Error("failed to answer callback", slog.String("error", err.Error()))
	}
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = b.settings.ParseMode
	msg.DisableNotification = b.settings.DisableNotification
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("failed to send message", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
	}
}
