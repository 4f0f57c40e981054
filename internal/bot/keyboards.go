package bot

import (
	"github.com/mattn/go-runewidth"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"wialonblock/internal/domain"
	"wialonblock/internal/pagination"
)

const (
	unitsPerRow = 2
	// Ширина подписи кнопки объекта без значка состояния.
	labelWidth = 24

	lockButton    = "🔒 Запретить выезд"
	unlockButton  = "🔓 Разрешить выезд"
	backButton    = "⬅️"
	refreshButton = "🔄"
	nextButton    = "➡️"
	inertButton   = "·"
)

func unitLabel(u domain.Unit) string {
	return u.LockState.Emoji() + " " + runewidth.Truncate(u.Name, labelWidth, "…")
}

// listKeyboard строит клавиатуру страницы: по два объекта в ряд и ряд навигации.
func listKeyboard(units []domain.Unit, ctl pagination.Controls) (tgbotapi.InlineKeyboardMarkup, error) {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(units)/unitsPerRow+2)
	for i := 0; i < len(units); i += unitsPerRow {
		end := i + unitsPerRow
		if end > len(units) {
			end = len(units)
		}
		row := make([]tgbotapi.InlineKeyboardButton, 0, unitsPerRow)
		for _, u := range units[i:end] {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(unitLabel(u), unitData(u.ID)))
		}
		rows = append(rows, row)
	}

	nav, err := navRow(ctl)
	if err != nil {
		return tgbotapi.InlineKeyboardMarkup{}, err
	}
	rows = append(rows, nav)
	return tgbotapi.NewInlineKeyboardMarkup(rows...), nil
}

// navRow строит ряд "назад / обновить / вперед". Недоступные переходы
// заменяются неактивными заглушками, чтобы ряд не менял форму.
func navRow(ctl pagination.Controls) ([]tgbotapi.InlineKeyboardButton, error) {
	button := func(label string, w *pagination.PageWindow) (tgbotapi.InlineKeyboardButton, error) {
		if w == nil {
			return tgbotapi.NewInlineKeyboardButtonData(inertButton, cbNoop), nil
		}
		token, err := pagination.Encode(*w)
		if err != nil {
			return tgbotapi.InlineKeyboardButton{}, err
		}
		return tgbotapi.NewInlineKeyboardButtonData(label, token), nil
	}

	back, err := button(backButton, ctl.Back)
	if err != nil {
		return nil, err
	}
	refresh, err := button(refreshButton, &ctl.Refresh)
	if err != nil {
		return nil, err
	}
	next, err := button(nextButton, ctl.Next)
	if err != nil {
		return nil, err
	}
	return tgbotapi.NewInlineKeyboardRow(back, refresh, next), nil
}

// refreshKeyboard — единственная кнопка обновления для устаревшего списка.
func refreshKeyboard(w pagination.PageWindow) (tgbotapi.InlineKeyboardMarkup, error) {
	token, err := pagination.Encode(w)
	if err != nil {
		return tgbotapi.InlineKeyboardMarkup{}, err
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(refreshButton+" Обновить", token)),
	), nil
}

// unitKeyboard предлагает обратный переход. Для неизвестного состояния кнопок нет.
func unitKeyboard(unitID int64, state domain.LockState) *tgbotapi.InlineKeyboardMarkup {
	var button tgbotapi.InlineKeyboardButton
	switch state {
	case domain.LockLocked:
		button = tgbotapi.NewInlineKeyboardButtonData(unlockButton, unlockData(unitID))
	case domain.LockUnlocked:
		button = tgbotapi.NewInlineKeyboardButtonData(lockButton, lockData(unitID))
	default:
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(button))
	return &kb
}
