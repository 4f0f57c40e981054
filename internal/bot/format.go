package bot

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"wialonblock/internal/domain"
)

const timeLayout = "02.01.2006 15:04:05"

// formatter собирает тексты сообщений с учетом parse_mode чата.
type formatter struct {
	mode string
}

// plain экранирует произвольный текст.
func (f formatter) plain(s string) string {
	switch f.mode {
	case tgbotapi.ModeHTML, tgbotapi.ModeMarkdown:
		return tgbotapi.EscapeText(f.mode, s)
	case tgbotapi.ModeMarkdownV2:
		// EscapeText не экранирует обратную косую черту.
		return tgbotapi.EscapeText(f.mode, strings.ReplaceAll(s, `\`, `\\`))
	default:
		return s
	}
}

// bold экранирует текст и выделяет его жирным.
func (f formatter) bold(s string) string {
	switch f.mode {
	case tgbotapi.ModeHTML:
		return "<b>" + f.plain(s) + "</b>"
	case tgbotapi.ModeMarkdown, tgbotapi.ModeMarkdownV2:
		return "*" + f.plain(s) + "*"
	default:
		return s
	}
}

// code экранирует текст и выводит его моноширинным шрифтом.
func (f formatter) code(s string) string {
	switch f.mode {
	case tgbotapi.ModeHTML:
		return "<code>" + f.plain(s) + "</code>"
	case tgbotapi.ModeMarkdownV2:
		return "`" + strings.NewReplacer(`\`, `\\`, "`", "\\`").Replace(s) + "`"
	case tgbotapi.ModeMarkdown:
		return "`" + strings.ReplaceAll(s, "`", "'") + "`"
	default:
		return s
	}
}

func stateLabel(s domain.LockState) string {
	switch s {
	case domain.LockLocked:
		return "выезд запрещен"
	case domain.LockUnlocked:
		return "выезд разрешен"
	default:
		return "неизвестно"
	}
}

// listText — заголовок сообщения со списком объектов.
func (f formatter) listText(pattern string, start, end, total int, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(f.bold("Результат поиска:"))
	if pattern != "" {
		sb.WriteString(" " + f.code(pattern))
	}
	sb.WriteString("\n")
	if total == 0 {
		sb.WriteString(f.plain("Объекты не найдены"))
	} else {
		sb.WriteString(f.plain(fmt.Sprintf("Объекты %d-%d из %d", start+1, end, total)))
	}
	sb.WriteString("\n")
	sb.WriteString(f.plain("Последнее обновление: " + now.Format(timeLayout)))
	return sb.String()
}

// outdatedText заменяет текст списка по истечении outdated_timeout.
func (f formatter) outdatedText(now time.Time) string {
	return f.bold("Сообщение устарело:") + " " + f.plain(now.Format(timeLayout))
}

// unitText — карточка объекта.
func (f formatter) unitText(u domain.Unit, state domain.LockState, now time.Time) string {
	return f.bold(u.Name) + "\n\n" +
		f.bold("Состояние:") + " " + f.plain(state.Emoji()+" "+stateLabel(state)) + "\n" +
		f.bold("Обновлено:") + " " + f.plain(now.Format(timeLayout))
}

const helpText = `Бот управляет разрешением на выезд для объектов Wialon, закрепленных за этим чатом.

/list [шаблон] - список объектов (можно просто отправить часть имени)
/export [шаблон] - выгрузить список в Excel
/get_group_id - показать идентификатор чата`
