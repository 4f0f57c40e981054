// Package pagination кодирует окно просмотра списка в компактный токен,
// который целиком хранится в callback-данных кнопки. Сервер не хранит
// никакого состояния навигации, поэтому токены переживают перезапуск бота.
package pagination

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxTokenLen — ограничение Telegram на размер callback_data.
const MaxTokenLen = 64

// Prefix отличает токены навигации от прочих callback-данных.
const Prefix = "pg"

var (
	// ErrInvalidToken возвращается для повреждённых или чужих токенов.
	ErrInvalidToken = errors.New("invalid pagination token")
	// ErrTokenTooLong возвращается, если окно не помещается в callback_data.
	ErrTokenTooLong = errors.New("pagination token exceeds callback data limit")
)

// Action — запрошенное действие навигации.
type Action byte

const (
	ActionRefresh Action = 'r'
	ActionNext    Action = 'n'
	ActionBack    Action = 'b'
)

func (a Action) valid() bool {
	return a == ActionRefresh || a == ActionNext || a == ActionBack
}

func (a Action) String() string {
	switch a {
	case ActionRefresh:
		return "refresh"
	case ActionNext:
		return "next"
	case ActionBack:
		return "back"
	default:
		return "unknown"
	}
}

// PageWindow — отображаемый срез [Start, End) списка результатов поиска Pattern.
type PageWindow struct {
	Start   int
	End     int
	Pattern string
	Action  Action
}

// Encode упаковывает окно в токен вида "pg:<action>:<start>:<end>:<pattern>".
// Шаблон идёт последним и может содержать ':'.
func Encode(w PageWindow) (string, error) {
	if !w.Action.valid() || w.Start < 0 || w.End < w.Start {
		return "", fmt.Errorf("%w: %+v", ErrInvalidToken, w)
	}
	token := Prefix + ":" + string(w.Action) + ":" + strconv.Itoa(w.Start) + ":" + strconv.Itoa(w.End) + ":" + w.Pattern
	if len(token) > MaxTokenLen {
		return "", ErrTokenTooLong
	}
	return token, nil
}

// IsToken сообщает, похожи ли callback-данные на токен навигации.
func IsToken(data string) bool {
	return strings.HasPrefix(data, Prefix+":")
}

// Decode восстанавливает окно из токена.
func Decode(token string) (PageWindow, error) {
	parts := strings.SplitN(token, ":", 5)
	if len(parts) != 5 || parts[0] != Prefix || len(parts[1]) != 1 {
		return PageWindow{}, ErrInvalidToken
	}

	action := Action(parts[1][0])
	if !action.valid() {
		return PageWindow{}, fmt.Errorf("%w: unknown action %q", ErrInvalidToken, parts[1])
	}
	start, err := strconv.Atoi(parts[2])
	if err != nil {
		return PageWindow{}, fmt.Errorf("%w: start: %v", ErrInvalidToken, err)
	}
	end, err := strconv.Atoi(parts[3])
	if err != nil {
		return PageWindow{}, fmt.Errorf("%w: end: %v", ErrInvalidToken, err)
	}
	if start < 0 || end < start {
		return PageWindow{}, fmt.Errorf("%w: window [%d, %d)", ErrInvalidToken, start, end)
	}

	return PageWindow{Start: start, End: end, Pattern: parts[4], Action: action}, nil
}

// Codec вычисляет окна страниц фиксированного размера.
type Codec struct {
	pageSize int
}

// NewCodec создает Codec. Неположительный размер страницы заменяется на 1.
func NewCodec(pageSize int) *Codec {
	if pageSize <= 0 {
		pageSize = 1
	}
	return &Codec{pageSize: pageSize}
}

// PageSize возвращает размер страницы.
func (c *Codec) PageSize() int {
	return c.pageSize
}

// First возвращает окно первой страницы для нового поиска.
func (c *Codec) First(pattern string) PageWindow {
	return PageWindow{Start: 0, End: c.pageSize, Pattern: pattern, Action: ActionRefresh}
}

// Resolve пересчитывает окно относительно текущего числа результатов.
// End из токена никогда не используется: набор мог измениться после отрисовки.
func (c *Codec) Resolve(w PageWindow, total int) PageWindow {
	if total < 0 {
		total = 0
	}

	start := w.Start
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}

	switch {
	case total == 0:
		start = 0
	case start >= total:
		start = (total - 1) / c.pageSize * c.pageSize
	}

	end := start + c.pageSize
	if end > total {
		end = total
	}

	return PageWindow{Start: start, End: end, Pattern: w.Pattern, Action: w.Action}
}

// Next возвращает окно следующей страницы. Окно ограничивается через Resolve
// при отрисовке.
func (c *Codec) Next(w PageWindow) PageWindow {
	return PageWindow{
		Start:   w.Start + c.pageSize,
		End:     w.End + c.pageSize,
		Pattern: w.Pattern,
		Action:  ActionNext,
	}
}

// Back возвращает окно предыдущей страницы.
func (c *Codec) Back(w PageWindow) PageWindow {
	start := w.Start - c.pageSize
	if start < 0 {
		start = 0
	}
	end := start + c.pageSize
	if end > w.Start {
		end = w.Start
	}
	return PageWindow{Start: start, End: end, Pattern: w.Pattern, Action: ActionBack}
}

// Refresh возвращает то же окно с действием обновления.
func (c *Codec) Refresh(w PageWindow) PageWindow {
	w.Action = ActionRefresh
	return w
}

// Controls описывает кнопки навигации для уже разрешённого окна.
// Nil означает неактивную заглушку (первая или последняя страница).
type Controls struct {
	Back    *PageWindow
	Refresh PageWindow
	Next    *PageWindow
}

// Controls строит кнопки навигации для окна w, разрешённого относительно total.
func (c *Codec) Controls(w PageWindow, total int) Controls {
	ctl := Controls{Refresh: c.Refresh(w)}
	if w.Start > 0 {
		back := c.Back(w)
		ctl.Back = &back
	}
	if w.End < total {
		next := c.Next(w)
		ctl.Next = &next
	}
	return ctl
}
