package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"wialonblock/internal/pagination"
)

// Префиксы callback_data кнопок.
const (
	cbUnit   = "u"
	cbLock   = "lk"
	cbUnlock = "ul"
	cbNoop   = "noop"
)

type callbackKind int

const (
	callbackNoop callbackKind = iota
	callbackPage
	callbackUnit
	callbackLock
	callbackUnlock
)

type callback struct {
	kind   callbackKind
	unitID int64
	window pagination.PageWindow
}

var errUnknownCallback = errors.New("unknown callback data")

func unitData(id int64) string   { return fmt.Sprintf("%s:%d", cbUnit, id) }
func lockData(id int64) string   { return fmt.Sprintf("%s:%d", cbLock, id) }
func unlockData(id int64) string { return fmt.Sprintf("%s:%d", cbUnlock, id) }

// parseCallback разбирает callback_data, сформированные клавиатурами бота.
func parseCallback(data string) (callback, error) {
	if data == cbNoop {
		return callback{kind: callbackNoop}, nil
	}
	if pagination.IsToken(data) {
		w, err := pagination.Decode(data)
		if err != nil {
			return callback{}, err
		}
		return callback{kind: callbackPage, window: w}, nil
	}

	prefix, rawID, ok := strings.Cut(data, ":")
	if !ok {
		return callback{}, fmt.Errorf("%w: %q", errUnknownCallback, data)
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return callback{}, fmt.Errorf("%w: bad unit id in %q", errUnknownCallback, data)
	}

	switch prefix {
	case cbUnit:
		return callback{kind: callbackUnit, unitID: id}, nil
	case cbLock:
		return callback{kind: callbackLock, unitID: id}, nil
	case cbUnlock:
		return callback{kind: callbackUnlock, unitID: id}, nil
	default:
		return callback{}, fmt.Errorf("%w: %q", errUnknownCallback, data)
	}
}
