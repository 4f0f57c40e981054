package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured возвращается, когда для чата нет записи в конфигурации.
	ErrNotConfigured = errors.New("chat is not configured")
	// ErrGroupNotFound — то же самое с точки зрения getUnitAndState.
	ErrGroupNotFound = ErrNotConfigured
	// ErrGroupMissing возвращается, когда группа с указанным именем отсутствует в Wialon.
	ErrGroupMissing = errors.New("remote group not found")
	// ErrBothGroupsEmpty — обе группы пусты, скорее всего ошибка конфигурации.
	ErrBothGroupsEmpty = errors.New("both groups are empty")
	// ErrUnitNotInSourceGroup — объекта нет в исходной группе перестановки.
	ErrUnitNotInSourceGroup = errors.New("unit is not in the source group")
	// ErrUnitNotFound — Wialon не вернул запись объекта.
	ErrUnitNotFound = errors.New("unit not found")
	// ErrSwapFailed — после перестановки состояние не совпало с запрошенным.
	ErrSwapFailed = errors.New("swap did not reach the requested state")
)

// RemoteError оборачивает непрозрачную ошибку удалённого сервиса.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// NewRemoteError оборачивает err, если это ещё не RemoteError.
func NewRemoteError(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return err
	}
	return &RemoteError{Op: op, Err: err}
}
