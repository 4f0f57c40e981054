package ports

import (
	"context"
	"io"

	"wialonblock/internal/domain"
)

// Session — аутентифицированный сеанс удалённого сервиса мониторинга.
// Открывается на одну логическую операцию и обязательно закрывается через Logout.
type Session interface {
	// SearchItems выполняет core/search_items. from/to = 0/0 означает "все элементы".
	SearchItems(ctx context.Context, spec domain.SearchSpec, flags domain.DataFlag, from, to int) ([]domain.Item, error)
	// SearchItem выполняет core/search_item. Возвращает nil, nil, если элемент не найден.
	SearchItem(ctx context.Context, id int64, flags domain.DataFlag) (*domain.Item, error)
	// UpdateGroupUnits заменяет список объектов группы.
	UpdateGroupUnits(ctx context.Context, groupID int64, unitIDs []int64) error
	// Batch отправляет несколько операций одним запросом.
	// При stopOnError после первой ошибки оставшиеся операции не выполняются,
	// и срез результатов может быть короче ops. Откат не выполняется.
	Batch(ctx context.Context, ops []Op, stopOnError bool) ([]OpResult, error)
	// Logout завершает сеанс.
	Logout(ctx context.Context) error
}

// SessionFactory открывает новые сеансы (login).
type SessionFactory interface {
	Open(ctx context.Context) (Session, error)
}

// Op — одна операция внутри пакетного запроса.
type Op struct {
	Svc    string `json:"svc"`
	Params any    `json:"params"`
}

// OpResult — результат одной операции пакета. Err == nil означает успех.
type OpResult struct {
	Err error
}

// UpdateGroupUnitsOp строит операцию unit_group/update_units для пакета.
func UpdateGroupUnitsOp(groupID int64, unitIDs []int64) Op {
	if unitIDs == nil {
		unitIDs = []int64{}
	}
	return Op{
		Svc: "unit_group/update_units",
		Params: map[string]any{
			"itemId": groupID,
			"units":  unitIDs,
		},
	}
}

// Exporter выводит размеченный список объектов.
type Exporter interface {
	Export(w io.Writer, units []domain.Unit) error
}
