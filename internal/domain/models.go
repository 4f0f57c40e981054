package domain

import "sort"

// TrackedGroup описывает привязку чата Telegram к трём группам Wialon.
// Загружается из конфигурации при старте и не изменяется во время работы.
type TrackedGroup struct {
	ChatKey           string `json:"chat_key"`
	LockedGroupName   string `json:"locked_group_name"`
	UnlockedGroupName string `json:"unlocked_group_name"`
	// IgnoredGroupName может быть пустым.
	IgnoredGroupName string `json:"ignored_group_name,omitempty"`
}

// LockState — производное состояние блокировки объекта. Никогда не хранится.
type LockState int

const (
	LockUnknown LockState = iota
	LockLocked
	LockUnlocked
)

// String возвращает машинное имя состояния.
func (s LockState) String() string {
	switch s {
	case LockLocked:
		return "locked"
	case LockUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// Emoji возвращает значок состояния для интерфейса чата.
func (s LockState) Emoji() string {
	switch s {
	case LockLocked:
		return "⛔️"
	case LockUnlocked:
		return "🟢"
	default:
		return "❓"
	}
}

// Unit — объект (трекер) удалённого сервиса.
// LockState — только аннотация для интерфейса, в Wialon не записывается.
type Unit struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	LockState LockState `json:"lock_state"`
}

// Item — сырая запись, возвращаемая поиском Wialon (объект или группа объектов).
type Item struct {
	ID   int64  `json:"id"`
	Name string `json:"nm"`
	// Members заполняется только для групп объектов (поле "u").
	Members []int64 `json:"u,omitempty"`
}

// IDSet — множество идентификаторов объектов, входящих в группу.
type IDSet map[int64]struct{}

// NewIDSet строит множество из списка идентификаторов.
func NewIDSet(ids ...int64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has проверяет принадлежность идентификатора множеству.
func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Union возвращает новое множество s ∪ other.
func (s IDSet) Union(other IDSet) IDSet {
	out := make(IDSet, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// Subtract возвращает новое множество s \ other.
func (s IDSet) Subtract(other IDSet) IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		if !other.Has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Sorted возвращает идентификаторы по возрастанию.
func (s IDSet) Sorted() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SearchSpec соответствует параметру "spec" запроса core/search_items.
type SearchSpec struct {
	ItemsType     string `json:"itemsType"`
	PropName      string `json:"propName"`
	PropValueMask string `json:"propValueMask"`
	SortType      string `json:"sortType"`
	PropType      string `json:"propType"`
}

// Типы элементов Wialon, с которыми работает сервис.
const (
	ItemTypeUnit      = "avl_unit"
	ItemTypeUnitGroup = "avl_unit_group"
)

// DataFlag — флаги данных, запрашиваемых у Wialon.
type DataFlag uint64

const (
	DataFlagBase         DataFlag = 0x1
	DataFlagBillingProps DataFlag = 0x4
)
