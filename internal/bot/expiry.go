package bot

import (
	"sync"
	"time"
)

type messageKey struct {
	chatID    int64
	messageID int
}

// ExpiryStore — потокобезопасный реестр отложенных действий над сообщениями
// (пометка "устарело", удаление). На одно сообщение приходится не более одного
// таймера; повторное планирование заменяет предыдущий.
type ExpiryStore struct {
	mu     sync.Mutex
	timers map[messageKey]*time.Timer
}

// NewExpiryStore создает новый экземпляр ExpiryStore.
func NewExpiryStore() *ExpiryStore {
	return &ExpiryStore{
		timers: make(map[messageKey]*time.Timer),
	}
}

// Schedule планирует fn через after для сообщения. Таймер, уже назначенный
// этому сообщению, останавливается.
func (s *ExpiryStore) Schedule(chatID int64, messageID int, after time.Duration, fn func()) {
	key := messageKey{chatID: chatID, messageID: messageID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[key]; ok {
		t.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(after, func() {
		s.mu.Lock()
		current, ok := s.timers[key]
		if !ok || current != t {
			// Таймер уже заменен или отменен.
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()

		fn()
	})
	s.timers[key] = t
}

// Cancel отменяет отложенное действие для сообщения.
func (s *ExpiryStore) Cancel(chatID int64, messageID int) {
	key := messageKey{chatID: chatID, messageID: messageID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
}

// Pending возвращает число запланированных действий.
func (s *ExpiryStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// StopAll отменяет все действия. Используется при остановке бота.
func (s *ExpiryStore) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}
