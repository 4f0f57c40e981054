package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wialonblock/internal/domain"
	"wialonblock/internal/pagination"
)

const testChatID int64 = -1001234567890

// mockAPI — мок для API, запоминает все отправленные запросы.
type mockAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	nextID   int
	updates  chan tgbotapi.Update
	stopped  bool

	sendFunc func(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

func newMockAPI() *mockAPI {
	return &mockAPI{nextID: 100, updates: make(chan tgbotapi.Update, 10)}
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	m.sent = append(m.sent, c)
	m.nextID++
	id := m.nextID
	fn := m.sendFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(c)
	}
	return tgbotapi.Message{MessageID: id}, nil
}

func (m *mockAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return m.updates
}

func (m *mockAPI) StopReceivingUpdates() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *mockAPI) sentCopy() []tgbotapi.Chattable {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), m.sent...)
}

func (m *mockAPI) requestsCopy() []tgbotapi.Chattable {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), m.requests...)
}

func (m *mockAPI) lastSent(t *testing.T) tgbotapi.Chattable {
	t.Helper()
	sent := m.sentCopy()
	require.NotEmpty(t, sent)
	return sent[len(sent)-1]
}

func (m *mockAPI) callbackAnswers() []tgbotapi.CallbackConfig {
	var out []tgbotapi.CallbackConfig
	for _, r := range m.requestsCopy() {
		if cb, ok := r.(tgbotapi.CallbackConfig); ok {
			out = append(out, cb)
		}
	}
	return out
}

// mockLockManager — мок для LockManager.
type mockLockManager struct {
	listUnitsFunc func(ctx context.Context, chatKey, pattern string) ([]domain.Unit, error)
	getUnitFunc   func(ctx context.Context, chatKey string, unitID int64) (domain.Unit, domain.LockState, error)
	lockFunc      func(ctx context.Context, chatKey string, unitID int64) (domain.Unit, domain.LockState, error)
	unlockFunc    func(ctx context.Context, chatKey string, unitID int64) (domain.Unit, domain.LockState, error)
}

func (m *mockLockManager) ListUnits(ctx context.Context, chatKey, pattern string) ([]domain.Unit, error) {
	if m.listUnitsFunc != nil {
		return m.listUnitsFunc(ctx, chatKey, pattern)
	}
	return nil, nil
}

func (m *mockLockManager) GetUnitAndState(ctx context.Context, chatKey string, unitID int64) (domain.Unit, domain.LockState, error) {
	if m.getUnitFunc != nil {
		return m.getUnitFunc(ctx, chatKey, unitID)
	}
	return domain.Unit{}, domain.LockUnknown, domain.ErrUnitNotFound
}

func (m *mockLockManager) Lock(ctx context.Context, chatKey string, unitID int64) (domain.Unit, domain.LockState, error) {
	if m.lockFunc != nil {
		return m.lockFunc(ctx, chatKey, unitID)
	}
	return domain.Unit{}, domain.LockUnknown, errors.New("not implemented")
}

func (m *mockLockManager) Unlock(ctx context.Context, chatKey string, unitID int64) (domain.Unit, domain.LockState, error) {
	if m.unlockFunc != nil {
		return m.unlockFunc(ctx, chatKey, unitID)
	}
	return domain.Unit{}, domain.LockUnknown, errors.New("not implemented")
}

// mockExporter — мок для ports.Exporter.
type mockExporter struct {
	exported []domain.Unit
	err      error
}

func (m *mockExporter) Export(w io.Writer, units []domain.Unit) error {
	m.exported = units
	if m.err != nil {
		return m.err
	}
	_, err := w.Write([]byte("xlsx"))
	return err
}

func testSettings() Settings {
	return Settings{
		ParseMode:           tgbotapi.ModeMarkdownV2,
		DisableNotification: true,
		PageSize:            4,
		OutdatedTimeout:     time.Hour,
		DeleteTimeout:       time.Hour,
		PollTimeout:         1,
	}
}

// newTestBot создает бота с моками для тестирования.
func newTestBot(t *testing.T, api *mockAPI, svc LockManager, settings Settings) *Bot {
	t.Helper()
	b := NewBot(api, svc, &mockExporter{}, settings, slog.New(slog.NewTextHandler(io.Discard, nil)))
	b.now = func() time.Time { return time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC) }
	t.Cleanup(b.expiry.StopAll)
	return b
}

func makeUnits(n int) []domain.Unit {
	units := make([]domain.Unit, n)
	for i := range units {
		state := domain.LockUnlocked
		if i%2 == 1 {
			state = domain.LockLocked
		}
		units[i] = domain.Unit{ID: int64(i + 1), Name: fmt.Sprintf("Truck %02d", i+1), LockState: state}
	}
	return units
}

func commandMessage(text string) *tgbotapi.Message {
	cmd, _, _ := strings.Cut(text, " ")
	return &tgbotapi.Message{
		MessageID: 1,
		Text:      text,
		Chat:      &tgbotapi.Chat{ID: testChatID},
		From:      &tgbotapi.User{ID: 42, UserName: "operator"},
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}
}

func callbackQuery(data string, messageID int) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		Data:    data,
		From:    &tgbotapi.User{ID: 42, UserName: "operator"},
		Message: &tgbotapi.Message{MessageID: messageID, Chat: &tgbotapi.Chat{ID: testChatID}},
	}
}

func keyboardData(t *testing.T, kb tgbotapi.InlineKeyboardMarkup) [][]string {
	t.Helper()
	rows := make([][]string, 0, len(kb.InlineKeyboard))
	for _, row := range kb.InlineKeyboard {
		var r []string
		for _, btn := range row {
			require.NotNil(t, btn.CallbackData)
			r = append(r, *btn.CallbackData)
		}
		rows = append(rows, r)
	}
	return rows
}

func TestParseCallback(t *testing.T) {
	tests := []struct {
		data    string
		want    callback
		wantErr bool
	}{
		{data: "noop", want: callback{kind: callbackNoop}},
		{data: "u:42", want: callback{kind: callbackUnit, unitID: 42}},
		{data: "lk:42", want: callback{kind: callbackLock, unitID: 42}},
		{data: "ul:7", want: callback{kind: callbackUnlock, unitID: 7}},
		{data: "pg:n:20:40:tr", want: callback{kind: callbackPage, window: pagination.PageWindow{Start: 20, End: 40, Pattern: "tr", Action: pagination.ActionNext}}},
		{data: "refresh", wantErr: true},
		{data: "u:abc", wantErr: true},
		{data: "u:-1", wantErr: true},
		{data: "xx:1", wantErr: true},
		{data: "pg:z:0:1:", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			got, err := parseCallback(tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListKeyboard(t *testing.T) {
	codec := pagination.NewCodec(4)
	units := makeUnits(10)
	w := codec.Resolve(codec.First("tr"), len(units))

	kb, err := listKeyboard(units[w.Start:w.End], codec.Controls(w, len(units)))
	require.NoError(t, err)

	data := keyboardData(t, kb)
	require.Len(t, data, 3)
	assert.Equal(t, []string{"u:1", "u:2"}, data[0])
	assert.Equal(t, []string{"u:3", "u:4"}, data[1])
	assert.Equal(t, []string{"noop", "pg:r:0:4:tr", "pg:n:4:8:tr"}, data[2])
	assert.Equal(t, "🟢 Truck 01", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "⛔️ Truck 02", kb.InlineKeyboard[0][1].Text)
	assert.Equal(t, inertButton, kb.InlineKeyboard[2][0].Text)
}

func TestListKeyboard_OddAndLastPage(t *testing.T) {
	codec := pagination.NewCodec(4)
	units := makeUnits(7)
	w := codec.Resolve(pagination.PageWindow{Start: 4, End: 8}, len(units))

	kb, err := listKeyboard(units[w.Start:w.End], codec.Controls(w, len(units)))
	require.NoError(t, err)

	data := keyboardData(t, kb)
	require.Len(t, data, 3)
	assert.Equal(t, []string{"u:7"}, data[1])
	assert.Equal(t, []string{"pg:b:0:4:", "pg:r:4:7:", "noop"}, data[2])
}

func TestUnitLabelTruncation(t *testing.T) {
	label := unitLabel(domain.Unit{Name: strings.Repeat("x", 40), LockState: domain.LockUnknown})
	assert.True(t, strings.HasPrefix(label, "❓ "))
	assert.True(t, strings.HasSuffix(label, "…"))
	assert.Less(t, len(label), 40)
}

func TestUnitKeyboard(t *testing.T) {
	kb := unitKeyboard(42, domain.LockLocked)
	require.NotNil(t, kb)
	assert.Equal(t, unlockButton, kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "ul:42", *kb.InlineKeyboard[0][0].CallbackData)

	kb = unitKeyboard(42, domain.LockUnlocked)
	require.NotNil(t, kb)
	assert.Equal(t, "lk:42", *kb.InlineKeyboard[0][0].CallbackData)

	assert.Nil(t, unitKeyboard(42, domain.LockUnknown))
}

func TestFormatter(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)

	v2 := formatter{mode: tgbotapi.ModeMarkdownV2}
	assert.Equal(t, `*Truck\_1 \(old\)*`, v2.bold("Truck_1 (old)"))
	assert.Equal(t, `a\\b\.`, v2.plain(`a\b.`))
	assert.Equal(t, "*Результат поиска:* `tr`\nОбъекты 1\\-4 из 10\nПоследнее обновление: 01\\.03\\.2025 10:30:00",
		v2.listText("tr", 0, 4, 10, now))

	html := formatter{mode: tgbotapi.ModeHTML}
	assert.Equal(t, "<b>A&lt;B&gt;</b>", html.bold("A<B>"))

	plain := formatter{}
	assert.Equal(t, "Объекты не найдены", strings.Split(plain.listText("", 0, 0, 0, now), "\n")[1])
	assert.Contains(t, plain.unitText(domain.Unit{Name: "Truck"}, domain.LockLocked, now), "⛔️ выезд запрещен")
}

func TestExpiryStore(t *testing.T) {
	t.Run("fires once", func(t *testing.T) {
		s := NewExpiryStore()
		fired := make(chan struct{}, 2)
		s.Schedule(1, 10, 10*time.Millisecond, func() { fired <- struct{}{} })

		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatal("timer did not fire")
		}
		assert.Equal(t, 0, s.Pending())
	})

	t.Run("reschedule replaces previous timer", func(t *testing.T) {
		s := NewExpiryStore()
		var mu sync.Mutex
		var calls []string
		s.Schedule(1, 10, 20*time.Millisecond, func() { mu.Lock(); calls = append(calls, "first"); mu.Unlock() })
		s.Schedule(1, 10, 30*time.Millisecond, func() { mu.Lock(); calls = append(calls, "second"); mu.Unlock() })
		assert.Equal(t, 1, s.Pending())

		assert.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
		time.Sleep(30 * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{"second"}, calls)
	})

	t.Run("cancel and stop all", func(t *testing.T) {
		s := NewExpiryStore()
		s.Schedule(1, 10, time.Hour, func() { t.Error("must not fire") })
		s.Schedule(1, 11, time.Hour, func() { t.Error("must not fire") })
		s.Schedule(2, 10, time.Hour, func() { t.Error("must not fire") })
		assert.Equal(t, 3, s.Pending())

		s.Cancel(1, 10)
		assert.Equal(t, 2, s.Pending())
		s.StopAll()
		assert.Equal(t, 0, s.Pending())
	})
}

func TestBot_ListCommand(t *testing.T) {
	api := newMockAPI()
	var gotKey, gotPattern string
	svc := &mockLockManager{listUnitsFunc: func(_ context.Context, chatKey, pattern string) ([]domain.Unit, error) {
		gotKey, gotPattern = chatKey, pattern
		return makeUnits(10), nil
	}}
	b := newTestBot(t, api, svc, testSettings())

	b.handleMessage(context.Background(), commandMessage("/list tr"))

	assert.Equal(t, "-1001234567890", gotKey)
	assert.Equal(t, "tr", gotPattern)

	msg, ok := api.lastSent(t).(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, testChatID, msg.ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, msg.ParseMode)
	assert.True(t, msg.DisableNotification)
	assert.Contains(t, msg.Text, "Объекты 1\\-4 из 10")
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Len(t, kb.InlineKeyboard, 3)

	requests := api.requestsCopy()
	require.Len(t, requests, 1)
	pin, ok := requests[0].(tgbotapi.PinChatMessageConfig)
	require.True(t, ok)
	assert.Equal(t, 101, pin.MessageID)
	assert.True(t, pin.DisableNotification)

	assert.Equal(t, 1, b.expiry.Pending())
}

func TestBot_PlainTextSearch(t *testing.T) {
	api := newMockAPI()
	var gotPattern string
	svc := &mockLockManager{listUnitsFunc: func(_ context.Context, _, pattern string) ([]domain.Unit, error) {
		gotPattern = pattern
		return nil, nil
	}}
	b := newTestBot(t, api, svc, testSettings())

	b.handleMessage(context.Background(), &tgbotapi.Message{Text: "  AA 12 ", Chat: &tgbotapi.Chat{ID: testChatID}})

	assert.Equal(t, "AA 12", gotPattern)
	msg := api.lastSent(t).(tgbotapi.MessageConfig)
	assert.Contains(t, msg.Text, "Объекты не найдены")
	// Пустой список не закрепляется.
	assert.Empty(t, api.requestsCopy())
}

func TestBot_PlainTextInUnconfiguredChatIsIgnored(t *testing.T) {
	api := newMockAPI()
	calls := 0
	svc := &mockLockManager{listUnitsFunc: func(context.Context, string, string) ([]domain.Unit, error) {
		calls++
		return nil, fmt.Errorf("resolve chat 777: %w", domain.ErrNotConfigured)
	}}
	b := newTestBot(t, api, svc, testSettings())

	for i := 0; i < 3; i++ {
		b.handleMessage(context.Background(), &tgbotapi.Message{Text: "hello everyone", Chat: &tgbotapi.Chat{ID: 777}})
	}
	b.handleMessage(context.Background(), &tgbotapi.Message{Text: strings.Repeat("long chat message ", 5), Chat: &tgbotapi.Chat{ID: 777}})

	assert.Equal(t, 3, calls)
	assert.Empty(t, api.sentCopy())

	// Команда в том же чате по-прежнему получает ответ.
	msg := commandMessage("/list")
	msg.Chat.ID = 777
	b.handleMessage(context.Background(), msg)
	assert.Contains(t, api.lastSent(t).(tgbotapi.MessageConfig).Text, "Этот чат не подключен к Wialon")
}

func TestBot_PatternTooLong(t *testing.T) {
	api := newMockAPI()
	svc := &mockLockManager{listUnitsFunc: func(context.Context, string, string) ([]domain.Unit, error) {
		t.Error("ListUnits must not be called")
		return nil, nil
	}}
	b := newTestBot(t, api, svc, testSettings())

	b.handleMessage(context.Background(), commandMessage("/list "+strings.Repeat("x", maxPatternBytes+1)))

	msg := api.lastSent(t).(tgbotapi.MessageConfig)
	assert.Contains(t, msg.Text, "слишком длинный")
}

func TestBot_GetGroupIDAndStart(t *testing.T) {
	api := newMockAPI()
	b := newTestBot(t, api, &mockLockManager{}, Settings{PageSize: 4})

	b.handleMessage(context.Background(), commandMessage("/get_group_id"))
	msg := api.lastSent(t).(tgbotapi.MessageConfig)
	assert.Equal(t, "Команда: /get_group_id, пользователь: 42, чат: -1001234567890", msg.Text)

	b.handleMessage(context.Background(), commandMessage("/start"))
	assert.Equal(t, helpText, api.lastSent(t).(tgbotapi.MessageConfig).Text)

	b.handleMessage(context.Background(), commandMessage("/unknown"))
	assert.Equal(t, "Я не знаю такой команды.", api.lastSent(t).(tgbotapi.MessageConfig).Text)
}

func TestBot_ErrorReporting(t *testing.T) {
	t.Run("not configured chat", func(t *testing.T) {
		api := newMockAPI()
		svc := &mockLockManager{listUnitsFunc: func(context.Context, string, string) ([]domain.Unit, error) {
			return nil, fmt.Errorf("resolve: %w", domain.ErrNotConfigured)
		}}
		b := newTestBot(t, api, svc, Settings{PageSize: 4})

		b.handleMessage(context.Background(), commandMessage("/list"))
		text := api.lastSent(t).(tgbotapi.MessageConfig).Text
		assert.True(t, strings.HasPrefix(text, "Этот чат не подключен к Wialon."), text)
		assertCorrelationID(t, text)
	})

	t.Run("typed error in callback gets correlation id", func(t *testing.T) {
		api := newMockAPI()
		b := newTestBot(t, api, &mockLockManager{}, testSettings())

		b.handleCallback(context.Background(), callbackQuery("u:42", 5))

		answers := api.callbackAnswers()
		require.Len(t, answers, 1)
		assert.True(t, answers[0].ShowAlert)
		assert.True(t, strings.HasPrefix(answers[0].Text, "Объект не найден."), answers[0].Text)
		assertCorrelationID(t, answers[0].Text)
	})

	t.Run("unexpected error gets correlation id", func(t *testing.T) {
		api := newMockAPI()
		svc := &mockLockManager{listUnitsFunc: func(context.Context, string, string) ([]domain.Unit, error) {
			return nil, &domain.RemoteError{Op: "login", Err: errors.New("dial tcp: secret details")}
		}}
		b := newTestBot(t, api, svc, Settings{PageSize: 4})

		b.handleMessage(context.Background(), commandMessage("/list"))
		text := api.lastSent(t).(tgbotapi.MessageConfig).Text
		assert.NotContains(t, text, "secret details")
		assert.True(t, strings.HasPrefix(text, "Произошла ошибка, попробуйте позже."), text)
		assertCorrelationID(t, text)
	})
}

// assertCorrelationID проверяет, что текст заканчивается кодом ошибки в формате uuid.
// В MarkdownV2 дефисы кода экранированы.
func assertCorrelationID(t *testing.T, text string) {
	t.Helper()
	_, id, ok := strings.Cut(text, "Код: ")
	require.True(t, ok, text)
	_, err := uuid.Parse(strings.ReplaceAll(id, `\`, ""))
	assert.NoError(t, err, id)
}

func TestBot_PageCallback(t *testing.T) {
	api := newMockAPI()
	svc := &mockLockManager{listUnitsFunc: func(_ context.Context, _, pattern string) ([]domain.Unit, error) {
		assert.Equal(t, "tr", pattern)
		return makeUnits(10), nil
	}}
	b := newTestBot(t, api, svc, testSettings())

	b.handleCallback(context.Background(), callbackQuery("pg:n:4:8:tr", 55))

	edit, ok := api.lastSent(t).(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	assert.Equal(t, 55, edit.MessageID)
	assert.Contains(t, edit.Text, "Объекты 5\\-8 из 10")
	require.NotNil(t, edit.ReplyMarkup)
	data := keyboardData(t, *edit.ReplyMarkup)
	assert.Equal(t, []string{"pg:b:0:4:tr", "pg:r:4:8:tr", "pg:n:8:12:tr"}, data[len(data)-1])

	answers := api.callbackAnswers()
	require.Len(t, answers, 1)
	assert.Empty(t, answers[0].Text)
	assert.Equal(t, 1, b.expiry.Pending())
}

func TestBot_PageCallback_StaleWindowIsReclamped(t *testing.T) {
	api := newMockAPI()
	svc := &mockLockManager{listUnitsFunc: func(context.Context, string, string) ([]domain.Unit, error) {
		return makeUnits(5), nil
	}}
	b := newTestBot(t, api, svc, testSettings())

	b.handleCallback(context.Background(), callbackQuery("pg:r:8:12:", 55))

	edit := api.lastSent(t).(tgbotapi.EditMessageTextConfig)
	assert.Contains(t, edit.Text, "Объекты 5\\-5 из 5")
	assert.Equal(t, "Список объектов обновлен", api.callbackAnswers()[0].Text)
}

func TestBot_PageCallback_NotModified(t *testing.T) {
	api := newMockAPI()
	api.sendFunc = func(tgbotapi.Chattable) (tgbotapi.Message, error) {
		return tgbotapi.Message{}, errors.New("Bad Request: message is not modified")
	}
	svc := &mockLockManager{listUnitsFunc: func(context.Context, string, string) ([]domain.Unit, error) {
		return makeUnits(2), nil
	}}
	b := newTestBot(t, api, svc, testSettings())

	b.handleCallback(context.Background(), callbackQuery("pg:r:0:4:", 55))
	assert.Equal(t, "Обновлений нет", api.callbackAnswers()[0].Text)
}

func TestBot_UnitCallback(t *testing.T) {
	api := newMockAPI()
	svc := &mockLockManager{getUnitFunc: func(_ context.Context, _ string, id int64) (domain.Unit, domain.LockState, error) {
		return domain.Unit{ID: id, Name: "Truck 42"}, domain.LockUnlocked, nil
	}}
	b := newTestBot(t, api, svc, testSettings())

	b.handleCallback(context.Background(), callbackQuery("u:42", 55))

	msg, ok := api.lastSent(t).(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Contains(t, msg.Text, "*Truck 42*")
	assert.Contains(t, msg.Text, "🟢 выезд разрешен")
	kb := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	assert.Equal(t, "lk:42", *kb.InlineKeyboard[0][0].CallbackData)
	assert.Len(t, api.callbackAnswers(), 1)
	assert.Equal(t, 1, b.expiry.Pending())
}

func TestBot_UnitCallback_UnknownStateHasNoButtons(t *testing.T) {
	api := newMockAPI()
	svc := &mockLockManager{getUnitFunc: func(_ context.Context, _ string, id int64) (domain.Unit, domain.LockState, error) {
		return domain.Unit{ID: id, Name: "Truck 7"}, domain.LockUnknown, nil
	}}
	b := newTestBot(t, api, svc, Settings{PageSize: 4})

	b.handleCallback(context.Background(), callbackQuery("u:7", 55))

	msg := api.lastSent(t).(tgbotapi.MessageConfig)
	assert.Nil(t, msg.ReplyMarkup)
	// DeleteTimeout = 0: карточка не удаляется.
	assert.Equal(t, 0, b.expiry.Pending())
}

func TestBot_LockCallback(t *testing.T) {
	api := newMockAPI()
	svc := &mockLockManager{lockFunc: func(_ context.Context, chatKey string, id int64) (domain.Unit, domain.LockState, error) {
		assert.Equal(t, "-1001234567890", chatKey)
		return domain.Unit{ID: id, Name: "Truck 42"}, domain.LockLocked, nil
	}}
	b := newTestBot(t, api, svc, testSettings())

	b.handleCallback(context.Background(), callbackQuery("lk:42", 77))

	edit, ok := api.lastSent(t).(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	assert.Equal(t, 77, edit.MessageID)
	assert.Contains(t, edit.Text, "⛔️ выезд запрещен")
	require.NotNil(t, edit.ReplyMarkup)
	assert.Equal(t, "ul:42", *edit.ReplyMarkup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "Выезд запрещен", api.callbackAnswers()[0].Text)
}

func TestBot_UnlockCallback_AlreadyChanged(t *testing.T) {
	api := newMockAPI()
	svc := &mockLockManager{
		unlockFunc: func(context.Context, string, int64) (domain.Unit, domain.LockState, error) {
			return domain.Unit{}, domain.LockUnknown, fmt.Errorf("unlock unit 42: %w", domain.ErrUnitNotInSourceGroup)
		},
		getUnitFunc: func(_ context.Context, _ string, id int64) (domain.Unit, domain.LockState, error) {
			return domain.Unit{ID: id, Name: "Truck 42"}, domain.LockUnlocked, nil
		},
	}
	b := newTestBot(t, api, svc, testSettings())

	b.handleCallback(context.Background(), callbackQuery("ul:42", 77))

	answers := api.callbackAnswers()
	require.Len(t, answers, 1)
	assert.True(t, answers[0].ShowAlert)
	assert.Contains(t, answers[0].Text, "уже изменилось")

	edit := api.lastSent(t).(tgbotapi.EditMessageTextConfig)
	assert.Equal(t, "lk:42", *edit.ReplyMarkup.InlineKeyboard[0][0].CallbackData)
}

func TestBot_LockCallback_UnitGoneDeletesCard(t *testing.T) {
	api := newMockAPI()
	svc := &mockLockManager{
		lockFunc: func(context.Context, string, int64) (domain.Unit, domain.LockState, error) {
			return domain.Unit{}, domain.LockUnknown, fmt.Errorf("lock unit 42: %w", domain.ErrSwapFailed)
		},
	}
	b := newTestBot(t, api, svc, testSettings())
	b.scheduleDelete(testChatID, 77)
	require.Equal(t, 1, b.expiry.Pending())

	b.handleCallback(context.Background(), callbackQuery("lk:42", 77))

	assert.Equal(t, 0, b.expiry.Pending())
	var deleted []tgbotapi.DeleteMessageConfig
	for _, r := range api.requestsCopy() {
		if d, ok := r.(tgbotapi.DeleteMessageConfig); ok {
			deleted = append(deleted, d)
		}
	}
	require.Len(t, deleted, 1)
	assert.Equal(t, 77, deleted[0].MessageID)
	assert.Empty(t, api.sentCopy())
}

func TestBot_NoopAndUnknownCallbacks(t *testing.T) {
	api := newMockAPI()
	b := newTestBot(t, api, &mockLockManager{}, testSettings())

	b.handleCallback(context.Background(), callbackQuery("noop", 1))
	b.handleCallback(context.Background(), callbackQuery("42?Truck?unit", 1))

	assert.Len(t, api.callbackAnswers(), 2)
	assert.Empty(t, api.sentCopy())
}

func TestBot_Export(t *testing.T) {
	api := newMockAPI()
	svc := &mockLockManager{listUnitsFunc: func(context.Context, string, string) ([]domain.Unit, error) {
		return makeUnits(3), nil
	}}
	exp := &mockExporter{}
	b := newTestBot(t, api, svc, testSettings())
	b.exporter = exp

	b.handleMessage(context.Background(), commandMessage("/export"))

	assert.Len(t, exp.exported, 3)
	doc, ok := api.lastSent(t).(tgbotapi.DocumentConfig)
	require.True(t, ok)
	assert.Equal(t, "Найдено объектов: 3", doc.Caption)
	file, ok := doc.File.(tgbotapi.FileBytes)
	require.True(t, ok)
	assert.Equal(t, "units_2025-03-01_10-30-00.xlsx", file.Name)
	assert.Equal(t, []byte("xlsx"), file.Bytes)
}

func TestBot_OutdatedNotice(t *testing.T) {
	api := newMockAPI()
	svc := &mockLockManager{listUnitsFunc: func(context.Context, string, string) ([]domain.Unit, error) {
		return makeUnits(2), nil
	}}
	settings := testSettings()
	settings.OutdatedTimeout = 10 * time.Millisecond
	b := newTestBot(t, api, svc, settings)

	b.handleMessage(context.Background(), commandMessage("/list"))

	require.Eventually(t, func() bool { return len(api.sentCopy()) == 2 }, time.Second, 5*time.Millisecond)
	edit, ok := api.lastSent(t).(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	assert.Equal(t, 101, edit.MessageID)
	assert.Contains(t, edit.Text, "Сообщение устарело:")
	assert.Equal(t, [][]string{{"pg:r:0:2:"}}, keyboardData(t, *edit.ReplyMarkup))
}

func TestBot_DeleteCard(t *testing.T) {
	api := newMockAPI()
	svc := &mockLockManager{getUnitFunc: func(_ context.Context, _ string, id int64) (domain.Unit, domain.LockState, error) {
		return domain.Unit{ID: id, Name: "Truck"}, domain.LockLocked, nil
	}}
	settings := testSettings()
	settings.DeleteTimeout = 10 * time.Millisecond
	b := newTestBot(t, api, svc, settings)

	b.handleCallback(context.Background(), callbackQuery("u:1", 55))

	require.Eventually(t, func() bool {
		for _, r := range api.requestsCopy() {
			if del, ok := r.(tgbotapi.DeleteMessageConfig); ok && del.MessageID == 101 {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestBot_Start(t *testing.T) {
	api := newMockAPI()
	svc := &mockLockManager{listUnitsFunc: func(context.Context, string, string) ([]domain.Unit, error) {
		return nil, nil
	}}
	b := newTestBot(t, api, svc, testSettings())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Start(ctx)
		close(done)
	}()

	api.updates <- tgbotapi.Update{UpdateID: 1, Message: commandMessage("/list")}
	require.Eventually(t, func() bool { return len(api.sentCopy()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("bot did not stop")
	}

	api.mu.Lock()
	assert.True(t, api.stopped)
	api.mu.Unlock()

	requests := api.requestsCopy()
	require.NotEmpty(t, requests)
	cmds, ok := requests[0].(tgbotapi.SetMyCommandsConfig)
	require.True(t, ok)
	assert.Len(t, cmds.Commands, 3)
	assert.Equal(t, 0, b.expiry.Pending())
}
