package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wialonblock/internal/domain"
	"wialonblock/internal/ports"
)

// itemFlags — набор данных, который запрашивается для объектов и групп.
const itemFlags = domain.DataFlagBase | domain.DataFlagBillingProps

// LockOption — функциональная опция для настройки LockService.
type LockOption func(*LockService)

// WithLockLogger устанавливает логгер для сервиса.
func WithLockLogger(l *slog.Logger) LockOption {
	return func(s *LockService) {
		if l != nil {
			s.log = l
		}
	}
}

// WithLogoutTimeout ограничивает время на закрытие сеанса.
func WithLogoutTimeout(d time.Duration) LockOption {
	return func(s *LockService) {
		if d > 0 {
			s.logoutTimeout = d
		}
	}
}

// LockService — менеджер состояний блокировки. Состояние выводится только из
// членства в группах Wialon и перечитывается на каждую операцию.
// Сервис не хранит состояния между вызовами и не сериализует одновременные
// операции над одним объектом.
type LockService struct {
	resolver      *GroupResolver
	sessions      ports.SessionFactory
	log           *slog.Logger
	logoutTimeout time.Duration
}

// NewLockService создает LockService.
func NewLockService(resolver *GroupResolver, sessions ports.SessionFactory, opts ...LockOption) *LockService {
	s := &LockService{
		resolver:      resolver,
		sessions:      sessions,
		log:           slog.Default(),
		logoutTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// withSession открывает сеанс, выполняет fn и гарантированно закрывает сеанс.
func (s *LockService) withSession(ctx context.Context, fn func(ports.Session) error) error {
	session, err := s.sessions.Open(ctx)
	if err != nil {
		return domain.NewRemoteError("login", err)
	}
	defer func() {
		// Закрываем сеанс даже при отменённом контексте операции.
		logoutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.logoutTimeout)
		defer cancel()
		if err := session.Logout(logoutCtx); err != nil {
			s.log.Error("failed to logout from remote session", slog.String("error", err.Error()))
		}
	}()
	return fn(session)
}

// ListUnits возвращает объекты чата, отфильтрованные по шаблону имени,
// с выведенным состоянием блокировки. Отсутствие результатов не является ошибкой.
func (s *LockService) ListUnits(ctx context.Context, chatKey, pattern string) ([]domain.Unit, error) {
	group, err := s.resolver.Resolve(chatKey)
	if err != nil {
		return nil, err
	}
	log := s.log.With(slog.String("chat", chatKey))

	var units []domain.Unit
	err = s.withSession(ctx, func(session ports.Session) error {
		locked, unlocked, err := s.fetchMembership(ctx, session, group)
		if err != nil {
			return err
		}

		candidates := locked.Union(unlocked)
		if group.IgnoredGroupName != "" {
			ignored, err := s.groupMembers(ctx, session, group.IgnoredGroupName)
			if err != nil {
				return err
			}
			candidates = candidates.Subtract(ignored)
		}
		if len(candidates) == 0 {
			log.Info("no candidate units for chat")
			return nil
		}

		spec := domain.SearchSpec{
			ItemsType:     domain.ItemTypeUnit,
			PropName:      "sys_id,sys_name",
			PropValueMask: IDMask(candidates.Sorted()) + "," + NameMask(pattern),
			SortType:      "sys_name",
		}
		items, err := session.SearchItems(ctx, spec, itemFlags, 0, 0)
		if err != nil {
			return domain.NewRemoteError("core/search_items", err)
		}

		units = make([]domain.Unit, 0, len(items))
		for _, item := range items {
			units = append(units, domain.Unit{
				ID:        item.ID,
				Name:      item.Name,
				LockState: Derive(log, item.ID, locked, unlocked),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}

	log.Debug("units listed", slog.String("pattern", pattern), slog.Int("count", len(units)))
	return units, nil
}

// GetUnitAndState возвращает объект и его текущее состояние.
func (s *LockService) GetUnitAndState(ctx context.Context, chatKey string, unitID int64) (domain.Unit, domain.LockState, error) {
	group, err := s.resolver.Resolve(chatKey)
	if err != nil {
		return domain.Unit{}, domain.LockUnknown, err
	}

	var (
		unit  domain.Unit
		state domain.LockState
	)
	err = s.withSession(ctx, func(session ports.Session) error {
		var err error
		unit, state, err = s.readUnitState(ctx, session, group, unitID)
		return err
	})
	if err != nil {
		return domain.Unit{}, domain.LockUnknown, fmt.Errorf("get unit %d: %w", unitID, err)
	}
	return unit, state, nil
}

// Lock переносит объект из группы "разблокирован" в группу "заблокирован".
func (s *LockService) Lock(ctx context.Context, chatKey string, unitID int64) (domain.Unit, domain.LockState, error) {
	return s.transition(ctx, chatKey, unitID, domain.LockLocked)
}

// Unlock переносит объект из группы "заблокирован" в группу "разблокирован".
func (s *LockService) Unlock(ctx context.Context, chatKey string, unitID int64) (domain.Unit, domain.LockState, error) {
	return s.transition(ctx, chatKey, unitID, domain.LockUnlocked)
}

func (s *LockService) transition(ctx context.Context, chatKey string, unitID int64, target domain.LockState) (domain.Unit, domain.LockState, error) {
	group, err := s.resolver.Resolve(chatKey)
	if err != nil {
		return domain.Unit{}, domain.LockUnknown, err
	}

	from, to := group.UnlockedGroupName, group.LockedGroupName
	if target == domain.LockUnlocked {
		from, to = to, from
	}

	log := s.log.With(slog.String("chat", chatKey), slog.Int64("unit_id", unitID), slog.String("target", target.String()))
	log.Info("attempting lock state transition")

	var (
		unit  domain.Unit
		state domain.LockState
	)
	err = s.withSession(ctx, func(session ports.Session) error {
		if err := s.swap(ctx, session, unitID, from, to); err != nil {
			return err
		}
		// Истина всегда перечитывается из Wialon, результат записи не учитывается.
		var err error
		unit, state, err = s.readUnitState(ctx, session, group, unitID)
		if err != nil {
			return err
		}
		if state != target {
			return fmt.Errorf("%w: got %s, want %s", domain.ErrSwapFailed, state, target)
		}
		return nil
	})
	if err != nil {
		log.Warn("lock state transition failed", slog.String("error", err.Error()))
		return domain.Unit{}, domain.LockUnknown, fmt.Errorf("%s unit %d: %w", verb(target), unitID, err)
	}

	log.Info("lock state transition succeeded", slog.String("unit_name", unit.Name))
	return unit, state, nil
}

func verb(target domain.LockState) string {
	if target == domain.LockLocked {
		return "lock"
	}
	return "unlock"
}

// readUnitState читает оба множества членства и запись объекта в рамках одного сеанса.
func (s *LockService) readUnitState(ctx context.Context, session ports.Session, group domain.TrackedGroup, unitID int64) (domain.Unit, domain.LockState, error) {
	locked, unlocked, err := s.fetchMembership(ctx, session, group)
	if err != nil {
		return domain.Unit{}, domain.LockUnknown, err
	}

	item, err := session.SearchItem(ctx, unitID, itemFlags)
	if err != nil {
		return domain.Unit{}, domain.LockUnknown, domain.NewRemoteError("core/search_item", err)
	}
	if item == nil {
		return domain.Unit{}, domain.LockUnknown, domain.ErrUnitNotFound
	}

	state := Derive(s.log.With(slog.String("chat", group.ChatKey)), unitID, locked, unlocked)
	return domain.Unit{ID: item.ID, Name: item.Name, LockState: state}, state, nil
}

func (s *LockService) fetchMembership(ctx context.Context, session ports.Session, group domain.TrackedGroup) (locked, unlocked domain.IDSet, err error) {
	locked, err = s.groupMembers(ctx, session, group.LockedGroupName)
	if err != nil {
		return nil, nil, err
	}
	unlocked, err = s.groupMembers(ctx, session, group.UnlockedGroupName)
	if err != nil {
		return nil, nil, err
	}
	return locked, unlocked, nil
}

// groupMembers возвращает множество объектов группы. Отсутствующая в Wialon
// группа при чтении считается пустой.
func (s *LockService) groupMembers(ctx context.Context, session ports.Session, name string) (domain.IDSet, error) {
	group, err := s.findGroup(ctx, session, name)
	if errors.Is(err, domain.ErrGroupMissing) {
		s.log.Warn("remote group not found, treating as empty", slog.String("group", name))
		return domain.NewIDSet(), nil
	}
	if err != nil {
		return nil, err
	}
	return domain.NewIDSet(group.Members...), nil
}

// findGroup ищет группу объектов по точному имени.
func (s *LockService) findGroup(ctx context.Context, session ports.Session, name string) (*domain.Item, error) {
	spec := domain.SearchSpec{
		ItemsType:     domain.ItemTypeUnitGroup,
		PropName:      "sys_name",
		PropValueMask: name,
		SortType:      "sys_name",
	}
	items, err := session.SearchItems(ctx, spec, itemFlags, 0, 0)
	if err != nil {
		return nil, domain.NewRemoteError("core/search_items", err)
	}
	// Маска Wialon нечувствительна к регистру, поэтому сравниваем так же.
	for i := range items {
		if strings.EqualFold(items[i].Name, name) {
			return &items[i], nil
		}
	}
	return nil, fmt.Errorf("group %q: %w", name, domain.ErrGroupMissing)
}
