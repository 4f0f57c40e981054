package services

import (
	"context"
	"fmt"
	"log/slog"

	"wialonblock/internal/domain"
	"wialonblock/internal/ports"
)

// swap переносит unitID из группы from в группу to.
//
// Оба обновления отправляются одним пакетом с остановкой на первой ошибке.
// Пакет не откатывается: если первое обновление прошло, а второе нет, объект
// остаётся удалённым из исходной группы и не добавленным в целевую. Такое
// состояние обнаруживается только повторным чтением членства.
func (s *LockService) swap(ctx context.Context, session ports.Session, unitID int64, from, to string) error {
	fromGroup, err := s.findGroup(ctx, session, from)
	if err != nil {
		return err
	}
	toGroup, err := s.findGroup(ctx, session, to)
	if err != nil {
		return err
	}

	if len(fromGroup.Members) == 0 && len(toGroup.Members) == 0 {
		return fmt.Errorf("%q and %q: %w", from, to, domain.ErrBothGroupsEmpty)
	}

	// Без подтверждённого членства в исходной группе объект никуда не добавляется.
	if !domain.NewIDSet(fromGroup.Members...).Has(unitID) {
		return fmt.Errorf("unit %d, group %q: %w", unitID, from, domain.ErrUnitNotInSourceGroup)
	}

	newFrom := make([]int64, 0, len(fromGroup.Members))
	for _, id := range fromGroup.Members {
		if id != unitID {
			newFrom = append(newFrom, id)
		}
	}
	newTo := append([]int64(nil), toGroup.Members...)
	if !domain.NewIDSet(newTo...).Has(unitID) {
		newTo = append(newTo, unitID)
	}

	ops := []ports.Op{
		ports.UpdateGroupUnitsOp(fromGroup.ID, newFrom),
		ports.UpdateGroupUnitsOp(toGroup.ID, newTo),
	}
	results, err := session.Batch(ctx, ops, true)
	if err != nil {
		return domain.NewRemoteError("core/batch", err)
	}

	for i, op := range ops {
		if i >= len(results) {
			// Операция не выполнялась из-за остановки пакета.
			return domain.NewRemoteError(op.Svc, fmt.Errorf("batch stopped before operation %d", i))
		}
		if results[i].Err != nil {
			if i > 0 {
				s.log.Error("partial group swap: unit removed from source but not added to destination",
					slog.Int64("unit_id", unitID),
					slog.String("from", from),
					slog.String("to", to),
				)
			}
			return domain.NewRemoteError(op.Svc, results[i].Err)
		}
	}

	s.log.Info("group swap submitted",
		slog.Int64("unit_id", unitID),
		slog.String("from", from),
		slog.String("to", to),
	)
	return nil
}
