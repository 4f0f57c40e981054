package services

import (
	"log/slog"

	"wialonblock/internal/domain"
)

// Derive вычисляет состояние блокировки объекта по членству в двух группах одного чата.
// Порядок проверок важен: случай "в обеих группах" должен проверяться первым.
func Derive(log *slog.Logger, unitID int64, locked, unlocked domain.IDSet) domain.LockState {
	if log == nil {
		log = slog.Default()
	}

	inLocked := locked.Has(unitID)
	inUnlocked := unlocked.Has(unitID)

	switch {
	case inLocked && inUnlocked:
		log.Error("unit is a member of both locked and unlocked groups", slog.Int64("unit_id", unitID))
		return domain.LockUnknown
	case inLocked:
		return domain.LockLocked
	case inUnlocked:
		return domain.LockUnlocked
	default:
		log.Error("unit not found in either group", slog.Int64("unit_id", unitID))
		return domain.LockUnknown
	}
}
