package services

import (
	"fmt"
	"sort"

	"wialonblock/internal/domain"
)

// GroupResolver сопоставляет идентификатор чата с его тремя группами Wialon.
// Содержимое не изменяется после создания, поэтому резолвер безопасен для
// одновременного использования без блокировок.
type GroupResolver struct {
	groups map[string]domain.TrackedGroup
}

// NewGroupResolver строит резолвер из конфигурации.
func NewGroupResolver(groups []domain.TrackedGroup) (*GroupResolver, error) {
	m := make(map[string]domain.TrackedGroup, len(groups))
	for _, g := range groups {
		if g.ChatKey == "" {
			return nil, fmt.Errorf("tracked group with empty chat key")
		}
		if g.LockedGroupName == "" || g.UnlockedGroupName == "" {
			return nil, fmt.Errorf("chat %s: locked and unlocked group names are required", g.ChatKey)
		}
		if _, dup := m[g.ChatKey]; dup {
			return nil, fmt.Errorf("chat %s is configured more than once", g.ChatKey)
		}
		m[g.ChatKey] = g
	}
	return &GroupResolver{groups: m}, nil
}

// Resolve возвращает конфигурацию групп для чата.
func (r *GroupResolver) Resolve(chatKey string) (domain.TrackedGroup, error) {
	g, ok := r.groups[chatKey]
	if !ok {
		return domain.TrackedGroup{}, fmt.Errorf("chat %s: %w", chatKey, domain.ErrNotConfigured)
	}
	return g, nil
}

// ChatKeys возвращает отсортированный список настроенных чатов.
func (r *GroupResolver) ChatKeys() []string {
	keys := make([]string, 0, len(r.groups))
	for k := range r.groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
