package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"wialonblock/internal/domain"
	"wialonblock/internal/ports"
)

// fakeRemote — упрощённая in-memory модель Wialon для сквозных сценариев.
type fakeRemote struct {
	mu      sync.Mutex
	groups  map[string]*domain.Item // по имени
	units   map[int64]string
	nextID  int64
	logins  int
	logouts int

	// openErr симулирует ошибку авторизации.
	openErr error
	// searchErr симулирует ошибку поиска.
	searchErr error
	// batchFailAt — индекс операции пакета, которая завершится ошибкой (-1 — без ошибок).
	batchFailAt int
	// skipApply — пакет отвечает успехом, но ничего не меняет.
	skipApply bool

	searches []domain.SearchSpec
	batches  [][]ports.Op
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		groups:      make(map[string]*domain.Item),
		units:       make(map[int64]string),
		nextID:      1000,
		batchFailAt: -1,
	}
}

func (f *fakeRemote) addUnit(id int64, name string) *fakeRemote {
	f.units[id] = name
	return f
}

func (f *fakeRemote) addGroup(name string, members ...int64) *fakeRemote {
	f.nextID++
	f.groups[name] = &domain.Item{ID: f.nextID, Name: name, Members: append([]int64{}, members...)}
	return f
}

func (f *fakeRemote) members(name string) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[name]
	if !ok {
		return nil
	}
	out := append([]int64{}, g.Members...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (f *fakeRemote) Open(ctx context.Context) (ports.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.logins++
	return &fakeSession{remote: f}, nil
}

type fakeSession struct {
	remote *fakeRemote
}

func matchMask(mask, value string) bool {
	for _, alt := range strings.Split(mask, "|") {
		if ok, _ := path.Match(strings.ToLower(alt), strings.ToLower(value)); ok {
			return true
		}
	}
	return false
}

func (s *fakeSession) SearchItems(ctx context.Context, spec domain.SearchSpec, flags domain.DataFlag, from, to int) ([]domain.Item, error) {
	f := s.remote
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, spec)
	if f.searchErr != nil {
		return nil, f.searchErr
	}

	var out []domain.Item
	switch spec.ItemsType {
	case domain.ItemTypeUnitGroup:
		for name, g := range f.groups {
			if matchMask(spec.PropValueMask, name) {
				out = append(out, domain.Item{ID: g.ID, Name: g.Name, Members: append([]int64{}, g.Members...)})
			}
		}
	case domain.ItemTypeUnit:
		masks := strings.SplitN(spec.PropValueMask, ",", 2)
		if spec.PropName != "sys_id,sys_name" || len(masks) != 2 {
			return nil, fmt.Errorf("unexpected unit search %q=%q", spec.PropName, spec.PropValueMask)
		}
		for id, name := range f.units {
			if matchMask(masks[0], strconv.FormatInt(id, 10)) && matchMask(masks[1], name) {
				out = append(out, domain.Item{ID: id, Name: name})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fakeSession) SearchItem(ctx context.Context, id int64, flags domain.DataFlag) (*domain.Item, error) {
	f := s.remote
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.units[id]
	if !ok {
		return nil, nil
	}
	return &domain.Item{ID: id, Name: name}, nil
}

func (s *fakeSession) UpdateGroupUnits(ctx context.Context, groupID int64, unitIDs []int64) error {
	f := s.remote
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applyUpdate(groupID, unitIDs)
}

func (f *fakeRemote) applyUpdate(groupID int64, unitIDs []int64) error {
	for _, g := range f.groups {
		if g.ID == groupID {
			g.Members = append([]int64{}, unitIDs...)
			return nil
		}
	}
	return errors.New("group not found")
}

func (s *fakeSession) Batch(ctx context.Context, ops []ports.Op, stopOnError bool) ([]ports.OpResult, error) {
	f := s.remote
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, ops)

	results := make([]ports.OpResult, 0, len(ops))
	for i, op := range ops {
		if i == f.batchFailAt {
			results = append(results, ports.OpResult{Err: errors.New("error 5")})
			if stopOnError {
				break
			}
			continue
		}
		if f.skipApply {
			results = append(results, ports.OpResult{})
			continue
		}
		params := op.Params.(map[string]any)
		err := f.applyUpdate(params["itemId"].(int64), params["units"].([]int64))
		results = append(results, ports.OpResult{Err: err})
		if err != nil && stopOnError {
			break
		}
	}
	return results, nil
}

func (s *fakeSession) Logout(ctx context.Context) error {
	f := s.remote
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	return nil
}
