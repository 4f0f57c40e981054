package wialon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"golang.org/x/xerrors"

	"wialonblock/internal/domain"
	"wialonblock/internal/ports"
)

// Session — авторизованный сеанс Wialon (sid). Не используется повторно
// после Logout.
type Session struct {
	client *Client
	sid    string
}

var _ ports.Session = (*Session)(nil)

type searchItemsParams struct {
	Spec  domain.SearchSpec `json:"spec"`
	Force int               `json:"force"`
	Flags domain.DataFlag   `json:"flags"`
	From  int               `json:"from"`
	To    int               `json:"to"`
}

type searchItemsResponse struct {
	TotalItemsCount int           `json:"totalItemsCount"`
	Items           []domain.Item `json:"items"`
}

// SearchItems выполняет core/search_items.
func (s *Session) SearchItems(ctx context.Context, spec domain.SearchSpec, flags domain.DataFlag, from, to int) ([]domain.Item, error) {
	params := searchItemsParams{Spec: spec, Force: 1, Flags: flags, From: from, To: to}
	var resp searchItemsResponse
	if err := s.client.call(ctx, s.sid, "core/search_items", params, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

type searchItemResponse struct {
	Item *domain.Item `json:"item"`
}

// SearchItem выполняет core/search_item. Wialon отвечает "access denied" и на
// отсутствующий, и на недоступный объект, оба случая означают "не найден".
func (s *Session) SearchItem(ctx context.Context, id int64, flags domain.DataFlag) (*domain.Item, error) {
	params := map[string]any{"id": id, "flags": flags}
	var resp searchItemResponse
	err := s.client.call(ctx, s.sid, "core/search_item", params, &resp)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == CodeAccessDenied {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return resp.Item, nil
}

// UpdateGroupUnits выполняет unit_group/update_units.
func (s *Session) UpdateGroupUnits(ctx context.Context, groupID int64, unitIDs []int64) error {
	op := ports.UpdateGroupUnitsOp(groupID, unitIDs)
	return s.client.call(ctx, s.sid, op.Svc, op.Params, nil)
}

type batchParams struct {
	Params []ports.Op `json:"params"`
	Flags  int        `json:"flags"`
}

// Batch выполняет core/batch. flags=1 останавливает выполнение на первой ошибке,
// тогда массив результатов короче списка операций.
func (s *Session) Batch(ctx context.Context, ops []ports.Op, stopOnError bool) ([]ports.OpResult, error) {
	params := batchParams{Params: ops}
	if stopOnError {
		params.Flags = 1
	}

	raw, err := s.client.callRaw(ctx, s.sid, "core/batch", params)
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, xerrors.Errorf("decode core/batch response: %w", err)
	}

	results := make([]ports.OpResult, 0, len(items))
	for i, item := range items {
		svc := "core/batch"
		if i < len(ops) {
			svc = ops[i].Svc
		}
		results = append(results, ports.OpResult{Err: checkError(svc, bytes.TrimSpace(item))})
	}
	return results, nil
}

// Logout выполняет core/logout.
func (s *Session) Logout(ctx context.Context) error {
	return s.client.call(ctx, s.sid, "core/logout", nil, nil)
}
