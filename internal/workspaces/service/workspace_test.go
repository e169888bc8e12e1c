package service

import (
	"context"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"

	workspaceserrors "deskly/internal/workspaces/errors"
	"deskly/internal/workspaces/validator"
	"deskly/pkg/config"
	apperrors "deskly/pkg/errors"
	"deskly/pkg/logger"
	"deskly/pkg/model"
)

type mockRegistryRepo struct {
	byID map[string]*model.Workspace
}

func (m *mockRegistryRepo) Create(ctx context.Context, w *model.Workspace) error {
	w.ID = "6512bd43d9caa6e02c990b0a"
	m.byID[w.ID] = w
	return nil
}

func (m *mockRegistryRepo) FindByID(ctx context.Context, id string) (*model.Workspace, error) {
	if w, ok := m.byID[id]; ok {
		copied := *w
		return &copied, nil
	}
	return nil, workspaceserrors.ErrNotFound
}

func (m *mockRegistryRepo) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Workspace, error) {
	var out []*model.Workspace
	for _, w := range m.byID {
		out = append(out, w)
	}
	return out, nil
}

func (m *mockRegistryRepo) FindAllActive(ctx context.Context) ([]*model.Workspace, error) {
	var out []*model.Workspace
	for _, w := range m.byID {
		if w.Active {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *mockRegistryRepo) FindActiveWithCapacity(ctx context.Context, minCapacity int) ([]*model.Workspace, error) {
	return nil, nil
}

func (m *mockRegistryRepo) Update(ctx context.Context, id string, w *model.Workspace) (*mongo.UpdateResult, error) {
	if _, ok := m.byID[id]; !ok {
		return nil, workspaceserrors.ErrNotFound
	}
	updated := *w
	updated.ID = id
	m.byID[id] = &updated
	return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}

func (m *mockRegistryRepo) Deactivate(ctx context.Context, id string) error {
	w, ok := m.byID[id]
	if !ok {
		return workspaceserrors.ErrNotFound
	}
	w.Active = false
	return nil
}

func (m *mockRegistryRepo) Count(ctx context.Context) (int64, error) {
	return int64(len(m.byID)), nil
}

func newRegistry(repo *mockRegistryRepo) WorkspaceService {
	log := logger.New(logger.Config{Level: "error", Format: logger.JSON, Service: "test"})
	return NewWorkspaceService(repo, validator.NewWorkspaceValidator(log), &config.Config{Log: log})
}

func TestWorkspaceCreate_SanitizesAndStores(t *testing.T) {
	repo := &mockRegistryRepo{byID: map[string]*model.Workspace{}}
	svc := newRegistry(repo)

	workspace := &model.Workspace{
		Name:     "  Quiet   Room ",
		Capacity: 4,
		Active:   true,
	}
	if err := svc.Create(context.Background(), workspace); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if workspace.Name != "Quiet Room" {
		t.Errorf("expected sanitized name, got %q", workspace.Name)
	}
	if workspace.ID == "" {
		t.Error("expected ID to be assigned")
	}
}

func TestWorkspaceCreate_StartsActive(t *testing.T) {
	repo := &mockRegistryRepo{byID: map[string]*model.Workspace{}}
	svc := newRegistry(repo)

	// No active flag in the request; the workspace must be bookable anyway.
	workspace := &model.Workspace{Name: "Quiet Room", Capacity: 4}
	if err := svc.Create(context.Background(), workspace); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !workspace.Active {
		t.Error("newly created workspace must be active")
	}

	// An explicit false is overridden too; deactivation is its own operation.
	workspace = &model.Workspace{Name: "Back Room", Capacity: 2, Active: false}
	if err := svc.Create(context.Background(), workspace); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !workspace.Active {
		t.Error("create must not produce an inactive workspace")
	}
}

func TestWorkspaceCreate_ValidationFailures(t *testing.T) {
	svc := newRegistry(&mockRegistryRepo{byID: map[string]*model.Workspace{}})
	ctx := context.Background()

	tests := []struct {
		name      string
		workspace model.Workspace
	}{
		{"missing name", model.Workspace{Capacity: 4}},
		{"name too short", model.Workspace{Name: "A", Capacity: 4}},
		{"zero capacity", model.Workspace{Name: "Quiet Room"}},
		{"capacity above limit", model.Workspace{Name: "Quiet Room", Capacity: 501}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Create(ctx, &tt.workspace)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !apperrors.IsCode(err, apperrors.CodeValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestWorkspaceUpdate_MergesPartialFields(t *testing.T) {
	repo := &mockRegistryRepo{byID: map[string]*model.Workspace{
		"6512bd43d9caa6e02c990b0a": {
			ID:          "6512bd43d9caa6e02c990b0a",
			Name:        "Quiet Room",
			Description: "North wing",
			Capacity:    4,
			Active:      true,
		},
	}}
	svc := newRegistry(repo)

	newCapacity := 8
	err := svc.Update(context.Background(), "6512bd43d9caa6e02c990b0a", &model.WorkspaceUpdate{
		Capacity: &newCapacity,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated := repo.byID["6512bd43d9caa6e02c990b0a"]
	if updated.Capacity != 8 {
		t.Errorf("expected capacity 8, got %d", updated.Capacity)
	}
	if updated.Name != "Quiet Room" || updated.Description != "North wing" {
		t.Error("untouched fields must survive a partial update")
	}
}

func TestWorkspaceDeactivate_Idempotent(t *testing.T) {
	repo := &mockRegistryRepo{byID: map[string]*model.Workspace{
		"6512bd43d9caa6e02c990b0a": {
			ID:       "6512bd43d9caa6e02c990b0a",
			Name:     "Quiet Room",
			Capacity: 4,
			Active:   true,
		},
	}}
	svc := newRegistry(repo)
	ctx := context.Background()

	if err := svc.Deactivate(ctx, "6512bd43d9caa6e02c990b0a"); err != nil {
		t.Fatalf("first deactivate failed: %v", err)
	}
	if err := svc.Deactivate(ctx, "6512bd43d9caa6e02c990b0a"); err != nil {
		t.Fatalf("repeated deactivate must succeed: %v", err)
	}
	if repo.byID["6512bd43d9caa6e02c990b0a"].Active {
		t.Error("workspace should be inactive")
	}
}

func TestWorkspaceGetAllActive_ExcludesDeactivated(t *testing.T) {
	repo := &mockRegistryRepo{byID: map[string]*model.Workspace{
		"6512bd43d9caa6e02c990b0a": {ID: "6512bd43d9caa6e02c990b0a", Name: "Quiet Room", Capacity: 4, Active: true},
		"6512bd43d9caa6e02c990b0b": {ID: "6512bd43d9caa6e02c990b0b", Name: "Retired", Capacity: 2, Active: false},
	}}
	svc := newRegistry(repo)

	active, err := svc.GetAllActive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 1 || active[0].Name != "Quiet Room" {
		t.Errorf("expected only the active workspace, got %d", len(active))
	}

	repo.byID = map[string]*model.Workspace{}
	active, err = svc.GetAllActive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active == nil {
		t.Error("expected empty slice, got nil")
	}
}

func TestWorkspaceDeactivate_NotFound(t *testing.T) {
	svc := newRegistry(&mockRegistryRepo{byID: map[string]*model.Workspace{}})

	err := svc.Deactivate(context.Background(), "6512bd43d9caa6e02c990bff")
	assertCode(t, err, apperrors.CodeNotFound)
}
