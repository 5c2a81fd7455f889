package assignments

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kulupnet/kulupnet/internal/identity"
	"github.com/kulupnet/kulupnet/internal/rbac"
	"github.com/kulupnet/kulupnet/internal/shared"
)

type mockRepository struct {
	pending map[string]PendingAssignment // key: "userID:role"
	emails  map[int64]string

	requestErr error
	approveErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		pending: make(map[string]PendingAssignment),
		emails:  make(map[int64]string),
	}
}

func key(userID int64, role rbac.Role) string {
	return strconv.FormatInt(userID, 10) + ":" + string(role)
}

func (m *mockRepository) ListPending(ctx context.Context) ([]PendingAssignment, error) {
	var out []PendingAssignment
	for _, p := range m.pending {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockRepository) Request(ctx context.Context, userID int64, role rbac.Role) error {
	if m.requestErr != nil {
		return m.requestErr
	}
	if _, exists := m.pending[key(userID, role)]; exists {
		return ErrAlreadyAssigned
	}
	m.pending[key(userID, role)] = PendingAssignment{
		UserID:    userID,
		Email:     m.emails[userID],
		Role:      role,
		CreatedAt: time.Now(),
	}
	return nil
}

func (m *mockRepository) Approve(ctx context.Context, userID int64, role rbac.Role) error {
	if m.approveErr != nil {
		return m.approveErr
	}
	if _, exists := m.pending[key(userID, role)]; !exists {
		return shared.ErrNotFound
	}
	delete(m.pending, key(userID, role))
	return nil
}

func (m *mockRepository) Revoke(ctx context.Context, userID int64, role rbac.Role) error {
	if _, exists := m.pending[key(userID, role)]; !exists {
		return shared.ErrNotFound
	}
	delete(m.pending, key(userID, role))
	return nil
}

func (m *mockRepository) EmailOf(ctx context.Context, userID int64) (string, error) {
	email, ok := m.emails[userID]
	if !ok {
		return "", shared.ErrNotFound
	}
	return email, nil
}

type mockNotifier struct {
	emails []string
	labels []string
}

func (m *mockNotifier) NotifyRoleApproved(ctx context.Context, email, roleLabel string) error {
	m.emails = append(m.emails, email)
	m.labels = append(m.labels, roleLabel)
	return nil
}

type mockInvalidator struct {
	userIDs []int64
}

func (m *mockInvalidator) Invalidate(userID int64) {
	m.userIDs = append(m.userIDs, userID)
}

func adminActor() *rbac.ActorSession {
	return &rbac.ActorSession{
		Identity: &identity.Identity{ID: 1, Email: "baskan@kulupnet.local", EmailConfirmed: true},
		Roles:    []rbac.Role{rbac.RolePresident},
	}
}

func memberActor(id int64) *rbac.ActorSession {
	return &rbac.ActorSession{
		Identity: &identity.Identity{ID: id, Email: "uye@kulupnet.local", EmailConfirmed: true},
		Roles:    []rbac.Role{"uye"},
	}
}

func TestRequestRequiresAuthentication(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil, nil, nil)

	err := svc.Request(context.Background(), &rbac.ActorSession{}, "editor")
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.Empty(t, repo.pending)
}

func TestRequestDuplicate(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil, nil, nil)
	actor := memberActor(7)

	require.NoError(t, svc.Request(context.Background(), actor, "Editor"))
	err := svc.Request(context.Background(), actor, "editor")
	assert.ErrorIs(t, err, ErrAlreadyAssigned)
}

func TestListPendingRequiresAdmin(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil, nil, nil)

	_, err := svc.ListPending(context.Background(), memberActor(7))
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.ListPending(context.Background(), adminActor())
	assert.NoError(t, err)
}

func TestApproveInvalidatesAndNotifies(t *testing.T) {
	repo := newMockRepository()
	repo.emails[7] = "uye@kulupnet.local"
	require.NoError(t, repo.Request(context.Background(), 7, "dergi_ekibi"))

	notifier := &mockNotifier{}
	invalidator := &mockInvalidator{}
	svc := NewService(repo, invalidator, notifier, nil, nil)

	err := svc.Approve(context.Background(), adminActor(), 7, "dergi_ekibi")
	require.NoError(t, err)

	assert.Equal(t, []int64{7}, invalidator.userIDs, "approval must drop the cached role lookup")
	require.Len(t, notifier.emails, 1)
	assert.Equal(t, "uye@kulupnet.local", notifier.emails[0])
	assert.Equal(t, "Dergi Ekibi", notifier.labels[0], "notification carries the display label")
}

func TestApproveRequiresAdmin(t *testing.T) {
	repo := newMockRepository()
	require.NoError(t, repo.Request(context.Background(), 7, "editor"))
	invalidator := &mockInvalidator{}
	svc := NewService(repo, invalidator, nil, nil, nil)

	err := svc.Approve(context.Background(), memberActor(7), 7, "editor")
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.Empty(t, invalidator.userIDs)
	assert.Len(t, repo.pending, 1, "rejected decision must not touch the repository")
}

func TestApproveMissingAssignment(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil, nil, nil)

	err := svc.Approve(context.Background(), adminActor(), 7, "editor")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRevokeInvalidates(t *testing.T) {
	repo := newMockRepository()
	require.NoError(t, repo.Request(context.Background(), 7, "editor"))
	invalidator := &mockInvalidator{}
	svc := NewService(repo, invalidator, nil, nil, nil)

	require.NoError(t, svc.Revoke(context.Background(), adminActor(), 7, "editor"))
	assert.Equal(t, []int64{7}, invalidator.userIDs)
	assert.Empty(t, repo.pending)
}
