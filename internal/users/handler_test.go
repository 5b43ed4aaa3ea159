package users

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cpd-events/backoffice/internal/models"
	"github.com/cpd-events/backoffice/pkg/utils"
)

type mockStore struct{ mock.Mock }

func (m *mockStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockStore) List(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]models.User)
	return list, args.Error(1)
}

func (m *mockStore) Create(ctx context.Context, u *models.User, roleIDs []uuid.UUID) error {
	return m.Called(ctx, u, roleIDs).Error(0)
}

func (m *mockStore) Update(ctx context.Context, u *models.User, roleIDs *[]uuid.UUID) error {
	return m.Called(ctx, u, roleIDs).Error(0)
}

func (m *mockStore) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

type mockRoles struct{ mock.Mock }

func (m *mockRoles) UserRoles(ctx context.Context, userID uuid.UUID) ([]models.Role, error) {
	args := m.Called(ctx, userID)
	roles, _ := args.Get(0).([]models.Role)
	return roles, args.Error(1)
}

func (m *mockRoles) SyncUserRoles(ctx context.Context, userID uuid.UUID, roleIDs []uuid.UUID) error {
	return m.Called(ctx, userID, roleIDs).Error(0)
}

func (m *mockRoles) AssignRole(ctx context.Context, userID, roleID uuid.UUID) error {
	return m.Called(ctx, userID, roleID).Error(0)
}

func (m *mockRoles) RemoveRole(ctx context.Context, userID, roleID uuid.UUID) error {
	return m.Called(ctx, userID, roleID).Error(0)
}

func (m *mockRoles) InvalidateUsers(ctx context.Context, userIDs ...uuid.UUID) {
	m.Called(ctx, userIDs)
}

func setupRouter(store *mockStore, roles *mockRoles) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(store, roles, zap.NewNop())
	r := gin.New()
	g := r.Group("/users")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.PUT("/:id/roles", h.SyncRoles)
	g.POST("/:id/roles/:roleId", h.AssignRole)
	g.DELETE("/:id/roles/:roleId", h.RemoveRole)
	return r
}

func send(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreate_RandomPasswordAndRoles(t *testing.T) {
	store, roles := new(mockStore), new(mockRoles)
	id := uuid.New()
	roleID := uuid.New()

	var saved *models.User
	store.On("Create", mock.Anything, mock.AnythingOfType("*models.User"), []uuid.UUID{roleID}).Run(func(args mock.Arguments) {
		saved = args.Get(1).(*models.User)
		saved.ID = id
	}).Return(nil)
	store.On("GetByID", mock.Anything, id).Return(&models.User{ID: id, Name: "Ann", Email: "ann@example.com"}, nil)
	roles.On("UserRoles", mock.Anything, id).Return([]models.Role{{ID: roleID, Slug: "editor"}}, nil)

	w := send(setupRouter(store, roles), http.MethodPost, "/users", gin.H{
		"name": " Ann ", "email": "Ann@Example.com", "role_ids": []uuid.UUID{roleID},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, saved)
	assert.Equal(t, "Ann", saved.Name)
	assert.Equal(t, "ann@example.com", saved.Email)
	assert.NotEmpty(t, saved.PasswordHash)
	assert.NotContains(t, w.Body.String(), "password")
	assert.Contains(t, w.Body.String(), `"slug":"editor"`)
	store.AssertExpectations(t)
	roles.AssertExpectations(t)
	roles.AssertNotCalled(t, "SyncUserRoles", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreate_GivenPasswordIsHashed(t *testing.T) {
	store, roles := new(mockStore), new(mockRoles)
	id := uuid.New()
	var saved *models.User
	store.On("Create", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(1).(*models.User)
		saved.ID = id
	}).Return(nil)
	store.On("GetByID", mock.Anything, id).Return(&models.User{ID: id}, nil)
	roles.On("UserRoles", mock.Anything, id).Return(nil, nil)

	w := send(setupRouter(store, roles), http.MethodPost, "/users", gin.H{
		"name": "Bo", "email": "bo@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, utils.CheckPassword("password123", saved.PasswordHash))
}

func TestCreate_Validation(t *testing.T) {
	store, roles := new(mockStore), new(mockRoles)
	r := setupRouter(store, roles)

	assert.Equal(t, http.StatusBadRequest, send(r, http.MethodPost, "/users", gin.H{"name": "x", "email": "not-an-email"}).Code)
	assert.Equal(t, http.StatusBadRequest, send(r, http.MethodPost, "/users", gin.H{"email": "a@b.co"}).Code)
	assert.Equal(t, http.StatusBadRequest, send(r, http.MethodPost, "/users", gin.H{"name": "x", "email": "a@b.co", "password": "short"}).Code)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreate_EmailTaken(t *testing.T) {
	store, roles := new(mockStore), new(mockRoles)
	store.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(ErrEmailTaken)

	w := send(setupRouter(store, roles), http.MethodPost, "/users", gin.H{"name": "x", "email": "a@b.co"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreate_UnknownRoleIsRejectedInOneWrite(t *testing.T) {
	store, roles := new(mockStore), new(mockRoles)
	roleID := uuid.New()
	store.On("Create", mock.Anything, mock.Anything, []uuid.UUID{roleID}).Return(ErrUnknownRole)

	w := send(setupRouter(store, roles), http.MethodPost, "/users", gin.H{
		"name": "x", "email": "a@b.co", "role_ids": []uuid.UUID{roleID},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown role id")
	store.AssertNumberOfCalls(t, "Create", 1)
	store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	roles.AssertNotCalled(t, "SyncUserRoles", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdate_PartialFields(t *testing.T) {
	store, roles := new(mockStore), new(mockRoles)
	id := uuid.New()
	existing := &models.User{ID: id, Name: "Old", Email: "old@example.com", PasswordHash: "hash"}
	store.On("GetByID", mock.Anything, id).Return(existing, nil)
	store.On("Update", mock.Anything, mock.MatchedBy(func(u *models.User) bool {
		return u.Name == "New" && u.Email == "old@example.com" && u.PasswordHash == "hash"
	}), (*[]uuid.UUID)(nil)).Return(nil)
	roles.On("UserRoles", mock.Anything, id).Return(nil, nil)

	w := send(setupRouter(store, roles), http.MethodPatch, "/users/"+id.String(), gin.H{"name": "New"})
	require.Equal(t, http.StatusOK, w.Code)
	store.AssertExpectations(t)
	roles.AssertNotCalled(t, "InvalidateUsers", mock.Anything, mock.Anything)
}

func TestUpdate_SyncsRolesWhenGiven(t *testing.T) {
	store, roles := new(mockStore), new(mockRoles)
	id := uuid.New()
	store.On("GetByID", mock.Anything, id).Return(&models.User{ID: id, Name: "A", Email: "a@b.co"}, nil)
	store.On("Update", mock.Anything, mock.Anything, mock.MatchedBy(func(ids *[]uuid.UUID) bool {
		return ids != nil && len(*ids) == 0
	})).Return(nil)
	roles.On("InvalidateUsers", mock.Anything, []uuid.UUID{id}).Return()
	roles.On("UserRoles", mock.Anything, id).Return(nil, nil)

	w := send(setupRouter(store, roles), http.MethodPatch, "/users/"+id.String(), gin.H{"role_ids": []uuid.UUID{}})
	require.Equal(t, http.StatusOK, w.Code)
	store.AssertExpectations(t)
	roles.AssertExpectations(t)
}

func TestUpdate_UnknownRoleLeavesUserUnchanged(t *testing.T) {
	store, roles := new(mockStore), new(mockRoles)
	id := uuid.New()
	store.On("GetByID", mock.Anything, id).Return(&models.User{ID: id, Name: "A", Email: "a@b.co"}, nil)
	store.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(ErrUnknownRole)

	w := send(setupRouter(store, roles), http.MethodPatch, "/users/"+id.String(), gin.H{
		"name": "B", "role_ids": []uuid.UUID{uuid.New()},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	store.AssertNumberOfCalls(t, "Update", 1)
	roles.AssertNotCalled(t, "InvalidateUsers", mock.Anything, mock.Anything)
	roles.AssertNotCalled(t, "SyncUserRoles", mock.Anything, mock.Anything, mock.Anything)
}

func TestDelete(t *testing.T) {
	store, roles := new(mockStore), new(mockRoles)
	id := uuid.New()
	missing := uuid.New()
	store.On("Delete", mock.Anything, id).Return(nil)
	store.On("Delete", mock.Anything, missing).Return(ErrNotFound)
	roles.On("InvalidateUsers", mock.Anything, []uuid.UUID{id}).Return()
	r := setupRouter(store, roles)

	assert.Equal(t, http.StatusNoContent, send(r, http.MethodDelete, "/users/"+id.String(), nil).Code)
	assert.Equal(t, http.StatusNotFound, send(r, http.MethodDelete, "/users/"+missing.String(), nil).Code)
	assert.Equal(t, http.StatusBadRequest, send(r, http.MethodDelete, "/users/nope", nil).Code)
	roles.AssertNumberOfCalls(t, "InvalidateUsers", 1)
}

func TestAssignAndRemoveRole(t *testing.T) {
	store, roles := new(mockStore), new(mockRoles)
	id, roleID := uuid.New(), uuid.New()
	store.On("GetByID", mock.Anything, id).Return(&models.User{ID: id}, nil)
	roles.On("AssignRole", mock.Anything, id, roleID).Return(nil)
	roles.On("RemoveRole", mock.Anything, id, roleID).Return(nil)
	r := setupRouter(store, roles)

	path := "/users/" + id.String() + "/roles/" + roleID.String()
	assert.Equal(t, http.StatusNoContent, send(r, http.MethodPost, path, nil).Code)
	assert.Equal(t, http.StatusNoContent, send(r, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusBadRequest, send(r, http.MethodPost, "/users/"+id.String()+"/roles/x", nil).Code)
	roles.AssertExpectations(t)
}

func TestGet_NotFound(t *testing.T) {
	store, roles := new(mockStore), new(mockRoles)
	id := uuid.New()
	store.On("GetByID", mock.Anything, id).Return(nil, ErrNotFound)

	w := send(setupRouter(store, roles), http.MethodGet, "/users/"+id.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
