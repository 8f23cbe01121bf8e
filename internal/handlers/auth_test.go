package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/cmms-risk/internal/auth"
	"github.com/ukydev/cmms-risk/internal/db"
	"github.com/ukydev/cmms-risk/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MockUserCollection is a mock implementation of UserCollection
type MockUserCollection struct {
	mock.Mock
}

func (m *MockUserCollection) InsertUser(ctx context.Context, user models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserCollection) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) UpdateLastLogin(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func TestAuthHandler_Login(t *testing.T) {
	authService, err := auth.NewService("secret", time.Hour)
	require.NoError(t, err)
	hash, err := authService.HashPassword("password123")
	require.NoError(t, err)

	active := &models.User{ID: primitive.NewObjectID(), Username: "planner", PasswordHash: hash, Role: models.RoleManager, IsActive: true}
	inactive := &models.User{ID: primitive.NewObjectID(), Username: "former", PasswordHash: hash, Role: models.RoleViewer}

	tests := []struct {
		name       string
		body       string
		setup      func(m *MockUserCollection)
		wantStatus int
	}{
		{
			name: "successful login",
			body: `{"username":"planner","password":"password123"}`,
			setup: func(m *MockUserCollection) {
				m.On("FindUserByUsername", mock.Anything, "planner").Return(active, nil)
				m.On("UpdateLastLogin", mock.Anything, active.ID.Hex()).Return(nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "last login update failure does not fail login",
			body: `{"username":"planner","password":"password123"}`,
			setup: func(m *MockUserCollection) {
				m.On("FindUserByUsername", mock.Anything, "planner").Return(active, nil)
				m.On("UpdateLastLogin", mock.Anything, active.ID.Hex()).Return(errors.New("write conflict"))
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "invalid json",
			body:       `{bad json`,
			setup:      func(*MockUserCollection) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing password",
			body:       `{"username":"planner"}`,
			setup:      func(*MockUserCollection) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "unknown user",
			body: `{"username":"ghost","password":"password123"}`,
			setup: func(m *MockUserCollection) {
				m.On("FindUserByUsername", mock.Anything, "ghost").Return(nil, db.ErrUserNotFound)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "datastore error",
			body: `{"username":"planner","password":"password123"}`,
			setup: func(m *MockUserCollection) {
				m.On("FindUserByUsername", mock.Anything, "planner").Return(nil, errors.New("server selection timeout"))
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "wrong password",
			body: `{"username":"planner","password":"nope"}`,
			setup: func(m *MockUserCollection) {
				m.On("FindUserByUsername", mock.Anything, "planner").Return(active, nil)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "inactive user",
			body: `{"username":"former","password":"password123"}`,
			setup: func(m *MockUserCollection) {
				m.On("FindUserByUsername", mock.Anything, "former").Return(inactive, nil)
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := &MockUserCollection{}
			tt.setup(users)
			l, _ := test.NewNullLogger()
			h := NewAuthHandler(authService, users, l)

			req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			h.Login(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			users.AssertExpectations(t)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp models.LoginResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.NotEmpty(t, resp.Token)
			assert.Equal(t, "planner", resp.User.Username)
			assert.True(t, resp.ExpiresAt.After(time.Now()))

			claims, err := authService.ValidateToken(resp.Token)
			require.NoError(t, err)
			assert.Equal(t, models.RoleManager, claims.Role)
		})
	}
}

func TestLoginResponse_OmitsPasswordHash(t *testing.T) {
	authService, err := auth.NewService("secret", time.Hour)
	require.NoError(t, err)
	hash, err := authService.HashPassword("password123")
	require.NoError(t, err)

	users := &MockUserCollection{}
	u := &models.User{ID: primitive.NewObjectID(), Username: "admin", PasswordHash: hash, Role: models.RoleAdmin, IsActive: true}
	users.On("FindUserByUsername", mock.Anything, "admin").Return(u, nil)
	users.On("UpdateLastLogin", mock.Anything, mock.Anything).Return(nil)

	w := httptest.NewRecorder()
	NewAuthHandler(authService, users, nil).Login(w, httptest.NewRequest(http.MethodPost, "/api/login",
		bytes.NewBufferString(`{"username":"admin","password":"password123"}`)))

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), hash)
	assert.NotContains(t, w.Body.String(), "password_hash")
}
