package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/cmms-risk/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestActiveEquipment_FiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.InsertEquipment(ctx,
		models.Equipment{EquipmentNo: "B-2", Status: models.StatusActive},
		models.Equipment{EquipmentNo: "A-1", Status: models.StatusRunToFailure},
		models.Equipment{EquipmentNo: "C-3", Status: models.StatusDeactivated},
	))

	got, err := s.ActiveEquipment(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A-1", got[0].EquipmentNo)
	assert.Equal(t, "B-2", got[1].EquipmentNo)
}

func TestRangeQueriesAreInclusive(t *testing.T) {
	ctx := context.Background()
	s := New()
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertPMCompletions(ctx,
		models.PMCompletion{EquipmentNo: "A-1", CompletionDate: from},
		models.PMCompletion{EquipmentNo: "A-1", CompletionDate: to},
		models.PMCompletion{EquipmentNo: "A-1", CompletionDate: to.Add(time.Second)},
		models.PMCompletion{EquipmentNo: "B-2", CompletionDate: from},
	))
	require.NoError(t, s.InsertPartsRequests(ctx,
		models.PartsRequest{EquipmentNo: "A-1", RequestedDate: from.Add(-time.Second)},
		models.PartsRequest{EquipmentNo: "A-1", RequestedDate: from.Add(time.Hour)},
	))

	pms, err := s.PMCompletions(ctx, "A-1", from, to)
	require.NoError(t, err)
	assert.Len(t, pms, 2)

	parts, err := s.PartsRequests(ctx, "A-1", from, to)
	require.NoError(t, err)
	assert.Len(t, parts, 1)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := New()
	id := primitive.NewObjectID()
	require.NoError(t, s.InsertUser(ctx, models.User{ID: id, Username: "planner", Role: models.RoleManager}))

	u, err := s.FindUserByUsername(ctx, "planner")
	require.NoError(t, err)
	assert.Equal(t, models.RoleManager, u.Role)
	assert.Nil(t, u.LastLogin)

	require.NoError(t, s.UpdateLastLogin(ctx, id.Hex()))
	u, _ = s.FindUserByUsername(ctx, "planner")
	assert.NotNil(t, u.LastLogin)

	_, err = s.FindUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, s.UpdateLastLogin(ctx, primitive.NewObjectID().Hex()), ErrUserNotFound)
}
