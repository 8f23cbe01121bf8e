package db

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/cmms-risk/internal/models"
	"go.mongodb.org/mongo-driver/bson"
)

func userCollection(t *testing.T) *MongoUserCollection {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set, skipping integration test")
	}
	ctx := context.Background()
	client, err := ConnectMongo(ctx, uri)
	if err != nil {
		t.Skipf("failed to connect: %v, skipping integration test", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	collection := client.Database("test_cmms").Collection(UsersCollection)
	require.NoError(t, collection.Drop(ctx))
	return &MongoUserCollection{Collection: collection}
}

func TestMongoUserCollection_InsertAndFind(t *testing.T) {
	users := userCollection(t)
	ctx := context.Background()

	user := models.User{
		Username:     "planner",
		Email:        "planner@example.com",
		PasswordHash: "hashedpassword",
		Role:         models.RoleManager,
	}
	require.NoError(t, users.InsertUser(ctx, user))

	found, err := users.FindUserByUsername(ctx, "planner")
	require.NoError(t, err)
	assert.Equal(t, user.Email, found.Email)
	assert.Equal(t, models.RoleManager, found.Role)
	assert.True(t, found.IsActive)
	assert.NotZero(t, found.CreatedAt)

	_, err = users.FindUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMongoUserCollection_UpdateLastLogin(t *testing.T) {
	users := userCollection(t)
	ctx := context.Background()

	require.NoError(t, users.InsertUser(ctx, models.User{Username: "tech", Role: models.RoleOperator}))
	var inserted models.User
	require.NoError(t, users.Collection.FindOne(ctx, bson.M{"username": "tech"}).Decode(&inserted))

	require.NoError(t, users.UpdateLastLogin(ctx, inserted.ID.Hex()))
	found, err := users.FindUserByUsername(ctx, "tech")
	require.NoError(t, err)
	assert.NotNil(t, found.LastLogin)

	assert.Error(t, users.UpdateLastLogin(ctx, "invalid-id"))
	assert.ErrorIs(t, users.UpdateLastLogin(ctx, "000000000000000000000000"), ErrUserNotFound)
}
