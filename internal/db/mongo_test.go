package db

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/cmms-risk/internal/features"
	"github.com/ukydev/cmms-risk/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ features.Source = (*Store)(nil)

// fakeCollection records queries and round-trips stored docs through BSON.
type fakeCollection struct {
	docs    []interface{}
	filter  interface{}
	sort    interface{}
	findErr error
}

func (c *fakeCollection) Find(_ context.Context, filter interface{}, opts ...*options.FindOptions) (Cursor, error) {
	c.filter = filter
	if len(opts) > 0 && opts[0] != nil {
		c.sort = opts[0].Sort
	}
	if c.findErr != nil {
		return nil, c.findErr
	}
	return &fakeCursor{docs: c.docs}, nil
}

func (c *fakeCollection) InsertMany(_ context.Context, docs []interface{}) error {
	c.docs = append(c.docs, docs...)
	return nil
}

type fakeCursor struct {
	docs   []interface{}
	closed bool
}

func (c *fakeCursor) All(_ context.Context, out interface{}) error {
	slice := reflect.ValueOf(out).Elem()
	for _, d := range c.docs {
		raw, err := bson.Marshal(d)
		if err != nil {
			return err
		}
		elem := reflect.New(slice.Type().Elem())
		if err := bson.Unmarshal(raw, elem.Interface()); err != nil {
			return err
		}
		slice.Set(reflect.Append(slice, elem.Elem()))
	}
	return nil
}

func (c *fakeCursor) Close(context.Context) error {
	c.closed = true
	return nil
}

func fakeStore() (*Store, map[string]*fakeCollection) {
	cols := map[string]*fakeCollection{
		EquipmentCollection:  {},
		PMCollection:         {},
		CorrectiveCollection: {},
		PartsCollection:      {},
	}
	return &Store{
		Equipment:  cols[EquipmentCollection],
		PMs:        cols[PMCollection],
		Corrective: cols[CorrectiveCollection],
		Parts:      cols[PartsCollection],
	}, cols
}

func TestStore_ActiveEquipmentFilter(t *testing.T) {
	ctx := context.Background()
	s, cols := fakeStore()
	require.NoError(t, s.InsertEquipment(ctx, models.Equipment{
		EquipmentNo: "BFM-1", Location: "Plant", Status: models.StatusActive, MonthlyPM: true, CreatedDate: "2020-01-01",
	}))

	got, err := s.ActiveEquipment(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "BFM-1", got[0].EquipmentNo)
	assert.True(t, got[0].MonthlyPM)

	filter := cols[EquipmentCollection].filter.(bson.M)
	assert.Equal(t, bson.M{"$in": models.EligibleStatuses()}, filter["status"])
	assert.Equal(t, bson.D{{Key: "bfm_equipment_no", Value: 1}}, cols[EquipmentCollection].sort)
}

func TestStore_HistoryQueries(t *testing.T) {
	ctx := context.Background()
	s, cols := fakeStore()
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 30, 23, 59, 59, 0, time.UTC)

	require.NoError(t, s.InsertPMCompletions(ctx, models.PMCompletion{
		EquipmentNo: "BFM-1", PMType: "Monthly", CompletionDate: from.AddDate(0, 1, 0), LaborHours: 1, LaborMinutes: 30,
	}))
	require.NoError(t, s.InsertCorrectiveEvents(ctx, models.CorrectiveEvent{
		CMNumber: "CM-1", EquipmentNo: "BFM-1", Priority: models.PriorityP2, Status: models.CMStatusClosed, ReportedDate: from.AddDate(0, 2, 0),
	}))
	require.NoError(t, s.InsertPartsRequests(ctx, models.PartsRequest{
		EquipmentNo: "BFM-1", CMNumber: "CM-1", PartNumber: "BRG-6205", Quantity: 2, RequestedDate: from.AddDate(0, 2, 0),
	}))

	pms, err := s.PMCompletions(ctx, "BFM-1", from, to)
	require.NoError(t, err)
	require.Len(t, pms, 1)
	assert.Equal(t, 1.5, pms[0].Hours())

	cms, err := s.CorrectiveEvents(ctx, "BFM-1", from, to)
	require.NoError(t, err)
	require.Len(t, cms, 1)
	assert.Equal(t, 3.0, cms[0].Severity())

	parts, err := s.PartsRequests(ctx, "BFM-1", from, to)
	require.NoError(t, err)
	require.Len(t, parts, 1)

	tests := []struct {
		collection string
		field      string
	}{
		{PMCollection, "completion_date"},
		{CorrectiveCollection, "reported_date"},
		{PartsCollection, "requested_date"},
	}
	for _, tt := range tests {
		t.Run(tt.collection, func(t *testing.T) {
			filter := cols[tt.collection].filter.(bson.M)
			assert.Equal(t, "BFM-1", filter["bfm_equipment_no"])
			assert.Equal(t, bson.M{"$gte": from, "$lte": to}, filter[tt.field])
			assert.Equal(t, bson.D{{Key: tt.field, Value: 1}}, cols[tt.collection].sort)
		})
	}
}

func TestStore_FindErrorIsWrapped(t *testing.T) {
	s, cols := fakeStore()
	boom := errors.New("connection reset")
	cols[CorrectiveCollection].findErr = boom

	_, err := s.CorrectiveEvents(context.Background(), "BFM-9", time.Now(), time.Now())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "BFM-9")
}

func TestMongoCollection_NilCollection(t *testing.T) {
	c := &MongoCollection{}
	_, err := c.Find(context.Background(), bson.M{})
	assert.Error(t, err)
	assert.Error(t, c.InsertMany(context.Background(), []interface{}{bson.M{}}))
}

func TestConnectMongo_BadURI(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := ConnectMongo(ctx, "mongodb://bad:uri")
	assert.Error(t, err)
	assert.Nil(t, client)
}

// Integration test (requires running MongoDB)
func TestStore_Integration(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set, skipping integration test")
	}
	ctx := context.Background()
	client, err := ConnectMongo(ctx, uri)
	if err != nil {
		t.Skipf("failed to connect: %v, skipping integration test", err)
	}
	defer client.Disconnect(ctx)

	database := client.Database("test_cmms")
	require.NoError(t, database.Drop(ctx))
	require.NoError(t, EnsureIndexes(ctx, database))
	s := NewStore(database)

	require.NoError(t, s.InsertEquipment(ctx,
		models.Equipment{EquipmentNo: "B", Status: models.StatusRunToFailure},
		models.Equipment{EquipmentNo: "A", Status: models.StatusActive},
		models.Equipment{EquipmentNo: "C", Status: models.StatusDeactivated},
	))
	eq, err := s.ActiveEquipment(ctx)
	require.NoError(t, err)
	require.Len(t, eq, 2)
	assert.Equal(t, "A", eq[0].EquipmentNo)
	assert.Equal(t, "B", eq[1].EquipmentNo)

	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertPMCompletions(ctx,
		models.PMCompletion{EquipmentNo: "A", CompletionDate: at},
		models.PMCompletion{EquipmentNo: "A", CompletionDate: at.AddDate(1, 0, 0)},
	))
	pms, err := s.PMCompletions(ctx, "A", at.AddDate(0, -1, 0), at.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Len(t, pms, 1)
}
