package db

import (
	"context"
	"fmt"
	"time"

	"github.com/ukydev/cmms-risk/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names of the CMMS database.
const (
	EquipmentCollection  = "equipment"
	PMCollection         = "pm_completions"
	CorrectiveCollection = "corrective_maintenance"
	PartsCollection      = "cm_parts_requests"
	UsersCollection      = "users"
)

// ConnectMongo connects to MongoDB at uri and pings it.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// Store reads maintenance history from the CMMS collections.
type Store struct {
	Equipment  Collection
	PMs        Collection
	Corrective Collection
	Parts      Collection
}

// NewStore returns a Store over the standard collections of database.
func NewStore(database *mongo.Database) *Store {
	return &Store{
		Equipment:  &MongoCollection{Collection: database.Collection(EquipmentCollection)},
		PMs:        &MongoCollection{Collection: database.Collection(PMCollection)},
		Corrective: &MongoCollection{Collection: database.Collection(CorrectiveCollection)},
		Parts:      &MongoCollection{Collection: database.Collection(PartsCollection)},
	}
}

// EnsureIndexes creates the lookup indexes used by the history queries.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	byDate := map[string]string{
		PMCollection:         "completion_date",
		CorrectiveCollection: "reported_date",
		PartsCollection:      "requested_date",
	}
	for name, field := range byDate {
		_, err := database.Collection(name).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "bfm_equipment_no", Value: 1}, {Key: field, Value: 1}},
		})
		if err != nil {
			return fmt.Errorf("index %s: %w", name, err)
		}
	}
	_, err := database.Collection(EquipmentCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "bfm_equipment_no", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("index %s: %w", EquipmentCollection, err)
	}
	return nil
}

// ActiveEquipment lists equipment eligible for prediction ordered by number.
func (s *Store) ActiveEquipment(ctx context.Context) ([]models.Equipment, error) {
	filter := bson.M{"status": bson.M{"$in": models.EligibleStatuses()}}
	opts := options.Find().SetSort(bson.D{{Key: "bfm_equipment_no", Value: 1}})
	var out []models.Equipment
	if err := findAll(ctx, s.Equipment, filter, opts, &out); err != nil {
		return nil, fmt.Errorf("find equipment: %w", err)
	}
	return out, nil
}

// PMCompletions returns PMs completed in [from, to].
func (s *Store) PMCompletions(ctx context.Context, equipmentNo string, from, to time.Time) ([]models.PMCompletion, error) {
	var out []models.PMCompletion
	if err := findAll(ctx, s.PMs, history(equipmentNo, "completion_date", from, to), byDate("completion_date"), &out); err != nil {
		return nil, fmt.Errorf("find pm completions for %s: %w", equipmentNo, err)
	}
	return out, nil
}

// CorrectiveEvents returns corrective work orders reported in [from, to].
func (s *Store) CorrectiveEvents(ctx context.Context, equipmentNo string, from, to time.Time) ([]models.CorrectiveEvent, error) {
	var out []models.CorrectiveEvent
	if err := findAll(ctx, s.Corrective, history(equipmentNo, "reported_date", from, to), byDate("reported_date"), &out); err != nil {
		return nil, fmt.Errorf("find corrective events for %s: %w", equipmentNo, err)
	}
	return out, nil
}

// PartsRequests returns parts requests raised in [from, to].
func (s *Store) PartsRequests(ctx context.Context, equipmentNo string, from, to time.Time) ([]models.PartsRequest, error) {
	var out []models.PartsRequest
	if err := findAll(ctx, s.Parts, history(equipmentNo, "requested_date", from, to), byDate("requested_date"), &out); err != nil {
		return nil, fmt.Errorf("find parts requests for %s: %w", equipmentNo, err)
	}
	return out, nil
}

// InsertEquipment inserts equipment records.
func (s *Store) InsertEquipment(ctx context.Context, eq ...models.Equipment) error {
	return s.Equipment.InsertMany(ctx, docs(eq))
}

// InsertPMCompletions inserts PM completion records.
func (s *Store) InsertPMCompletions(ctx context.Context, pms ...models.PMCompletion) error {
	return s.PMs.InsertMany(ctx, docs(pms))
}

// InsertCorrectiveEvents inserts corrective work orders.
func (s *Store) InsertCorrectiveEvents(ctx context.Context, cms ...models.CorrectiveEvent) error {
	return s.Corrective.InsertMany(ctx, docs(cms))
}

// InsertPartsRequests inserts parts requests.
func (s *Store) InsertPartsRequests(ctx context.Context, parts ...models.PartsRequest) error {
	return s.Parts.InsertMany(ctx, docs(parts))
}

func history(equipmentNo, field string, from, to time.Time) bson.M {
	return bson.M{
		"bfm_equipment_no": equipmentNo,
		field:              bson.M{"$gte": from, "$lte": to},
	}
}

func byDate(field string) *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: field, Value: 1}})
}

func findAll(ctx context.Context, c Collection, filter interface{}, opts *options.FindOptions, out interface{}) error {
	cursor, err := c.Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)
	return cursor.All(ctx, out)
}

func docs[T any](items []T) []interface{} {
	out := make([]interface{}, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out
}
