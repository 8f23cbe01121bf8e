package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/ukydev/cmms-risk/internal/config"
	"github.com/ukydev/cmms-risk/internal/db"
	"github.com/ukydev/cmms-risk/internal/models"
	"github.com/ukydev/cmms-risk/internal/synth"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

// settings are read from SIM_* variables on top of the shared configuration.
type settings struct {
	Equipment     int
	Days          int
	Seed          int64
	Drop          bool
	AdminUser     string
	AdminPassword string
	// APIURL, when set, makes the simulator log in and trigger a training run.
	APIURL string
}

func loadSettings(getenv func(string) string) settings {
	s := settings{
		Equipment:     cast.ToInt(orDefault(getenv("SIM_EQUIPMENT"), "150")),
		Days:          cast.ToInt(orDefault(getenv("SIM_DAYS"), "540")),
		Seed:          cast.ToInt64(orDefault(getenv("SIM_SEED"), "42")),
		Drop:          cast.ToBool(getenv("SIM_DROP")),
		AdminUser:     orDefault(getenv("SIM_ADMIN_USER"), "admin"),
		AdminPassword: getenv("SIM_ADMIN_PASSWORD"),
		APIURL:        strings.TrimRight(getenv("API_BASE_URL"), "/"),
	}
	if s.Equipment <= 0 {
		s.Equipment = 150
	}
	if s.Days <= 0 {
		s.Days = 540
	}
	return s
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// seedAdmin creates an active admin account unless one with the same username
// exists. It reports whether a user was created.
func seedAdmin(ctx context.Context, users db.UserCollection, username, password string, now time.Time) (bool, error) {
	if password == "" {
		return false, nil
	}
	_, err := users.FindUserByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, db.ErrUserNotFound) {
		return false, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	return true, users.InsertUser(ctx, models.User{
		ID:           primitive.NewObjectID(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func authorizedPost(url, token, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 5 * time.Minute}
	return client.Do(req)
}

func login(apiURL, username, password string) (string, error) {
	data, err := json.Marshal(models.LoginRequest{Username: username, Password: password})
	if err != nil {
		return "", err
	}
	resp, err := authorizedPost(apiURL+"/login", "", "application/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to log in: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed: %s", resp.Status)
	}
	var lr models.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", fmt.Errorf("failed to decode login response: %w", err)
	}
	return lr.Token, nil
}

// triggerTraining asks the API to retrain on the freshly seeded history.
func triggerTraining(apiURL, token string) error {
	resp, err := authorizedPost(apiURL+"/model/train", token, "application/json", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to trigger training: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("training request failed: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	var info struct {
		ID        string  `json:"id"`
		Threshold float64 `json:"threshold"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return fmt.Errorf("failed to decode training response: %w", err)
	}
	log.WithFields(log.Fields{"model_id": info.ID, "threshold": info.Threshold}).Info("Model trained")
	return nil
}

// seed writes generated history and the admin account.
func seed(ctx context.Context, sink synth.Sink, users db.UserCollection, s settings, now time.Time) error {
	h := synth.Generate(synth.Options{Equipment: s.Equipment, Days: s.Days, Now: now, Seed: s.Seed})
	if err := synth.Load(ctx, sink, h); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"equipment":      len(h.Equipment),
		"pm_completions": len(h.PMs),
		"corrective":     len(h.Corrective),
		"parts_requests": len(h.Parts),
	}).Info("Seeded maintenance history")

	created, err := seedAdmin(ctx, users, s.AdminUser, s.AdminPassword, now)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if created {
		log.WithField("username", s.AdminUser).Info("Created admin user")
	}
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	if err := cfg.ConfigureLogger(log.StandardLogger()); err != nil {
		log.WithError(err).Fatal("Invalid log settings")
	}
	s := loadSettings(os.Getenv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := db.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.WithError(err).Warn("Failed to disconnect from MongoDB")
		}
	}()
	database := client.Database(cfg.MongoDB)

	log.WithFields(log.Fields{
		"database":  cfg.MongoDB,
		"equipment": s.Equipment,
		"days":      s.Days,
		"seed":      s.Seed,
	}).Info("Starting CMMS history simulation")

	if s.Drop {
		if err := database.Drop(ctx); err != nil {
			log.WithError(err).Fatal("Failed to drop database")
		}
		log.Warn("Dropped existing database")
	}
	if err := db.EnsureIndexes(ctx, database); err != nil {
		log.WithError(err).Fatal("Failed to create indexes")
	}

	users := &db.MongoUserCollection{Collection: database.Collection(db.UsersCollection)}
	if err := seed(ctx, db.NewStore(database), users, s, time.Now().UTC()); err != nil {
		log.WithError(err).Fatal("Failed to seed history")
	}

	if s.APIURL == "" {
		return
	}
	if s.AdminPassword == "" {
		log.Warn("API_BASE_URL set without SIM_ADMIN_PASSWORD; skipping training")
		return
	}
	token, err := login(s.APIURL, s.AdminUser, s.AdminPassword)
	if err != nil {
		log.WithError(err).Fatal("Failed to authenticate against the API")
	}
	if err := triggerTraining(s.APIURL, token); err != nil {
		log.WithError(err).Fatal("Training failed")
	}
}
