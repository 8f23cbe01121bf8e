// Package notify publishes critical risk alerts to an MQTT broker.
package notify

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/cmms-risk/internal/predictor"
)

// Config holds broker connection settings.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// Topic may contain {equipment_no}, replaced per alert.
	Topic string
}

// Publisher is the part of an MQTT client the alerter uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Alert is the JSON payload published for one equipment.
type Alert struct {
	EquipmentNo    string           `json:"equipment_no"`
	Description    string           `json:"description"`
	Location       string           `json:"location"`
	Probability    float64          `json:"failure_probability"`
	Bucket         predictor.Bucket `json:"risk_level"`
	Recommendation string           `json:"recommendation"`
	ModelID        string           `json:"model_id"`
	GeneratedAt    time.Time        `json:"generated_at"`
}

// Alerter publishes alerts for Critical predictions.
type Alerter struct {
	client  Publisher
	topic   string
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewAlerter wraps an already connected client.
func NewAlerter(client Publisher, topic string, log logrus.FieldLogger) *Alerter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Alerter{client: client, topic: topic, timeout: 10 * time.Second, log: log}
}

// Connect dials the broker described by cfg.
func Connect(cfg Config) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, token.Error())
	}
	return client, nil
}

// PublishCritical sends one alert per Critical result in batch and returns how
// many were delivered. Failed publishes are combined into the returned error.
func (a *Alerter) PublishCritical(batch predictor.Batch) (int, error) {
	var merr *multierror.Error
	sent := 0
	for _, r := range batch.Results {
		if r.Bucket != predictor.BucketCritical {
			continue
		}
		alert := Alert{
			EquipmentNo:    r.EquipmentNo,
			Description:    r.Description,
			Location:       r.Location,
			Probability:    r.Probability,
			Bucket:         r.Bucket,
			Recommendation: r.Recommendation,
			ModelID:        batch.ModelID,
			GeneratedAt:    batch.GeneratedAt,
		}
		if err := a.publish(alert); err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		sent++
	}
	a.log.WithFields(logrus.Fields{"sent": sent, "topic": a.topic}).Info("Published critical risk alerts")
	return sent, merr.ErrorOrNil()
}

func (a *Alerter) publish(alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert for %s: %w", alert.EquipmentNo, err)
	}
	topic := FormatTopic(a.topic, alert.EquipmentNo)
	token := a.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(a.timeout) {
		return fmt.Errorf("publish to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// FormatTopic substitutes the {equipment_no} placeholder. MQTT wildcard and
// separator characters in the equipment number are replaced with '_'.
func FormatTopic(pattern, equipmentNo string) string {
	safe := strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(equipmentNo)
	return strings.ReplaceAll(pattern, "{equipment_no}", safe)
}
