package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/expeditorhq/expeditor/core/dispatch"
	"github.com/expeditorhq/expeditor/core/model"
	coremqtt "github.com/expeditorhq/expeditor/core/mqtt"
	"github.com/expeditorhq/expeditor/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker          string          `json:"broker"`
	ClientID        string          `json:"client_id"`
	Username        string          `json:"username"`
	Password        string          `json:"password"`
	OrderTopic      string          `json:"order_topic"`
	CancelTopic     string          `json:"cancel_topic"`
	FeedTopicPrefix string          `json:"feed_topic_prefix"`
	UseTLS          bool            `json:"use_tls"`
	ClientCert      string          `json:"client_cert"`
	ClientKey       string          `json:"client_key"`
	CABundle        string          `json:"ca_bundle"`
	AuthMethod      string          `json:"auth_method"`
	QoS             map[string]byte `json:"qos"`
	LWTTopic        string          `json:"lwt_topic"`
	LWTPayload      string          `json:"lwt_payload"`
	LWTQoS          byte            `json:"lwt_qos"`
	LWTRetain       bool            `json:"lwt_retain"`
	MaxRetries      int             `json:"max_retries"`
	BackoffMS       int             `json:"backoff_ms"`
	TLSConfig       *tls.Config     `json:"-"`
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// PahoClient subscribes to order intake topics and publishes station feeds
// using Eclipse Paho. It implements coremqtt.FeedPublisher.
type PahoClient struct {
	cli        pahoClient
	handlers   coremqtt.Handlers
	orderTopic string
	cancelTop  string
	feedPrefix string
	qos        map[string]byte

	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the MQTT broker and subscribes to the order and
// cancellation topics.
func NewPahoClient(cfg Config, handlers coremqtt.Handlers) (*PahoClient, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_client")
	feedPrefix := cfg.FeedTopicPrefix
	if feedPrefix == "" {
		feedPrefix = "kitchen/feed"
	}
	pc := &PahoClient{
		handlers:   handlers,
		orderTopic: cfg.OrderTopic,
		cancelTop:  cfg.CancelTopic,
		feedPrefix: feedPrefix,
		qos:        cfg.QoS,
		logger:     log,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		if pc.orderTopic != "" {
			if token := c.Subscribe(pc.orderTopic, pc.qosFor("orders"), pc.onOrder); token.Wait() && token.Error() != nil {
				log.Errorf("subscribe %s: %v", pc.orderTopic, token.Error())
			}
		}
		if pc.cancelTop != "" {
			if token := c.Subscribe(pc.cancelTop, pc.qosFor("cancel"), pc.onCancel); token.Wait() && token.Error() != nil {
				log.Errorf("subscribe %s: %v", pc.cancelTop, token.Error())
			}
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

func (p *PahoClient) qosFor(key string) byte {
	if q, ok := p.qos[key]; ok {
		return q
	}
	return 0
}

// wireOrder is the intake payload published by the ordering system. Optional
// scoring inputs stay nil when absent so rules fall back to their midpoint.
type wireOrder struct {
	ID                  string     `json:"id"`
	MenuItemID          string     `json:"menu_item_id"`
	Name                string     `json:"name"`
	Category            string     `json:"category"`
	Tags                []string   `json:"tags"`
	Quantity            int        `json:"quantity"`
	Modifiers           []string   `json:"modifiers"`
	SpecialInstructions string     `json:"special_instructions"`
	ReceivedAt          time.Time  `json:"received_at"`
	PrepMinutes         float64    `json:"prep_minutes"`
	OrderValue          *float64   `json:"order_value"`
	VIP                 *bool      `json:"vip"`
	DeliveryDeadline    *time.Time `json:"delivery_deadline"`
	PrepComplexity      *float64   `json:"prep_complexity"`
	LoyaltyTier         *int       `json:"loyalty_tier"`
	PartySize           *int       `json:"party_size"`
	SpecialNeeds        []string   `json:"special_needs"`
	Rush                bool       `json:"rush"`
}

func (w wireOrder) toModel() model.OrderItem {
	item := model.OrderItem{
		ID:                  w.ID,
		MenuItemID:          w.MenuItemID,
		Name:                w.Name,
		Category:            w.Category,
		Tags:                w.Tags,
		Quantity:            w.Quantity,
		Modifiers:           w.Modifiers,
		SpecialInstructions: w.SpecialInstructions,
		ReceivedAt:          w.ReceivedAt,
		PrepMinutes:         w.PrepMinutes,
		OrderValue:          w.OrderValue,
		VIP:                 w.VIP,
		DeliveryDeadline:    w.DeliveryDeadline,
		PrepComplexity:      w.PrepComplexity,
		LoyaltyTier:         w.LoyaltyTier,
		PartySize:           w.PartySize,
		SpecialNeeds:        w.SpecialNeeds,
		Rush:                w.Rush,
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.ReceivedAt.IsZero() {
		item.ReceivedAt = time.Now()
	}
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	return item
}

func (p *PahoClient) onOrder(_ paho.Client, msg paho.Message) {
	var w wireOrder
	if err := json.Unmarshal(msg.Payload(), &w); err != nil {
		p.logger.Errorf("failed to decode order: %v", err)
		return
	}
	if w.MenuItemID == "" {
		p.logger.Warnf("order payload missing menu_item_id, dropped")
		return
	}
	item := w.toModel()
	p.logger.Debugf("received order item %s (%s)", item.ID, item.MenuItemID)
	if p.handlers.Order != nil {
		p.handlers.Order(item)
	}
}

func (p *PahoClient) onCancel(_ paho.Client, msg paho.Message) {
	var m struct {
		OrderItemID string `json:"order_item_id"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		p.logger.Errorf("failed to decode cancel: %v", err)
		return
	}
	if m.OrderItemID == "" {
		return
	}
	p.logger.Infof("received cancel for %s", m.OrderItemID)
	if p.handlers.Cancel != nil {
		p.handlers.Cancel(m.OrderItemID)
	}
}

// PublishFeed publishes the ordered queue view for one station to the feed
// topic, retrying with exponential backoff on failure.
func (p *PahoClient) PublishFeed(stationID string, views []dispatch.ItemView) error {
	if p.cli == nil || !p.cli.IsConnected() {
		return coremqtt.ErrNotConnected
	}
	payload, err := json.Marshal(struct {
		StationID string              `json:"station_id"`
		Items     []dispatch.ItemView `json:"items"`
		Timestamp int64               `json:"timestamp"`
	}{StationID: stationID, Items: views, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		return err
	}

	topic := fmt.Sprintf("%s/%s", p.feedPrefix, stationID)
	retries := p.maxRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := p.backoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	var publishErr error
	for attempt := 0; attempt <= retries; attempt++ {
		token := p.cli.Publish(topic, p.qosFor("feed"), false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Debugf("published feed for %s (%d items)", stationID, len(views))
			return nil
		}
		p.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		time.Sleep(backoff * time.Duration(1<<attempt))
	}
	return publishErr
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
