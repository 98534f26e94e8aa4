package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/denisbrodbeck/machineid"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/squid-float/pkg/config"
	"github.com/ericogr/squid-float/pkg/output"
	"github.com/ericogr/squid-float/pkg/telemetry"
	"github.com/golang/glog"
)

const (
	// defaults
	DefaultServer    = "tcp://localhost:1883"
	DefaultClientID  = "squid-float"
	DefaultTopic     = "squid"
	statusTopicFmt   = "%s/status"
	profileTopicFmt  = "%s/profile/%d"
	machineIDLen     = 12
	disconnectWaitMs = 250
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	stateClassMeasurement  = "measurement"
)

// discoveryEntity describes one Home Assistant sensor fed by the status
// topic.
type discoveryEntity struct {
	objectID    string
	unit        string
	deviceClass string
	template    string
}

var discoveryEntities = []discoveryEntity{
	{objectID: "pressure", unit: "kPa", deviceClass: "pressure", template: "{{ value_json.pressure }}"},
	{objectID: "depth", unit: "m", deviceClass: "distance", template: "{{ value_json.depth }}"},
}

type MQTTOutput struct {
	client mqtt.Client
	topic  string
}

func NewMQTT(cfg config.MQTTConfig) (output.Output, error) {
	cfg = withDefaults(cfg)
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		glog.Warningf("mqtt connection lost: %v", err)
	})
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	glog.Infof("mqtt connected to %s as %s", cfg.Server, cfg.ClientID)
	return newMQTTOutput(client, cfg), nil
}

func newMQTTOutput(client mqtt.Client, cfg config.MQTTConfig) *MQTTOutput {
	m := &MQTTOutput{client: client, topic: cfg.Topic}

	// Publish Home Assistant discovery payloads if requested. The discovery
	// topic takes a %s formatter for the entity (pressure, depth).
	if cfg.DiscoveryTopic != "" {
		for _, e := range discoveryEntities {
			dTopic := cfg.DiscoveryTopic
			if strings.Contains(dTopic, "%s") {
				dTopic = fmt.Sprintf(dTopic, e.objectID)
			} else {
				dTopic = dTopic + "/" + e.objectID
			}
			payload := baseDiscoveryPayload(discoveryName(cfg, e), m.statusTopic(), discoveryUniqueID(cfg, e), e)
			if err := publishJSON(client, dTopic, true, payload); err != nil {
				glog.Errorf("mqtt discovery publish error: %v", err)
			}
		}
	}
	return m
}

func (m *MQTTOutput) statusTopic() string { return fmt.Sprintf(statusTopicFmt, m.topic) }

// PublishStatus publishes the latest reading, retained so a client that
// connects between dives sees where the probe is.
func (m *MQTTOutput) PublishStatus(s telemetry.Sample) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return m.PublishRaw(m.statusTopic(), b, true)
}

// PublishProfile publishes a completed dive on its own retained topic.
func (m *MQTTOutput) PublishProfile(p telemetry.Profile) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return m.PublishRaw(fmt.Sprintf(profileTopicFmt, m.topic, p.Number), b, true)
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(disconnectWaitMs)
	}
	return nil
}

// PublishRaw publishes a raw payload to the given topic. The caller can set the
// retain flag which is useful for discovery messages.
func (m *MQTTOutput) PublishRaw(topic string, payload []byte, retained bool) error {
	if m.client == nil {
		return fmt.Errorf("mqtt client not connected")
	}
	token := m.client.Publish(topic, 0, retained, payload)
	token.Wait()
	return token.Error()
}

// helper: fill in server, client id and topic when not configured
func withDefaults(cfg config.MQTTConfig) config.MQTTConfig {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = defaultClientID()
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	return cfg
}

// helper: client id stable per machine, e.g. squid-float-1a2b3c4d5e6f
func defaultClientID() string {
	id, err := machineid.ProtectedID(DefaultClientID)
	if err != nil {
		glog.Warningf("machine id unavailable, using %q: %v", DefaultClientID, err)
		return DefaultClientID
	}
	if len(id) > machineIDLen {
		id = id[:machineIDLen]
	}
	return DefaultClientID + "-" + id
}

// helper: build a human-friendly discovery name
func discoveryName(cfg config.MQTTConfig, e discoveryEntity) string {
	name := cfg.DiscoveryName
	if name == "" {
		name = fmt.Sprintf("Squid %s", cfg.ClientID)
	}
	return fmt.Sprintf("%s %s", name, e.objectID)
}

// helper: build a unique id for discovery
func discoveryUniqueID(cfg config.MQTTConfig, e discoveryEntity) string {
	if cfg.ClientID == "" {
		return ""
	}
	return fmt.Sprintf("%s_%s", cfg.ClientID, e.objectID)
}

// helper: base discovery payload map common to all entries
func baseDiscoveryPayload(name, stateTopic, uniqueID string, e discoveryEntity) map[string]interface{} {
	payload := map[string]interface{}{
		keyName:                name,
		keyStateTopic:          stateTopic,
		keyUnitOfMeasurement:   e.unit,
		keyDeviceClass:         e.deviceClass,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       e.template,
		keyJSONAttributesTopic: stateTopic,
	}
	if uniqueID != "" {
		payload[keyUniqueID] = uniqueID
	}
	return payload
}

// helper: marshal and publish JSON payload
func publishJSON(client mqtt.Client, topic string, retained bool, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := client.Publish(topic, 0, retained, b)
	token.Wait()
	return token.Error()
}
