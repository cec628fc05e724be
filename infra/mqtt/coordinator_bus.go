package mqtt

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/oora/tellerloop/core/model"
	coremqtt "github.com/oora/tellerloop/core/mqtt"
	"github.com/oora/tellerloop/infra/logger"
)

// CoordinatorBus is the coordinator's connection to the broker. It
// implements the core Publisher and feeds every station-originated
// message into the given Handler.
type CoordinatorBus struct {
	conn
	handler coremqtt.Handler
}

// NewCoordinatorBus connects to the broker and subscribes to the station
// topics.
func NewCoordinatorBus(cfg Config, handler coremqtt.Handler) (*CoordinatorBus, error) {
	log := logger.New("mqtt_bus")
	b := &CoordinatorBus{conn: newConn(cfg, log), handler: handler}

	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		subs := map[string]paho.MessageHandler{
			AckWildcard:           b.onAck,
			SensorDataWildcard:    b.onSensorData,
			HeartbeatWildcard:     b.onHeartbeat,
			EmptyPodRequestTopic:  b.onEmptyPodRequest,
			EmptyPodAcceptedTopic: b.onEmptyPodAccepted,
		}
		for topic, cb := range subs {
			if token := c.Subscribe(topic, b.qosFor("subscribe"), cb); token.Wait() && token.Error() != nil {
				log.Errorf("subscribe %s error: %v", topic, token.Error())
			}
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}

	cli := newMQTTClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	b.cli = cli
	return b, nil
}

// stationFromTopic extracts the numeric station id from the last topic
// level. Returns -1 when the level is not a number.
func stationFromTopic(topic string) int {
	idx := strings.LastIndexByte(topic, '/')
	if idx < 0 {
		return -1
	}
	id, err := strconv.Atoi(topic[idx+1:])
	if err != nil {
		return -1
	}
	return id
}

func (b *CoordinatorBus) onAck(_ paho.Client, msg paho.Message) {
	var ack model.StationAck
	if err := json.Unmarshal(msg.Payload(), &ack); err != nil {
		b.log.Errorf("failed to decode ack on %s: %v", msg.Topic(), err)
		return
	}
	if ack.Station == 0 {
		ack.Station = stationFromTopic(msg.Topic())
	}
	b.handler.HandleAck(ack)
}

func (b *CoordinatorBus) onSensorData(_ paho.Client, msg paho.Message) {
	var snap model.SensorSnapshot
	if err := json.Unmarshal(msg.Payload(), &snap); err != nil {
		b.log.Errorf("failed to decode sensor data on %s: %v", msg.Topic(), err)
		return
	}
	if snap.StationID == 0 {
		snap.StationID = stationFromTopic(msg.Topic())
	}
	if snap.ObservedAt.IsZero() {
		snap.ObservedAt = time.Now()
	}
	b.handler.HandleSensorData(snap)
}

func (b *CoordinatorBus) onHeartbeat(_ paho.Client, msg paho.Message) {
	var hb model.Heartbeat
	if err := json.Unmarshal(msg.Payload(), &hb); err != nil {
		b.log.Errorf("failed to decode heartbeat on %s: %v", msg.Topic(), err)
		return
	}
	if hb.Station == 0 {
		hb.Station = stationFromTopic(msg.Topic())
	}
	b.handler.HandleHeartbeat(hb)
}

func (b *CoordinatorBus) onEmptyPodRequest(_ paho.Client, msg paho.Message) {
	var req model.EmptyPodRequest
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		b.log.Errorf("failed to decode empty pod request: %v", err)
		return
	}
	b.handler.HandleEmptyPodRequest(req)
}

func (b *CoordinatorBus) onEmptyPodAccepted(_ paho.Client, msg paho.Message) {
	var acc model.EmptyPodAccepted
	if err := json.Unmarshal(msg.Payload(), &acc); err != nil {
		b.log.Errorf("failed to decode empty pod acceptance: %v", err)
		return
	}
	b.handler.HandleEmptyPodAccepted(acc)
}

// PublishCommand sends a dispatch command to one station.
func (b *CoordinatorBus) PublishCommand(stationID int, cmd model.DispatchCommand) error {
	return b.publishJSON(DispatchTopic(stationID), "command", cmd)
}

// PublishStatus sends a status broadcast to one station.
func (b *CoordinatorBus) PublishStatus(stationID int, st model.StatusBroadcast) error {
	return b.publishJSON(StatusTopic(stationID), "status", st)
}

// PublishScript sends a maintenance command to one station.
func (b *CoordinatorBus) PublishScript(stationID int, cmd model.ScriptCommand) error {
	return b.publishJSON(ScriptTopic(stationID), "script", cmd)
}

// PublishEmptyPodRequest relays an empty pod request to one station.
func (b *CoordinatorBus) PublishEmptyPodRequest(stationID int, req model.EmptyPodRequest) error {
	return b.publishJSON(EmptyPodRequestTopicFor(stationID), "empty_pod", req)
}

// PublishEmptyPodAccepted relays an acceptance back to the requester.
func (b *CoordinatorBus) PublishEmptyPodAccepted(stationID int, acc model.EmptyPodAccepted) error {
	return b.publishJSON(EmptyPodAcceptedTopicFor(stationID), "empty_pod", acc)
}

// Disconnect gracefully closes the MQTT connection.
func (b *CoordinatorBus) Disconnect() { b.disconnect() }
