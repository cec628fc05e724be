package mqtt

import (
	"encoding/json"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/oora/tellerloop/core/model"
	"github.com/oora/tellerloop/infra/logger"
)

// StationHandlers are the inbound callbacks of a station node. Nil
// callbacks drop the message.
type StationHandlers struct {
	OnCommand          func(model.DispatchCommand)
	OnStatus           func(model.StatusBroadcast)
	OnScript           func(model.ScriptCommand)
	OnEmptyPodRequest  func(model.EmptyPodRequest)
	OnEmptyPodAccepted func(model.EmptyPodAccepted)
}

// StationBus is a station node's connection to the broker. It implements
// the procedure engine's AckPublisher.
type StationBus struct {
	conn
	stationID int
	handlers  StationHandlers
}

// NewStationBus connects to the broker and subscribes to the topics
// addressed to this station.
func NewStationBus(cfg Config, stationID int, h StationHandlers) (*StationBus, error) {
	log := logger.New("station_bus")
	b := &StationBus{conn: newConn(cfg, log), stationID: stationID, handlers: h}

	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts.OnConnect = func(c paho.Client) {
		log.Infof("station %d connected", stationID)
		subs := map[string]paho.MessageHandler{
			DispatchTopic(stationID):            b.onCommand,
			StatusTopic(stationID):              b.onStatus,
			ScriptTopic(stationID):              b.onScript,
			EmptyPodRequestTopicFor(stationID):  b.onEmptyPodRequest,
			EmptyPodAcceptedTopicFor(stationID): b.onEmptyPodAccepted,
		}
		for topic, cb := range subs {
			if token := c.Subscribe(topic, b.qosFor("subscribe"), cb); token.Wait() && token.Error() != nil {
				log.Errorf("subscribe %s error: %v", topic, token.Error())
			}
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("station %d connection lost: %v", stationID, err)
	}

	cli := newMQTTClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	b.cli = cli
	return b, nil
}

func (b *StationBus) onCommand(_ paho.Client, msg paho.Message) {
	var cmd model.DispatchCommand
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		b.log.Errorf("failed to decode command: %v", err)
		return
	}
	if b.handlers.OnCommand != nil {
		b.handlers.OnCommand(cmd)
	}
}

func (b *StationBus) onStatus(_ paho.Client, msg paho.Message) {
	var st model.StatusBroadcast
	if err := json.Unmarshal(msg.Payload(), &st); err != nil {
		b.log.Errorf("failed to decode status: %v", err)
		return
	}
	if b.handlers.OnStatus != nil {
		b.handlers.OnStatus(st)
	}
}

func (b *StationBus) onScript(_ paho.Client, msg paho.Message) {
	var cmd model.ScriptCommand
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		b.log.Errorf("failed to decode script command: %v", err)
		return
	}
	if b.handlers.OnScript != nil {
		b.handlers.OnScript(cmd)
	}
}

func (b *StationBus) onEmptyPodRequest(_ paho.Client, msg paho.Message) {
	var req model.EmptyPodRequest
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		b.log.Errorf("failed to decode empty pod request: %v", err)
		return
	}
	if b.handlers.OnEmptyPodRequest != nil {
		b.handlers.OnEmptyPodRequest(req)
	}
}

func (b *StationBus) onEmptyPodAccepted(_ paho.Client, msg paho.Message) {
	var acc model.EmptyPodAccepted
	if err := json.Unmarshal(msg.Payload(), &acc); err != nil {
		b.log.Errorf("failed to decode empty pod acceptance: %v", err)
		return
	}
	if b.handlers.OnEmptyPodAccepted != nil {
		b.handlers.OnEmptyPodAccepted(acc)
	}
}

// PublishAck reports procedure progress and completion.
func (b *StationBus) PublishAck(ack model.StationAck) error {
	return b.publishJSON(AckTopic(b.stationID), "ack", ack)
}

// PublishSensors sends a sensor snapshot.
func (b *StationBus) PublishSensors(snap model.SensorSnapshot) error {
	return b.publishJSON(SensorDataTopic(b.stationID), "sensors", snap)
}

// PublishHeartbeat sends one liveness beacon.
func (b *StationBus) PublishHeartbeat() error {
	hb := model.Heartbeat{
		Station:   b.stationID,
		Node:      model.StationName(b.stationID),
		Timestamp: time.Now(),
	}
	return b.publishJSON(HeartbeatTopic(b.stationID), "heartbeat", hb)
}

// PublishBlower drives the shared tube blower.
func (b *StationBus) PublishBlower(on bool) error {
	cmd := "stop"
	if on {
		cmd = "pump"
	}
	return b.publishJSON(BlowerTopic, "blower", map[string]string{"command": cmd})
}

// RequestEmptyPod asks the coordinator to find an empty capsule.
func (b *StationBus) RequestEmptyPod() error {
	req := model.EmptyPodRequest{Requester: b.stationID, Timestamp: time.Now()}
	return b.publishJSON(EmptyPodRequestTopic, "empty_pod", req)
}

// AcceptEmptyPod offers to fulfil an empty pod request.
func (b *StationBus) AcceptEmptyPod(req model.EmptyPodRequest) error {
	acc := model.EmptyPodAccepted{Requester: req.Requester, Provider: b.stationID, Timestamp: time.Now()}
	return b.publishJSON(EmptyPodAcceptedTopic, "empty_pod", acc)
}

// Disconnect gracefully closes the MQTT connection.
func (b *StationBus) Disconnect() { b.disconnect() }
