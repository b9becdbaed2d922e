package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/devicelink/internal/device"
	"github.com/nerrad567/devicelink/internal/relay"
)

func dialFeed(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return msg
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocket_SubscribeAndBroadcast(t *testing.T) {
	env := newTestEnv(t)
	conn := dialFeed(t, env)
	hub := env.srv.Hub()
	waitForClients(t, hub, 1)

	err := conn.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "1",
		Payload: WSSubscribePayload{Channels: []string{relay.ChannelDeviceData}},
	})
	if err != nil {
		t.Fatal(err)
	}
	resp := readMessage(t, conn)
	if resp.Type != WSTypeResponse || resp.ID != "1" {
		t.Fatalf("subscribe response = %+v", resp)
	}

	// Unsubscribed channels are not delivered.
	hub.Broadcast(relay.ChannelDeviceEvent, relay.EventMessage{Device: "alice", Event: "logged_on"})
	hub.Broadcast(relay.ChannelDeviceData, relay.DataMessage{Device: "alice", Code: "01", Payload: "Sensor Data", Length: 11})

	msg := readMessage(t, conn)
	if msg.Type != WSTypeEvent || msg.EventType != relay.ChannelDeviceData {
		t.Fatalf("event = %+v", msg)
	}
	raw, _ := json.Marshal(msg.Payload)
	var data relay.DataMessage
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatal(err)
	}
	if data.Device != "alice" || data.Payload != "Sensor Data" {
		t.Errorf("payload = %+v", data)
	}
}

func TestWebSocket_RelaySink(t *testing.T) {
	env := newTestEnv(t)
	conn := dialFeed(t, env)
	waitForClients(t, env.srv.Hub(), 1)

	if err := conn.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		Payload: WSSubscribePayload{Channels: []string{relay.ChannelDeviceEvent}},
	}); err != nil {
		t.Fatal(err)
	}
	readMessage(t, conn)

	r := relay.New(nil, nil)
	r.SetBroadcaster(env.srv.Hub())
	r.Event("bob", device.OutcomeAlreadyRegistered)
	r.Event("alice", device.OutcomeLoggedOff)

	msg := readMessage(t, conn)
	if msg.EventType != relay.ChannelDeviceEvent {
		t.Fatalf("event = %+v", msg)
	}
	payload, _ := msg.Payload.(map[string]any)
	if payload["device"] != "alice" || payload["event"] != "logged_off" {
		t.Errorf("payload = %v", msg.Payload)
	}
}

func TestWebSocket_ControlMessages(t *testing.T) {
	env := newTestEnv(t)
	conn := dialFeed(t, env)

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != WSTypePong || msg.ID != "p1" {
		t.Errorf("ping reply = %+v", msg)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != WSTypeError {
		t.Errorf("invalid JSON reply = %+v", msg)
	}

	if err := conn.WriteJSON(WSMessage{Type: "shout", ID: "x"}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != WSTypeError || msg.ID != "x" {
		t.Errorf("unknown type reply = %+v", msg)
	}

	if err := conn.WriteJSON(WSMessage{
		Type:    WSTypeUnsubscribe,
		ID:      "u1",
		Payload: WSSubscribePayload{Channels: []string{relay.ChannelDeviceData}},
	}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != WSTypeResponse || msg.ID != "u1" {
		t.Errorf("unsubscribe reply = %+v", msg)
	}
}

func TestHub_RunClosesClients(t *testing.T) {
	env := newTestEnv(t)
	conn := dialFeed(t, env)
	hub := env.srv.Hub()
	waitForClients(t, hub, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after Run returned", hub.ClientCount())
	}
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection should be closed")
	}
}
