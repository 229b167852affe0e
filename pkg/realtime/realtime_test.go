package realtime_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/classtide/omnitutor/pkg/realtime"
)

// fakeUpstream is a WebSocket server standing in for the realtime API.
type fakeUpstream struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	connCh chan *websocket.Conn
	reqCh  chan *http.Request
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{
		connCh: make(chan *websocket.Conn, 1),
		reqCh:  make(chan *http.Request, 1),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.reqCh <- r.Clone(context.Background())
		conn, err := f.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		f.connCh <- conn
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeUpstream) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func dialTestSession(t *testing.T, opts ...realtime.Option) (*realtime.Session, *websocket.Conn, *http.Request) {
	t.Helper()
	f := newFakeUpstream(t)
	opts = append([]realtime.Option{realtime.WithURL(f.url())}, opts...)
	client := realtime.NewClient("sk-test", opts...)
	sess, err := client.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	server := <-f.connCh
	t.Cleanup(func() { server.Close() })
	return sess, server, <-f.reqCh
}

func readClientEvent(t *testing.T, server *websocket.Conn) map[string]any {
	t.Helper()
	var event map[string]any
	if err := server.ReadJSON(&event); err != nil {
		t.Fatalf("server read: %v", err)
	}
	return event
}

func TestDialSendsAuthAndModel(t *testing.T) {
	_, _, req := dialTestSession(t, realtime.WithModel("gpt-4o-mini-realtime-preview"))

	if got := req.Header.Get("Authorization"); got != "Bearer sk-test" {
		t.Fatalf("Authorization = %q", got)
	}
	if got := req.URL.Query().Get("model"); got != "gpt-4o-mini-realtime-preview" {
		t.Fatalf("model = %q", got)
	}
}

func TestSessionIDFromSessionCreated(t *testing.T) {
	sess, server, _ := dialTestSession(t)

	if err := server.WriteJSON(map[string]any{
		"type":    "session.created",
		"session": map[string]any{"id": "sess_123"},
	}); err != nil {
		t.Fatalf("server write: %v", err)
	}

	for event, err := range sess.Events() {
		if err != nil {
			t.Fatalf("event error: %v", err)
		}
		if event.Type != realtime.EventTypeSessionCreated {
			t.Fatalf("event type = %q", event.Type)
		}
		break
	}
	if got := sess.SessionID(); got != "sess_123" {
		t.Fatalf("SessionID = %q", got)
	}
}

func TestAddUserTextWire(t *testing.T) {
	sess, server, _ := dialTestSession(t)

	if err := sess.AddUserText("你好"); err != nil {
		t.Fatalf("AddUserText: %v", err)
	}
	event := readClientEvent(t, server)
	if event["type"] != "conversation.item.create" {
		t.Fatalf("type = %v", event["type"])
	}
	raw, _ := json.Marshal(event)
	if !strings.Contains(string(raw), `"input_text"`) || !strings.Contains(string(raw), "你好") {
		t.Fatalf("wire payload = %s", raw)
	}
	if event["event_id"] == nil {
		t.Fatal("missing event_id")
	}
}

func TestAddUserImageWire(t *testing.T) {
	sess, server, _ := dialTestSession(t)

	if err := sess.AddUserImage("data:image/jpeg;base64,QUJD", "describe"); err != nil {
		t.Fatalf("AddUserImage: %v", err)
	}
	raw, _ := json.Marshal(readClientEvent(t, server))
	for _, want := range []string{`"input_image"`, "data:image/jpeg;base64,QUJD", `"detail":"high"`, `"input_text"`, "describe"} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("wire payload missing %q: %s", want, raw)
		}
	}
}

func TestAppendAudioEncodesBase64(t *testing.T) {
	sess, server, _ := dialTestSession(t)

	if err := sess.AppendAudio([]byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("AppendAudio: %v", err)
	}
	event := readClientEvent(t, server)
	if event["type"] != "input_audio_buffer.append" {
		t.Fatalf("type = %v", event["type"])
	}
	if event["audio"] != base64.StdEncoding.EncodeToString([]byte{0x01, 0x02, 0x03}) {
		t.Fatalf("audio = %v", event["audio"])
	}
}

func TestAudioDeltaDecoded(t *testing.T) {
	sess, server, _ := dialTestSession(t)

	pcm := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if err := server.WriteJSON(map[string]any{
		"type":  "response.audio.delta",
		"delta": base64.StdEncoding.EncodeToString(pcm),
	}); err != nil {
		t.Fatalf("server write: %v", err)
	}

	for event, err := range sess.Events() {
		if err != nil {
			t.Fatalf("event error: %v", err)
		}
		if string(event.Audio) != string(pcm) {
			t.Fatalf("Audio = %x", event.Audio)
		}
		return
	}
	t.Fatal("no event received")
}

func TestEventsStopAfterReadError(t *testing.T) {
	sess, server, _ := dialTestSession(t)

	server.Close()

	var sawErr bool
	for _, err := range sess.Events() {
		if err != nil {
			sawErr = true
		}
	}
	if !sawErr {
		t.Fatal("expected a read error after the server closed")
	}
}

func TestCloseIdempotent(t *testing.T) {
	sess, _, _ := dialTestSession(t)
	if err := sess.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
