package live_test

import (
	"context"
	"encoding/json"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/classtide/omnitutor/pkg/kv"
	"github.com/classtide/omnitutor/pkg/live"
	"github.com/classtide/omnitutor/pkg/tutor"
)

type sentImage struct {
	url    string
	prompt string
}

type fakeUpstream struct {
	mu         sync.Mutex
	audio      [][]byte
	images     []sentImage
	forwards   []map[string]any
	commits    int
	interrupts int
	closed     bool

	events  chan live.AgentEvent
	eventMu sync.Mutex
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{events: make(chan live.AgentEvent, 16)}
}

func (f *fakeUpstream) SendAudio(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, data)
	return nil
}

func (f *fakeUpstream) CommitAudio() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	return nil
}

func (f *fakeUpstream) Interrupt() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interrupts++
	return nil
}

func (f *fakeUpstream) SendImage(imageURL, prompt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, sentImage{url: imageURL, prompt: prompt})
	return nil
}

func (f *fakeUpstream) Configure(cfg live.Config) error {
	return f.Forward(map[string]any{"type": "configure", "voice": cfg.Voice})
}

func (f *fakeUpstream) Forward(event map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forwards = append(f.forwards, event)
	return nil
}

func (f *fakeUpstream) emit(ev live.AgentEvent) { f.events <- ev }

func (f *fakeUpstream) Events() iter.Seq2[live.AgentEvent, error] {
	return func(yield func(live.AgentEvent, error) bool) {
		for ev := range f.events {
			if !yield(ev, nil) {
				return
			}
		}
	}
}

func (f *fakeUpstream) Close() error {
	f.eventMu.Lock()
	defer f.eventMu.Unlock()
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	dials []*fakeUpstream
}

func (d *fakeDialer) Dial(ctx context.Context) (live.Upstream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := newFakeUpstream()
	d.dials = append(d.dials, u)
	return u, nil
}

func (d *fakeDialer) last() *fakeUpstream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[len(d.dials)-1]
}

type fakeChat struct {
	mu   sync.Mutex
	reqs []tutor.Request
	resp *tutor.Response
	err  error
}

func (c *fakeChat) Process(_ context.Context, req tutor.Request) (*tutor.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqs = append(c.reqs, req)
	return c.resp, c.err
}

func newTestManager(t *testing.T) (*live.Manager, *fakeDialer, *fakeChat) {
	t.Helper()
	dialer := &fakeDialer{}
	chat := &fakeChat{resp: &tutor.Response{Text: "回答", HandlerName: "通用助手"}}
	m := live.NewManager(live.ManagerConfig{
		Dialer: dialer,
		Chat:   chat,
		Config: live.NewConfigStore(kv.NewMemory()),
	})
	return m, dialer, chat
}

func connect(t *testing.T, m *live.Manager, id string) *live.Session {
	t.Helper()
	s, err := m.Connect(context.Background(), id)
	if err != nil {
		t.Fatalf("Connect(%s): %v", id, err)
	}
	t.Cleanup(func() { m.Disconnect(id) })
	return s
}

// nextEnvelope waits for one outbound envelope.
func nextEnvelope(t *testing.T, s *live.Session) map[string]any {
	t.Helper()
	select {
	case env := <-s.Out():
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an envelope")
		return nil
	}
}

// waitEnvelope drains outbound envelopes until one matches.
func waitEnvelope(t *testing.T, s *live.Session, match func(map[string]any) bool) map[string]any {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-s.Out():
			if match(env) {
				return env
			}
		case <-deadline:
			t.Fatal("timed out waiting for a matching envelope")
			return nil
		}
	}
}

func TestConnectDisconnectRegistry(t *testing.T) {
	m, _, _ := newTestManager(t)

	connect(t, m, "a")
	connect(t, m, "b")
	if got := m.Len(); got != 2 {
		t.Fatalf("Len = %d, want 2", got)
	}

	m.Disconnect("a")
	m.Disconnect("b")
	if got := m.Len(); got != 0 {
		t.Fatalf("Len after disconnect = %d, want 0", got)
	}

	// Idempotent.
	m.Disconnect("a")
	if got := m.Len(); got != 0 {
		t.Fatalf("Len after repeat disconnect = %d, want 0", got)
	}
}

func TestConnectForwardsPersistedConfig(t *testing.T) {
	store := live.NewConfigStore(kv.NewMemory())
	voice := "coral"
	if _, err := store.Patch(context.Background(), live.ConfigPatch{Voice: &voice}); err != nil {
		t.Fatalf("Patch: %v", err)
	}

	dialer := &fakeDialer{}
	m := live.NewManager(live.ManagerConfig{Dialer: dialer, Config: store})
	connect(t, m, "s1")

	up := dialer.last()
	up.mu.Lock()
	defer up.mu.Unlock()
	if len(up.forwards) != 1 {
		t.Fatalf("forwards = %d, want 1", len(up.forwards))
	}
	event := up.forwards[0]
	if event["type"] != "client_config" {
		t.Fatalf("forwarded type = %v", event["type"])
	}
	if event["voice"] != "coral" {
		t.Fatalf("forwarded voice = %v", event["voice"])
	}
	if event["temperature"] != 0.8 {
		t.Fatalf("forwarded temperature = %v", event["temperature"])
	}
}

func TestPumpDeliversEnvelopesInOrder(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	s := connect(t, m, "s1")
	up := dialer.last()

	up.emit(live.AgentStart{Agent: "语音助手"})
	up.emit(live.Audio{Data: []byte{1}})
	up.emit(live.AudioEnd{})

	if env := nextEnvelope(t, s); env["type"] != "agent_start" {
		t.Fatalf("first envelope = %v", env["type"])
	}
	if env := nextEnvelope(t, s); env["type"] != "audio" {
		t.Fatalf("second envelope = %v", env["type"])
	}
	if env := nextEnvelope(t, s); env["type"] != "audio_end" {
		t.Fatalf("third envelope = %v", env["type"])
	}
}

func TestVoiceTextRoutedThroughChat(t *testing.T) {
	m, dialer, chat := newTestManager(t)
	s := connect(t, m, "s1")

	dialer.last().emit(live.HistoryAdded{Item: map[string]any{
		"role": "user",
		"content": []any{
			map[string]any{"type": "text", "text": "什么是惯性"},
		},
	}})

	env := waitEnvelope(t, s, func(e map[string]any) bool { return e["type"] == "agent_response" })
	if env["text"] != "回答" || env["agent"] != "通用助手" || env["session_id"] != "s1" {
		t.Fatalf("agent_response = %#v", env)
	}

	// The history_added envelope still follows.
	if e := nextEnvelope(t, s); e["type"] != "history_added" {
		t.Fatalf("next envelope = %v", e["type"])
	}

	chat.mu.Lock()
	defer chat.mu.Unlock()
	if len(chat.reqs) != 1 {
		t.Fatalf("chat calls = %d, want 1", len(chat.reqs))
	}
	req := chat.reqs[0]
	if req.ConversationID != "voice_s1" {
		t.Fatalf("ConversationID = %q", req.ConversationID)
	}
	if req.Message != "什么是惯性" || req.UseWebSearch {
		t.Fatalf("req = %+v", req)
	}
}

func TestAssistantHistoryNotRouted(t *testing.T) {
	m, dialer, chat := newTestManager(t)
	s := connect(t, m, "s1")

	dialer.last().emit(live.HistoryAdded{Item: map[string]any{
		"role": "assistant",
		"content": []any{
			map[string]any{"type": "text", "text": "好的"},
		},
	}})

	if e := nextEnvelope(t, s); e["type"] != "history_added" {
		t.Fatalf("envelope = %v", e["type"])
	}
	chat.mu.Lock()
	defer chat.mu.Unlock()
	if len(chat.reqs) != 0 {
		t.Fatalf("chat calls = %d, want 0", len(chat.reqs))
	}
}

func control(t *testing.T, m *live.Manager, id string, msg map[string]any) {
	t.Helper()
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal control: %v", err)
	}
	if err := m.HandleText(id, raw); err != nil {
		t.Fatalf("HandleText(%v): %v", msg["type"], err)
	}
}

func TestChunkedImageReassembly(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	s := connect(t, m, "s1")
	up := dialer.last()

	control(t, m, "s1", map[string]any{"type": "image_start", "id": "img1", "text": "这是什么"})
	env := nextEnvelope(t, s)
	if env["info"] != "image_start_ack" || env["id"] != "img1" {
		t.Fatalf("start ack = %#v", env)
	}

	control(t, m, "s1", map[string]any{"type": "image_chunk", "id": "img1", "chunk": "ab"})
	control(t, m, "s1", map[string]any{"type": "image_chunk", "id": "img1", "chunk": "cd"})
	control(t, m, "s1", map[string]any{"type": "image_end", "id": "img1"})

	env = waitEnvelope(t, s, func(e map[string]any) bool { return e["info"] == "image_enqueued" })
	if env["id"] != "img1" || env["size"] != 4 {
		t.Fatalf("enqueued envelope = %#v", env)
	}

	up.mu.Lock()
	images := append([]sentImage(nil), up.images...)
	up.mu.Unlock()
	if len(images) != 1 {
		t.Fatalf("images sent = %d, want 1", len(images))
	}
	if images[0].url != "abcd" || images[0].prompt != "这是什么" {
		t.Fatalf("image = %+v", images[0])
	}

	// The buffer is gone: ending the same id again is a protocol error.
	control(t, m, "s1", map[string]any{"type": "image_end", "id": "img1"})
	env = waitEnvelope(t, s, func(e map[string]any) bool { return e["type"] == "error" })
	if env["error"] != "Unknown image id for image_end." {
		t.Fatalf("error envelope = %#v", env)
	}
}

func TestChunkAcksEveryTen(t *testing.T) {
	m, _, _ := newTestManager(t)
	s := connect(t, m, "s1")

	control(t, m, "s1", map[string]any{"type": "image_start", "id": "7"})
	nextEnvelope(t, s) // start ack

	for i := 0; i < 10; i++ {
		control(t, m, "s1", map[string]any{"type": "image_chunk", "id": "7", "chunk": "x"})
	}

	env := nextEnvelope(t, s)
	if env["info"] != "image_chunk_ack" || env["count"] != 10 || env["id"] != "7" {
		t.Fatalf("chunk ack = %#v", env)
	}
}

func TestUnknownImageEndDoesNotCrash(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	s := connect(t, m, "s1")

	control(t, m, "s1", map[string]any{"type": "image_end", "id": "nope"})
	env := nextEnvelope(t, s)
	if env["type"] != "error" || env["error"] != "Unknown image id for image_end." {
		t.Fatalf("envelope = %#v", env)
	}

	// The session is still serviceable.
	control(t, m, "s1", map[string]any{"type": "commit_audio"})
	up := dialer.last()
	up.mu.Lock()
	defer up.mu.Unlock()
	if up.commits != 1 {
		t.Fatalf("commits = %d, want 1", up.commits)
	}
}

func TestEmptyImageRejected(t *testing.T) {
	m, _, _ := newTestManager(t)
	s := connect(t, m, "s1")

	control(t, m, "s1", map[string]any{"type": "image_start", "id": "e"})
	nextEnvelope(t, s)
	control(t, m, "s1", map[string]any{"type": "image_end", "id": "e"})

	env := nextEnvelope(t, s)
	if env["error"] != "Empty image." {
		t.Fatalf("envelope = %#v", env)
	}
}

func TestSingleShotImage(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	s := connect(t, m, "s1")

	control(t, m, "s1", map[string]any{"type": "image", "data_url": "data:image/png;base64,AA=="})
	env := nextEnvelope(t, s)
	if env["info"] != "image_enqueued" {
		t.Fatalf("envelope = %#v", env)
	}

	up := dialer.last()
	up.mu.Lock()
	defer up.mu.Unlock()
	if len(up.images) != 1 || up.images[0].prompt != "Please describe this image." {
		t.Fatalf("images = %+v", up.images)
	}
}

func TestBinaryAudioForwarded(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	connect(t, m, "s1")

	if err := m.HandleAudio("s1", []byte{1, 2, 3}); err != nil {
		t.Fatalf("HandleAudio: %v", err)
	}
	up := dialer.last()
	up.mu.Lock()
	defer up.mu.Unlock()
	if len(up.audio) != 1 || len(up.audio[0]) != 3 {
		t.Fatalf("audio = %+v", up.audio)
	}
}

func TestInterruptAndClientConfig(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	connect(t, m, "s1")
	up := dialer.last()

	control(t, m, "s1", map[string]any{"type": "interrupt"})
	control(t, m, "s1", map[string]any{"type": "client_config", "voice": "sage"})

	up.mu.Lock()
	defer up.mu.Unlock()
	if up.interrupts != 1 {
		t.Fatalf("interrupts = %d", up.interrupts)
	}
	// Startup config plus the forwarded client_config.
	if len(up.forwards) != 2 {
		t.Fatalf("forwards = %d, want 2", len(up.forwards))
	}
	if up.forwards[1]["voice"] != "sage" {
		t.Fatalf("forwarded config = %#v", up.forwards[1])
	}
}

func TestDeliveryAfterDisconnectIsNoop(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	connect(t, m, "s1")
	up := dialer.last()

	m.Disconnect("s1")

	// The pump may still be draining; emitting must not block or panic.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			func() {
				defer func() { recover() }()
				up.emit(live.AudioEnd{})
			}()
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked after disconnect")
	}
}

func TestMaxChunkBuffers(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.MaxChunkBuffers = 1
	s := connect(t, m, "s1")

	control(t, m, "s1", map[string]any{"type": "image_start", "id": "a"})
	nextEnvelope(t, s)
	control(t, m, "s1", map[string]any{"type": "image_start", "id": "b"})

	env := nextEnvelope(t, s)
	if env["type"] != "error" || env["error"] != "Too many image buffers." {
		t.Fatalf("envelope = %#v", env)
	}
}

func TestHandleTextUnknownSession(t *testing.T) {
	m, _, _ := newTestManager(t)
	if err := m.HandleText("ghost", []byte(`{"type":"interrupt"}`)); err == nil {
		t.Fatal("expected an error for an unknown session")
	}
	if err := m.HandleAudio("ghost", []byte{1}); err == nil {
		t.Fatal("expected an error for unknown session audio")
	}
}

func TestConnectReplacesExistingSession(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	first := connect(t, m, "dup")
	connect(t, m, "dup")

	if got := m.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}
	select {
	case <-first.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("replaced session was not stopped")
	}
	if len(dialer.dials) != 2 {
		t.Fatalf("dials = %d, want 2", len(dialer.dials))
	}
}
