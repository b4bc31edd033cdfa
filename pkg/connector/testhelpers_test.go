// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/mautrix-skype/pkg/skypeweb"
)

// homeCall records one delivery into the mock home network.
type homeCall struct {
	kind     string
	roomSpec string
	senderID string
	target   id.EventID
	content  *event.MessageEventContent
	filename string
	data     []byte
	typing   bool
}

// mockHome captures every HomeNetwork call for assertions.
type mockHome struct {
	mu          sync.Mutex
	calls       []homeCall
	statusMsgs  []string
	userIDs     map[string]string
	ghostNames  map[string]string
	nextEventID int
	sendErr     error
}

func newMockHome() *mockHome {
	return &mockHome{
		userIDs:    make(map[string]string),
		ghostNames: make(map[string]string),
	}
}

func (m *mockHome) record(call homeCall) id.EventID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEventID++
	m.calls = append(m.calls, call)
	return id.EventID(fmt.Sprintf("$home-%d", m.nextEventID))
}

func (m *mockHome) Calls() []homeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]homeCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

func (m *mockHome) SendMessage(_ context.Context, _, roomSpec, senderID string, content *event.MessageEventContent) (id.EventID, error) {
	if m.sendErr != nil {
		return "", m.sendErr
	}
	return m.record(homeCall{kind: "message", roomSpec: roomSpec, senderID: senderID, content: content}), nil
}

func (m *mockHome) SendEdit(_ context.Context, _, roomSpec, senderID string, target id.EventID, content *event.MessageEventContent) (id.EventID, error) {
	return m.record(homeCall{kind: "edit", roomSpec: roomSpec, senderID: senderID, target: target, content: content}), nil
}

func (m *mockHome) SendRedact(_ context.Context, _, roomSpec, senderID string, target id.EventID) error {
	m.record(homeCall{kind: "redact", roomSpec: roomSpec, senderID: senderID, target: target})
	return nil
}

func (m *mockHome) SendReadReceipt(_ context.Context, _, roomSpec, senderID string) error {
	m.record(homeCall{kind: "read", roomSpec: roomSpec, senderID: senderID})
	return nil
}

func (m *mockHome) SetUserTyping(_ context.Context, _, roomSpec, senderID string, typing bool) error {
	m.record(homeCall{kind: "typing", roomSpec: roomSpec, senderID: senderID, typing: typing})
	return nil
}

func (m *mockHome) SendFileDetect(_ context.Context, _, roomSpec, senderID string, data []byte, filename string) (id.EventID, error) {
	return m.record(homeCall{kind: "file", roomSpec: roomSpec, senderID: senderID, data: data, filename: filename}), nil
}

func (m *mockHome) SendStatusMessage(_ context.Context, _, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusMsgs = append(m.statusMsgs, message)
}

func (m *mockHome) SetUserID(_ context.Context, accountID, remoteUserID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userIDs[accountID] = remoteUserID
}

func (m *mockHome) SetPuppetData(_ context.Context, _ string, _ *AccountConfig) {}

func (m *mockHome) UpdateGhostProfile(_ context.Context, _, remoteUserID, displayName, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ghostNames[remoteUserID] = displayName
}

// testStore is a minimal in-memory EventStore.
type testStore struct {
	mu     sync.Mutex
	remote map[string]string
	home   map[string][]id.EventID
}

func newTestStore() *testStore {
	return &testStore{
		remote: make(map[string]string),
		home:   make(map[string][]id.EventID),
	}
}

func (s *testStore) Insert(accountID string, homeID id.EventID, remoteID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote[accountID+"/"+string(homeID)] = remoteID
	s.home[accountID+"/"+remoteID] = append(s.home[accountID+"/"+remoteID], homeID)
}

func (s *testStore) GetRemote(accountID string, homeID id.EventID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	remoteID, ok := s.remote[accountID+"/"+string(homeID)]
	return remoteID, ok
}

func (s *testStore) GetHome(accountID, remoteID string) ([]id.EventID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	homeIDs, ok := s.home[accountID+"/"+remoteID]
	return homeIDs, ok
}

// fakeRemote is an in-memory RemoteClient.
type fakeRemote struct {
	mu            sync.Mutex
	selfID        string
	stateErr      error // returned when Connect is given a session blob
	credsErr      error // returned when Connect is given credentials
	listenErr     error
	events        chan skypeweb.Event
	contacts      map[string]*skypeweb.Contact
	conversations map[string]*skypeweb.Conversation
	contactCalls  int
	convCalls     int
	sent          []string // rendered contents, in order
	edits         []string // "msgID:content"
	deleted       []string
	fetched       []string
	statuses      []string
	connects      []string // "state" or "credentials", in order
	sendCounter   int
	stopped       bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		selfID:        "8:self",
		events:        make(chan skypeweb.Event, 16),
		contacts:      make(map[string]*skypeweb.Contact),
		conversations: make(map[string]*skypeweb.Conversation),
	}
}

func (f *fakeRemote) Connect(_ context.Context, creds *skypeweb.Credentials, state []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if state != nil {
		f.connects = append(f.connects, "state")
		return f.stateErr
	}
	f.connects = append(f.connects, "credentials")
	_ = creds
	return f.credsErr
}

func (f *fakeRemote) Listen(_ context.Context) error { return f.listenErr }

func (f *fakeRemote) StopListening() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeRemote) Events() <-chan skypeweb.Event { return f.events }

func (f *fakeRemote) SelfID() string { return f.selfID }

func (f *fakeRemote) GetState() []byte { return []byte("fresh-session") }

func (f *fakeRemote) SetStatus(_ context.Context, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeRemote) GetContact(_ context.Context, userID string) (*skypeweb.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contactCalls++
	if c, ok := f.contacts[userID]; ok {
		return c, nil
	}
	return nil, skypeweb.ErrNotFound
}

func (f *fakeRemote) GetContacts(_ context.Context, _ bool) ([]*skypeweb.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*skypeweb.Contact, 0, len(f.contacts))
	for _, c := range f.contacts {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeRemote) GetConversation(_ context.Context, convID string) (*skypeweb.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convCalls++
	if c, ok := f.conversations[convID]; ok {
		return c, nil
	}
	return nil, skypeweb.ErrNotFound
}

func (f *fakeRemote) nextResponse() *skypeweb.SendResponse {
	f.sendCounter++
	return &skypeweb.SendResponse{
		ClientMessageID: fmt.Sprintf("client-%d", f.sendCounter),
		ServerMessageID: fmt.Sprintf("srv-%d", f.sendCounter),
	}
}

func (f *fakeRemote) SendMessage(_ context.Context, _, content string) (*skypeweb.SendResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, content)
	return f.nextResponse(), nil
}

func (f *fakeRemote) SendEdit(_ context.Context, _, msgID, content string) (*skypeweb.SendResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, msgID+":"+content)
	return f.nextResponse(), nil
}

func (f *fakeRemote) SendDelete(_ context.Context, _, msgID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, msgID)
	return nil
}

func (f *fakeRemote) SendImage(_ context.Context, _, filename string, _ []byte) (*skypeweb.SendResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, "image:"+filename)
	return f.nextResponse(), nil
}

func (f *fakeRemote) SendAudio(_ context.Context, _, filename string, _ []byte) (*skypeweb.SendResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, "audio:"+filename)
	return f.nextResponse(), nil
}

func (f *fakeRemote) SendDocument(_ context.Context, _, filename string, _ []byte) (*skypeweb.SendResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, "document:"+filename)
	return f.nextResponse(), nil
}

func (f *fakeRemote) AuthorizedFetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	return []byte("file-bytes"), nil
}

// testEnv bundles a connector with its collaborators and one connected
// puppet wired to a fake remote.
type testEnv struct {
	sc     *SkypeConnector
	home   *mockHome
	store  *testStore
	remote *fakeRemote
	puppet *puppet
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	home := newMockHome()
	store := newTestStore()
	remote := newFakeRemote()
	remote.contacts["8:self"] = &skypeweb.Contact{ID: "8:self", DisplayName: "Self"}
	remote.contacts["8:alice"] = &skypeweb.Contact{ID: "8:alice", DisplayName: "Alice"}
	remote.conversations["8:alice"] = &skypeweb.Conversation{
		ID:        "8:alice",
		IsDirect:  true,
		MemberIDs: []string{"8:self", "8:alice"},
	}
	remote.conversations["19:group@thread.skype"] = &skypeweb.Conversation{
		ID:        "19:group@thread.skype",
		Topic:     "Group",
		MemberIDs: []string{"8:self", "8:alice", "8:bob"},
	}

	sc := NewSkypeConnector(home, store, zerolog.Nop(), prometheus.NewRegistry())
	sc.SetRemoteClientFactory(func(_ *AccountConfig) RemoteClient { return remote })

	acct := &AccountConfig{ID: "acct1", Username: "alice@example.com", Password: "hunter2"}
	p := &puppet{
		account:    acct,
		machine:    NewMachine(),
		dedup:      NewDeduplicator(time.Minute),
		handledIDs: NewExpiringSet(5 * time.Minute),
		deletedIDs: NewExpiringSet(15 * time.Minute),
	}
	p.session = NewSkypeClient(acct, remote, 10*time.Millisecond, time.Hour, zerolog.Nop())
	p.session.SetHandler(func(ev *SessionEvent) {
		sc.handleSkypeEvent(p, ev)
	})
	for _, to := range []State{StateConnectingCredentials, StateConnected} {
		if err := p.machine.Transition(to); err != nil {
			t.Fatalf("setup transition to %s: %v", to, err)
		}
	}
	sc.puppets[acct.ID] = p

	return &testEnv{sc: sc, home: home, store: store, remote: remote, puppet: p}
}
