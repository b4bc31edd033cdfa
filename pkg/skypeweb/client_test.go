// Copyright 2024-2026 Aiku AI

package skypeweb

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

// newTestServer runs a fake REST API covering login, profile, contacts,
// conversations, messages and the object store.
func newTestServer(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if creds["password"] != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"skypetoken":        "tok-1",
			"registrationtoken": "reg-1",
			"self_id":           "self",
			"expires_in":        86400,
		})
	})
	mux.HandleFunc("GET /users/self/profile", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authentication") != "skypetoken=tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(Contact{ID: "8:self", DisplayName: "Self"})
	})
	mux.HandleFunc("GET /users/8:alice/profile", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Contact{ID: "alice", DisplayName: "Alice"})
	})
	mux.HandleFunc("GET /users/{user}/profile", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("GET /conversations/19:group@thread.skype", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Conversation{
			ID:        "19:group@thread.skype",
			Topic:     "Group",
			MemberIDs: []string{"8:self", "8:alice"},
		})
	})
	mux.HandleFunc("POST /conversations/{conv}/messages", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"clientmessageid": payload["clientmessageid"],
			"id":              "srv-100",
		})
	})
	mux.HandleFunc("POST /objects", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "obj-1"})
	})
	mux.HandleFunc("GET /objects/{obj}/views/imgpsh_fullsize", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "skype_token tok-1" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("image-bytes"))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, NewClient(srv.URL, "ws://unused", zerolog.Nop())
}

func login(t *testing.T, c *Client) {
	t.Helper()
	err := c.Connect(context.Background(), &Credentials{Username: "alice@example.com", Password: "hunter2"}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
}

func TestClientConnect_Credentials(t *testing.T) {
	t.Parallel()
	_, c := newTestServer(t)
	login(t, c)

	if c.SelfID() != "8:self" {
		t.Errorf("self id: got %q, want normalized 8:self", c.SelfID())
	}
	if c.GetState() == nil {
		t.Error("a logged-in client must produce a resumable state blob")
	}
}

func TestClientConnect_BadCredentials(t *testing.T) {
	t.Parallel()
	_, c := newTestServer(t)
	err := c.Connect(context.Background(), &Credentials{Username: "alice@example.com", Password: "wrong"}, nil)
	if !IsAuthError(err) {
		t.Errorf("got %v, want an auth error", err)
	}
}

func TestClientConnect_ResumeState(t *testing.T) {
	t.Parallel()
	_, c := newTestServer(t)
	login(t, c)
	blob := c.GetState()

	_, c2 := newTestServer(t)
	if err := c2.Connect(context.Background(), nil, blob); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if c2.SelfID() != "8:self" {
		t.Errorf("self id after resume: got %q, want 8:self", c2.SelfID())
	}
}

func TestClientConnect_ResumeRejected(t *testing.T) {
	t.Parallel()
	_, c := newTestServer(t)
	blob, err := json.Marshal(sessionState{SkypeToken: "stale", RegistrationToken: "stale"})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Connect(context.Background(), nil, blob); err == nil {
		t.Error("a rejected session resume must fail")
	}
}

func TestClientConnect_NoCredentialsNoState(t *testing.T) {
	t.Parallel()
	_, c := newTestServer(t)
	err := c.Connect(context.Background(), nil, nil)
	if !IsAuthError(err) {
		t.Errorf("got %v, want an auth error", err)
	}
}

func TestClientGetContact(t *testing.T) {
	t.Parallel()
	_, c := newTestServer(t)
	login(t, c)

	contact, err := c.GetContact(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetContact: %v", err)
	}
	if contact.ID != "8:alice" || contact.DisplayName != "Alice" {
		t.Errorf("contact: got %+v", contact)
	}
}

func TestClientGetContact_NotFound(t *testing.T) {
	t.Parallel()
	_, c := newTestServer(t)
	login(t, c)

	_, err := c.GetContact(context.Background(), "8:nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestClientGetConversation(t *testing.T) {
	t.Parallel()
	_, c := newTestServer(t)
	login(t, c)

	conv, err := c.GetConversation(context.Background(), "19:group@thread.skype")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if conv.IsDirect {
		t.Error("19: conversations are not direct")
	}
	if len(conv.MemberIDs) != 2 {
		t.Errorf("members: got %v", conv.MemberIDs)
	}
}

func TestClientSendMessage(t *testing.T) {
	t.Parallel()
	_, c := newTestServer(t)
	login(t, c)

	resp, err := c.SendMessage(context.Background(), "8:alice", "hello")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if resp.ServerMessageID != "srv-100" {
		t.Errorf("server id: got %q, want srv-100", resp.ServerMessageID)
	}
	if resp.ClientMessageID == "" {
		t.Error("client message id must be set")
	}
}

func TestClientSendImage(t *testing.T) {
	t.Parallel()
	_, c := newTestServer(t)
	login(t, c)

	resp, err := c.SendImage(context.Background(), "8:alice", "photo.jpg", []byte("img"))
	if err != nil {
		t.Fatalf("SendImage: %v", err)
	}
	if resp.ServerMessageID != "srv-100" {
		t.Errorf("server id: got %q, want srv-100", resp.ServerMessageID)
	}
}

func TestClientAuthorizedFetch(t *testing.T) {
	t.Parallel()
	srv, c := newTestServer(t)
	login(t, c)

	data, err := c.AuthorizedFetch(context.Background(), srv.URL+"/objects/obj-1/views/imgpsh_fullsize")
	if err != nil {
		t.Fatalf("AuthorizedFetch: %v", err)
	}
	if string(data) != "image-bytes" {
		t.Errorf("data: got %q, want image-bytes", data)
	}
}
