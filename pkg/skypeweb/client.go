// Copyright 2024-2026 Aiku AI

package skypeweb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the REST API root used when none is configured.
const DefaultBaseURL = "https://api.skype-web.example.com/v1"

// DefaultGatewayURL is the websocket event gateway used when none is configured.
const DefaultGatewayURL = "wss://gateway.skype-web.example.com/v1/stream"

// sessionState is the resumable authentication state. Its JSON encoding is
// the opaque blob handed to GetState/Connect.
type sessionState struct {
	SkypeToken        string    `json:"skype_token"`
	RegistrationToken string    `json:"registration_token"`
	SelfID            string    `json:"self_id"`
	Expiry            time.Time `json:"expiry"`
}

// Client talks to one Skype account. Create with NewClient, then Connect
// with either credentials or a previously saved state blob.
type Client struct {
	baseURL    string
	gatewayURL string
	http       *http.Client
	log        zerolog.Logger

	mu      sync.Mutex
	session sessionState

	events    chan Event
	stopChan  chan struct{}
	stopOnce  sync.Once
	listening bool
}

// NewClient creates an unconnected client. Empty URLs fall back to the
// defaults.
func NewClient(baseURL, gatewayURL string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if gatewayURL == "" {
		gatewayURL = DefaultGatewayURL
	}
	return &Client{
		baseURL:    baseURL,
		gatewayURL: gatewayURL,
		http:       &http.Client{Timeout: 30 * time.Second},
		log:        log.With().Str("component", "skypeweb").Logger(),
		events:     make(chan Event, 64),
		stopChan:   make(chan struct{}),
	}
}

// Connect authenticates the client. If state is non-empty it is resumed and
// verified against the profile endpoint; otherwise creds are exchanged for
// fresh tokens. Rejected credentials return an *AuthError.
func (c *Client) Connect(ctx context.Context, creds *Credentials, state []byte) error {
	if len(state) > 0 {
		var sess sessionState
		if err := json.Unmarshal(state, &sess); err != nil {
			return fmt.Errorf("failed to parse session state: %w", err)
		}
		if !sess.Expiry.IsZero() && time.Now().After(sess.Expiry) {
			return fmt.Errorf("session state expired at %s", sess.Expiry.Format(time.RFC3339))
		}
		c.mu.Lock()
		c.session = sess
		c.mu.Unlock()

		// Verify the resumed tokens actually work.
		var profile Contact
		if err := c.get(ctx, "/users/self/profile", &profile); err != nil {
			c.mu.Lock()
			c.session = sessionState{}
			c.mu.Unlock()
			return fmt.Errorf("session resume rejected: %w", err)
		}
		c.mu.Lock()
		c.session.SelfID = profile.ID
		c.mu.Unlock()
		c.log.Debug().Str("self_id", profile.ID).Msg("Resumed existing session")
		return nil
	}

	if creds == nil {
		return &AuthError{Reason: "no credentials or session state"}
	}

	body, err := json.Marshal(map[string]string{
		"username": creds.Username,
		"password": creds.Password,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Reason: fmt.Sprintf("login rejected with status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return &RequestError{Status: resp.StatusCode, Path: "/login"}
	}

	var loginResp struct {
		SkypeToken        string `json:"skypetoken"`
		RegistrationToken string `json:"registrationtoken"`
		SelfID            string `json:"self_id"`
		ExpiresIn         int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return fmt.Errorf("failed to decode login response: %w", err)
	}

	c.mu.Lock()
	c.session = sessionState{
		SkypeToken:        loginResp.SkypeToken,
		RegistrationToken: loginResp.RegistrationToken,
		SelfID:            NormalizeUserID(loginResp.SelfID),
		Expiry:            time.Now().Add(time.Duration(loginResp.ExpiresIn) * time.Second),
	}
	c.mu.Unlock()
	c.log.Debug().Str("self_id", c.SelfID()).Msg("Logged in with credentials")
	return nil
}

// SelfID returns the authenticated account's own remote user id.
func (c *Client) SelfID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.SelfID
}

// GetState returns the opaque resumable session blob, or nil when the
// client holds no session.
func (c *Client) GetState() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.SkypeToken == "" {
		return nil
	}
	blob, err := json.Marshal(c.session)
	if err != nil {
		return nil
	}
	return blob
}

// Events returns the channel that Listen delivers notifications on.
func (c *Client) Events() <-chan Event {
	return c.events
}

// SetStatus publishes the account's presence status.
func (c *Client) SetStatus(ctx context.Context, status string) error {
	return c.put(ctx, "/users/self/presence", map[string]string{"status": status}, nil)
}

// GetContact fetches one contact profile. Returns ErrNotFound for unknown ids.
func (c *Client) GetContact(ctx context.Context, id string) (*Contact, error) {
	var contact Contact
	if err := c.get(ctx, "/users/"+url.PathEscape(NormalizeUserID(id))+"/profile", &contact); err != nil {
		return nil, err
	}
	contact.ID = NormalizeUserID(contact.ID)
	return &contact, nil
}

// GetContacts fetches the account's contact list. With diffOnly the server
// returns only entries changed since the last delta fetch.
func (c *Client) GetContacts(ctx context.Context, diffOnly bool) ([]*Contact, error) {
	path := "/users/self/contacts"
	if diffOnly {
		path += "?delta=true"
	}
	var resp struct {
		Contacts []*Contact `json:"contacts"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	for _, contact := range resp.Contacts {
		contact.ID = NormalizeUserID(contact.ID)
	}
	return resp.Contacts, nil
}

// GetConversation fetches conversation metadata. Returns ErrNotFound for
// unknown ids.
func (c *Client) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	if err := c.get(ctx, "/conversations/"+url.PathEscape(id), &conv); err != nil {
		return nil, err
	}
	conv.IsDirect = !IsGroupConversation(conv.ID)
	return &conv, nil
}

// SendMessage posts a rich-text message to a conversation.
func (c *Client) SendMessage(ctx context.Context, convID, content string) (*SendResponse, error) {
	return c.postMessage(ctx, convID, map[string]string{
		"clientmessageid": uuid.NewString(),
		"messagetype":     "RichText",
		"content":         content,
	})
}

// SendEdit replaces the content of a previously sent message.
func (c *Client) SendEdit(ctx context.Context, convID, msgID, content string) (*SendResponse, error) {
	var resp SendResponse
	path := "/conversations/" + url.PathEscape(convID) + "/messages/" + url.PathEscape(msgID)
	if err := c.put(ctx, path, map[string]string{
		"messagetype": "RichText",
		"content":     content,
	}, &resp); err != nil {
		return nil, err
	}
	if resp.ServerMessageID == "" {
		resp.ServerMessageID = msgID
	}
	return &resp, nil
}

// SendDelete removes a previously sent message.
func (c *Client) SendDelete(ctx context.Context, convID, msgID string) error {
	path := "/conversations/" + url.PathEscape(convID) + "/messages/" + url.PathEscape(msgID)
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return &RequestError{Status: resp.StatusCode, Path: path}
	}
	return nil
}

// SendImage uploads image bytes and posts them to a conversation.
func (c *Client) SendImage(ctx context.Context, convID, filename string, data []byte) (*SendResponse, error) {
	return c.sendObject(ctx, convID, filename, "imgpsh", data)
}

// SendAudio uploads audio bytes and posts them to a conversation.
func (c *Client) SendAudio(ctx context.Context, convID, filename string, data []byte) (*SendResponse, error) {
	return c.sendObject(ctx, convID, filename, "audio", data)
}

// SendDocument uploads an arbitrary file and posts it to a conversation.
func (c *Client) SendDocument(ctx context.Context, convID, filename string, data []byte) (*SendResponse, error) {
	return c.sendObject(ctx, convID, filename, "original", data)
}

// sendObject uploads raw bytes to the object store, then posts a message
// referencing the stored object.
func (c *Client) sendObject(ctx context.Context, convID, filename, kind string, data []byte) (*SendResponse, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/objects", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Object-Name", filename)
	req.Header.Set("X-Object-Kind", kind)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &RequestError{Status: resp.StatusCode, Path: "/objects"}
	}
	var objResp struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&objResp); err != nil {
		return nil, fmt.Errorf("failed to decode object upload response: %w", err)
	}

	return c.postMessage(ctx, convID, map[string]string{
		"clientmessageid": uuid.NewString(),
		"messagetype":     "RichText/UriObject",
		"content":         fmt.Sprintf(`<URIObject uri="%s/objects/%s" original_name="%s"/>`, c.baseURL, objResp.ID, filename),
	})
}

// AuthorizedFetch downloads a URL with the session's auth header attached.
// The caller is expected to have normalized the URL already.
func (c *Client) AuthorizedFetch(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	req.Header.Set("Authorization", "skype_token "+c.session.SkypeToken)
	c.mu.Unlock()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &RequestError{Status: resp.StatusCode, Path: fileURL}
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) postMessage(ctx context.Context, convID string, payload map[string]string) (*SendResponse, error) {
	var resp SendResponse
	path := "/conversations/" + url.PathEscape(convID) + "/messages"
	if err := c.post(ctx, path, payload, &resp); err != nil {
		return nil, err
	}
	if resp.ClientMessageID == "" {
		resp.ClientMessageID = payload["clientmessageid"]
	}
	return &resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	req.Header.Set("Authentication", "skypetoken="+c.session.SkypeToken)
	req.Header.Set("RegistrationToken", c.session.RegistrationToken)
	c.mu.Unlock()
	return req, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, path, out)
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

func (c *Client) put(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPut, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, path string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", path, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Reason: fmt.Sprintf("%s returned status %d", path, resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &RequestError{Status: resp.StatusCode, Path: path}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
