package dmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	ErrUnauthorized         = errors.New("dmclient: unauthorized")
	ErrInvalidRequest       = errors.New("dmclient: invalid request")
	ErrKeyConflict          = errors.New("dmclient: key record already exists")
	ErrNoKeyRecord          = errors.New("dmclient: user has not set up messaging")
	ErrNotParticipant       = errors.New("dmclient: not a participant")
	ErrConversationNotFound = errors.New("dmclient: conversation not found")
	ErrMessageNotFound      = errors.New("dmclient: message not found")
	ErrConversationRace     = errors.New("dmclient: conversation resolve raced")
)

var codeErrors = map[string]error{
	"unauthorized":           ErrUnauthorized,
	"invalid_request":        ErrInvalidRequest,
	"key_conflict":           ErrKeyConflict,
	"no_key_record":          ErrNoKeyRecord,
	"not_participant":        ErrNotParticipant,
	"conversation_not_found": ErrConversationNotFound,
	"message_not_found":      ErrMessageNotFound,
	"conversation_race":      ErrConversationRace,
}

// APIError is a non-2xx response. errors.Is matches it against the package
// sentinels by its code.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("dmclient: http %d", e.Status)
	}
	return fmt.Sprintf("dmclient: http %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	if sentinel, ok := codeErrors[e.Code]; ok && sentinel == target {
		return true
	}
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// Client is a thin typed wrapper over the HTTP API. It never sees plaintext;
// see Session for the encrypting side.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	dialer  *websocket.Dialer
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 15 * time.Second},
		dialer:  websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ProvisionKeys(ctx context.Context, publicKey, encryptedPrivateKey string) (*KeyRecord, error) {
	var out KeyRecord
	err := c.do(ctx, http.MethodPost, "/v1/keys", provisionKeysRequest{
		PublicKey:           publicKey,
		EncryptedPrivateKey: encryptedPrivateKey,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) OwnKeys(ctx context.Context) (*KeyRecord, error) {
	var out KeyRecord
	if err := c.do(ctx, http.MethodGet, "/v1/keys/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PublicKey(ctx context.Context, userID uuid.UUID) (string, error) {
	var out publicKeyResponse
	if err := c.do(ctx, http.MethodGet, "/v1/keys/"+userID.String()+"/public", nil, &out); err != nil {
		return "", err
	}
	return out.PublicKey, nil
}

func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	var out conversationList
	if err := c.do(ctx, http.MethodGet, "/v1/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

func (c *Client) ResolveConversation(ctx context.Context, peer uuid.UUID) (*Conversation, error) {
	var out Conversation
	if err := c.do(ctx, http.MethodPost, "/v1/conversations", resolveConversationRequest{PeerID: peer.String()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Messages fetches one history page; zero page or pageSize use the server
// defaults.
func (c *Client) Messages(ctx context.Context, convID uuid.UUID, page, pageSize int) (*MessagePage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}
	path := "/v1/conversations/" + convID.String() + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out MessagePage
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Message(ctx context.Context, msgID uuid.UUID) (*Message, error) {
	var out Message
	if err := c.do(ctx, http.MethodGet, "/v1/messages/"+msgID.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Send(ctx context.Context, req SendRequest) (*Message, error) {
	var out Message
	if err := c.do(ctx, http.MethodPost, "/v1/messages", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MarkConversationSeen(ctx context.Context, convID uuid.UUID) (int64, error) {
	var out markSeenResponse
	if err := c.do(ctx, http.MethodPost, "/v1/conversations/"+convID.String()+"/seen", nil, &out); err != nil {
		return 0, err
	}
	return out.Updated, nil
}

func (c *Client) MarkMessageSeen(ctx context.Context, msgID uuid.UUID) (*Message, error) {
	var out Message
	if err := c.do(ctx, http.MethodPost, "/v1/messages/"+msgID.String()+"/seen", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UnreadCount(ctx context.Context) (int64, error) {
	var out unreadCountResponse
	if err := c.do(ctx, http.MethodGet, "/v1/unread-count", nil, &out); err != nil {
		return 0, err
	}
	return out.Unread, nil
}

// Stream opens the event websocket. The returned channel closes when ctx is
// cancelled or the connection drops.
func (c *Client) Stream(ctx context.Context) (<-chan Event, error) {
	wsURL, err := websocketURL(c.baseURL + "/v1/stream")
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			defer func() { _ = resp.Body.Close() }()
			return nil, decodeError(resp)
		}
		return nil, fmt.Errorf("dial stream: %w", err)
	}

	out := make(chan Event)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(out)
		defer close(done)
		defer func() { _ = conn.Close() }()
		for {
			var ev Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode}
	var body errorResponse
	if err := json.Unmarshal(data, &body); err == nil && (body.Code != "" || body.Error != "") {
		apiErr.Code = body.Code
		apiErr.Message = body.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
		if apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
	}
	return apiErr
}

func websocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}
