package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/clubhub-app/clubhub/backend/internal/model/chat"
)

// DefaultPageLimit mirrors the server's default page size.
const DefaultPageLimit = 50

// Client talks to the club backend's message REST API. It implements the
// session controller's Persistence collaborator; real-time delivery is not
// its job and happens over the socket channel.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for baseURL, authenticating every request with
// the bearer token. Requests carry no client-enforced timeout; callers bound
// them through ctx if they need to.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{},
	}
}

// FetchPage retrieves the latest page of messages for roomID.
func (c *Client) FetchPage(ctx context.Context, roomID string) ([]chat.Message, error) {
	return c.fetch(ctx, roomID, url.Values{
		"page":  []string{"1"},
		"limit": []string{fmt.Sprint(DefaultPageLimit)},
	})
}

// FetchPageBefore retrieves the page of messages older than beforeID, for
// scroll-back paging.
func (c *Client) FetchPageBefore(ctx context.Context, roomID, beforeID string) ([]chat.Message, error) {
	return c.fetch(ctx, roomID, url.Values{
		"before": []string{beforeID},
		"limit":  []string{fmt.Sprint(DefaultPageLimit)},
	})
}

func (c *Client) fetch(ctx context.Context, roomID string, query url.Values) ([]chat.Message, error) {
	var data struct {
		Messages []wireMessage `json:"messages"`
	}
	path := fmt.Sprintf("messages/club/%s?%s", roomID, query.Encode())
	if err := c.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}

	out := make([]chat.Message, 0, len(data.Messages))
	for _, m := range data.Messages {
		out = append(out, m.toModel())
	}
	return out, nil
}

// Send persists a new text message and returns the server's copy.
func (c *Client) Send(ctx context.Context, roomID, body string) (chat.Message, error) {
	var data wireMessage
	payload := map[string]string{"content": body, "type": string(chat.KindText)}
	if err := c.do(ctx, http.MethodPost, "messages/club/"+roomID, payload, &data); err != nil {
		return chat.Message{}, err
	}
	return data.toModel(), nil
}

// Edit replaces a message's body and returns the server's copy.
func (c *Client) Edit(ctx context.Context, messageID, body string) (chat.Message, error) {
	var data wireMessage
	payload := map[string]string{"content": body}
	if err := c.do(ctx, http.MethodPut, "messages/"+messageID, payload, &data); err != nil {
		return chat.Message{}, err
	}
	return data.toModel(), nil
}

// Delete removes a message.
func (c *Client) Delete(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodDelete, "messages/"+messageID, nil, nil)
}

// AddReply posts a threaded reply under a message and returns the server's
// copy.
func (c *Client) AddReply(ctx context.Context, messageID, body string) (chat.Reply, error) {
	var data wireReply
	payload := map[string]string{"content": body}
	if err := c.do(ctx, http.MethodPost, "messages/"+messageID+"/replies", payload, &data); err != nil {
		return chat.Reply{}, err
	}
	return data.toModel(), nil
}

// AddReaction attaches the user's emoji reaction to a message.
func (c *Client) AddReaction(ctx context.Context, messageID, emoji string) error {
	payload := map[string]string{"emoji": emoji}
	return c.do(ctx, http.MethodPost, "messages/"+messageID+"/reactions", payload, nil)
}

// RemoveReaction detaches the user's emoji reaction from a message.
func (c *Client) RemoveReaction(ctx context.Context, messageID, emoji string) error {
	path := "messages/" + messageID + "/reactions/" + url.PathEscape(emoji)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// do issues one request and decodes the server's {success, data, message}
// envelope into out.
func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !envelope.Success {
		msg := envelope.Message
		if msg == "" {
			msg = resp.Status
		}
		return fmt.Errorf("%s %s: %s", method, path, msg)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("%s %s: decode data: %w", method, path, err)
		}
	}
	return nil
}

// wireUser is the populated user reference on message and reply documents.
type wireUser struct {
	ID        string `json:"_id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Avatar    string `json:"avatar,omitempty"`
}

func (w wireUser) toModel() chat.Author {
	name := w.FirstName
	if w.LastName != "" {
		if name != "" {
			name += " "
		}
		name += w.LastName
	}
	return chat.Author{ID: w.ID, Name: name, Avatar: w.Avatar}
}

// wireReply is the server's reply subdocument shape.
type wireReply struct {
	ID        string    `json:"_id"`
	User      wireUser  `json:"user"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func (w wireReply) toModel() chat.Reply {
	return chat.Reply{
		ID:        w.ID,
		Author:    w.User.toModel(),
		Body:      w.Content,
		CreatedAt: w.CreatedAt,
	}
}

// wireMessage is the server's message document shape.
type wireMessage struct {
	ID       string   `json:"_id"`
	Club     string   `json:"club"`
	User     wireUser `json:"user"`
	Content  string   `json:"content"`
	Type     string   `json:"type"`
	Metadata struct {
		Edited   bool       `json:"edited,omitempty"`
		EditedAt *time.Time `json:"editedAt,omitempty"`
	} `json:"metadata,omitempty"`
	Replies   []wireReply `json:"replies,omitempty"`
	Reactions []struct {
		User      string    `json:"user"`
		Emoji     string    `json:"emoji"`
		CreatedAt time.Time `json:"createdAt"`
	} `json:"reactions,omitempty"`
	ReadBy []struct {
		User   string    `json:"user"`
		ReadAt time.Time `json:"readAt"`
	} `json:"readBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (w wireMessage) toModel() chat.Message {
	msg := chat.Message{
		ID:            w.ID,
		RoomID:        w.Club,
		Author:        w.User.toModel(),
		Body:          w.Content,
		Kind:          chat.Kind(w.Type),
		CreatedAt:     w.CreatedAt,
		EditedAt:      w.Metadata.EditedAt,
		DeliveryState: chat.DeliveryConfirmed,
	}
	for _, r := range w.Replies {
		msg.Replies = append(msg.Replies, r.toModel())
	}
	for _, r := range w.Reactions {
		msg.Reactions = append(msg.Reactions, chat.Reaction{
			UserID:    r.User,
			Emoji:     r.Emoji,
			CreatedAt: r.CreatedAt,
		})
	}
	for _, r := range w.ReadBy {
		msg.ReadBy = append(msg.ReadBy, chat.ReadReceipt{
			UserID: r.User,
			ReadAt: r.ReadAt,
		})
	}
	return msg
}
