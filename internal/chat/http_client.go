package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// HTTPClient implements Client against the platform REST API. Calls flow
// through a token-bucket limiter (the platform rate-limits per bot) and a
// circuit breaker, so a platform outage degrades to fast transient failures
// instead of piles of blocked goroutines.
type HTTPClient struct {
	baseURL  string
	botToken string
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker

	// dmChannels caches user -> DM channel so reminder fan-out does not
	// reopen a channel per DM.
	dmChannels *lru.Cache[int64, int64]
}

func NewHTTPClient(baseURL, botToken string, rps float64) (*HTTPClient, error) {
	dmCache, err := lru.New[int64, int64](4096)
	if err != nil {
		return nil, fmt.Errorf("chat: dm channel cache: %w", err)
	}
	return &HTTPClient{
		baseURL:  baseURL,
		botToken: botToken,
		http:     &http.Client{Timeout: DefaultTimeout},
		limiter:  rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "chat-platform",
			MaxRequests: 3,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
		dmChannels: dmCache,
	}, nil
}

type apiMessage struct {
	Content    string         `json:"content"`
	Embeds     []apiEmbed     `json:"embeds,omitempty"`
	Components []apiActionRow `json:"components,omitempty"`
}

type apiEmbed struct {
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Color       int             `json:"color,omitempty"`
	Fields      []apiEmbedField `json:"fields,omitempty"`
}

type apiEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type apiActionRow struct {
	Type       int         `json:"type"`
	Components []apiButton `json:"components"`
}

type apiButton struct {
	Type     int    `json:"type"`
	Style    int    `json:"style"`
	Label    string `json:"label"`
	CustomID string `json:"custom_id"`
	Disabled bool   `json:"disabled,omitempty"`
}

func toAPIMessage(msg OutboundMessage) apiMessage {
	out := apiMessage{Content: msg.Content}
	if msg.Embed != nil {
		e := apiEmbed{
			Title:       msg.Embed.Title,
			Description: msg.Embed.Description,
			Color:       msg.Embed.Color,
		}
		for _, f := range msg.Embed.Fields {
			e.Fields = append(e.Fields, apiEmbedField(f))
		}
		out.Embeds = []apiEmbed{e}
	}
	if len(msg.Buttons) > 0 {
		row := apiActionRow{Type: 1}
		for _, b := range msg.Buttons {
			row.Components = append(row.Components, apiButton{
				Type: 2, Style: 1, Label: b.Label, CustomID: b.CustomID, Disabled: b.Disabled,
			})
		}
		out.Components = []apiActionRow{row}
	}
	return out
}

// do runs one API call through the limiter and breaker, decoding the JSON
// response into out when non-nil.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return Transient(err)
	}

	_, err := c.breaker.Execute(func() (any, error) {
		var reader *bytes.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("chat: encode request: %w", err)
			}
			reader = bytes.NewReader(raw)
		} else {
			reader = bytes.NewReader(nil)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("chat: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bot "+c.botToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, Transient(err)
		}
		defer resp.Body.Close()

		if err := classifyStatus(resp.StatusCode); err != nil {
			return nil, err
		}
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return nil, fmt.Errorf("chat: decode response: %w", err)
			}
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Transient(err)
	}
	return err
}

func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return ErrMessageGone
	case status == http.StatusForbidden:
		return ErrDMForbidden
	case status == http.StatusConflict:
		return ErrAlreadyAcked
	case status == http.StatusTooManyRequests || status >= 500:
		return Transient(fmt.Errorf("chat: platform status %d", status))
	default:
		return fmt.Errorf("chat: platform status %d", status)
	}
}

type idResponse struct {
	ID string `json:"id"`
}

func (r idResponse) int64() (int64, error) {
	return strconv.ParseInt(r.ID, 10, 64)
}

func (c *HTTPClient) CreateMessage(ctx context.Context, channelID int64, msg OutboundMessage) (int64, error) {
	var resp idResponse
	err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/channels/%d/messages", channelID), toAPIMessage(msg), &resp)
	if err != nil {
		return 0, err
	}
	return resp.int64()
}

func (c *HTTPClient) EditMessage(ctx context.Context, channelID, messageID int64, msg OutboundMessage) error {
	return c.do(ctx, http.MethodPatch,
		fmt.Sprintf("/channels/%d/messages/%d", channelID, messageID), toAPIMessage(msg), nil)
}

func (c *HTTPClient) DeleteMessage(ctx context.Context, channelID, messageID int64) error {
	return c.do(ctx, http.MethodDelete,
		fmt.Sprintf("/channels/%d/messages/%d", channelID, messageID), nil, nil)
}

func (c *HTTPClient) SendDM(ctx context.Context, userID int64, content string) error {
	dmChannel, ok := c.dmChannels.Get(userID)
	if !ok {
		var resp idResponse
		err := c.do(ctx, http.MethodPost, "/users/@me/channels",
			map[string]string{"recipient_id": strconv.FormatInt(userID, 10)}, &resp)
		if err != nil {
			return err
		}
		dmChannel, err = resp.int64()
		if err != nil {
			return fmt.Errorf("chat: bad DM channel id: %w", err)
		}
		c.dmChannels.Add(userID, dmChannel)
	}
	_, err := c.CreateMessage(ctx, dmChannel, OutboundMessage{Content: content})
	if errors.Is(err, ErrMessageGone) {
		// Stale cached channel; reopen once.
		c.dmChannels.Remove(userID)
		return Transient(err)
	}
	return err
}

type apiMember struct {
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
	Nick  string   `json:"nick"`
	Roles []string `json:"roles"`
}

func (m apiMember) toMember() (Member, error) {
	id, err := strconv.ParseInt(m.User.ID, 10, 64)
	if err != nil {
		return Member{}, fmt.Errorf("chat: bad member id %q: %w", m.User.ID, err)
	}
	out := Member{UserExternalID: id, Username: m.User.Username, DisplayName: m.Nick}
	if out.DisplayName == "" {
		out.DisplayName = m.User.Username
	}
	for _, r := range m.Roles {
		rid, err := strconv.ParseInt(r, 10, 64)
		if err != nil {
			continue
		}
		out.RoleIDs = append(out.RoleIDs, rid)
	}
	return out, nil
}

func (c *HTTPClient) SearchMembers(ctx context.Context, tenantID int64, query string, limit int) ([]Member, error) {
	var raw []apiMember
	path := fmt.Sprintf("/guilds/%d/members/search?query=%s&limit=%d",
		tenantID, url.QueryEscape(query), limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]Member, 0, len(raw))
	for _, m := range raw {
		member, err := m.toMember()
		if err != nil {
			continue
		}
		out = append(out, member)
	}
	return out, nil
}

func (c *HTTPClient) GetMember(ctx context.Context, tenantID, userID int64) (Member, error) {
	var raw apiMember
	path := fmt.Sprintf("/guilds/%d/members/%d", tenantID, userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return Member{}, err
	}
	return raw.toMember()
}

func (c *HTTPClient) MembersWithAnyRole(ctx context.Context, tenantID int64, roleIDs []int64) ([]Member, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	// The platform offers no role-membership query; page the member list
	// and filter. Capped to one page; notify roles are expected small.
	var raw []apiMember
	path := fmt.Sprintf("/guilds/%d/members?limit=1000", tenantID)
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	want := make(map[int64]bool, len(roleIDs))
	for _, r := range roleIDs {
		want[r] = true
	}
	var out []Member
	for _, m := range raw {
		member, err := m.toMember()
		if err != nil {
			continue
		}
		for _, r := range member.RoleIDs {
			if want[r] {
				out = append(out, member)
				break
			}
		}
	}
	return out, nil
}

func (c *HTTPClient) AckInteraction(ctx context.Context, interactionID uuid.UUID, token string) error {
	// Type 6 = deferred update: buys the handler time past the 3s budget
	// without posting anything visible.
	return c.do(ctx, http.MethodPost,
		fmt.Sprintf("/interactions/%s/%s/callback", interactionID, token),
		map[string]int{"type": 6}, nil)
}
