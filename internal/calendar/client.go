package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"backoffice/internal/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	DefaultBaseURL = "https://www.googleapis.com/calendar/v3"
	ScopeEvents    = "https://www.googleapis.com/auth/calendar.events"
	primary        = "primary"
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	BaseURL      string
	Endpoint     oauth2.Endpoint
	HTTPClient   *http.Client
}

// Client is a thin wrapper over the Google Calendar v3 REST API, scoped to the primary calendar.
type Client struct {
	oauth      *oauth2.Config
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = endpoints.Google
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{ScopeEvents},
			Endpoint:     endpoint,
		},
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) Configured() bool {
	return c.oauth.ClientID != "" && c.oauth.ClientSecret != ""
}

// AuthCodeURL asks for offline access so a refresh token is issued on every consent
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: google token exchange: %v", domain.ErrUpstreamProvider, err)
	}
	return tok, nil
}

func (c *Client) TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return c.oauth.TokenSource(c.oauthContext(ctx), tok)
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// EventTime is either a timed instant or an all-day date
type EventTime struct {
	DateTime *time.Time `json:"dateTime,omitempty"`
	Date     string     `json:"date,omitempty"`
	TimeZone string     `json:"timeZone,omitempty"`
}

func At(t time.Time) *EventTime {
	t = t.UTC()
	return &EventTime{DateTime: &t}
}

type Event struct {
	ID                 string             `json:"id,omitempty"`
	Summary            string             `json:"summary,omitempty"`
	Description        string             `json:"description,omitempty"`
	Location           string             `json:"location,omitempty"`
	ColorID            string             `json:"colorId,omitempty"`
	Status             string             `json:"status,omitempty"`
	Start              *EventTime         `json:"start,omitempty"`
	End                *EventTime         `json:"end,omitempty"`
	ExtendedProperties *ExtendedProperties `json:"extendedProperties,omitempty"`
}

type ExtendedProperties struct {
	Private map[string]string `json:"private,omitempty"`
}

// InsertEvent creates an event on the primary calendar and returns it with its id
func (c *Client) InsertEvent(ctx context.Context, ts oauth2.TokenSource, ev *Event) (*Event, error) {
	var out Event
	if err := c.do(ctx, ts, http.MethodPost, "/calendars/"+primary+"/events", nil, ev, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PatchEvent updates only the fields set on ev
func (c *Client) PatchEvent(ctx context.Context, ts oauth2.TokenSource, eventID string, ev *Event) (*Event, error) {
	var out Event
	path := "/calendars/" + primary + "/events/" + url.PathEscape(eventID)
	if err := c.do(ctx, ts, http.MethodPatch, path, nil, ev, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListEvents returns single (expanded) events starting in [from, to), ordered by start time
func (c *Client) ListEvents(ctx context.Context, ts oauth2.TokenSource, from, to time.Time) ([]Event, error) {
	var all []Event
	pageToken := ""
	for {
		q := url.Values{
			"timeMin":      {from.UTC().Format(time.RFC3339)},
			"timeMax":      {to.UTC().Format(time.RFC3339)},
			"singleEvents": {"true"},
			"orderBy":      {"startTime"},
			"maxResults":   {"250"},
		}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var page struct {
			Items         []Event `json:"items"`
			NextPageToken string  `json:"nextPageToken"`
		}
		if err := c.do(ctx, ts, http.MethodGet, "/calendars/"+primary+"/events", q, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if page.NextPageToken == "" {
			return all, nil
		}
		pageToken = page.NextPageToken
	}
}

func (c *Client) do(ctx context.Context, ts oauth2.TokenSource, method, path string, query url.Values, in, out interface{}) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := &http.Client{
		Timeout:   c.httpClient.Timeout,
		Transport: &oauth2.Transport{Source: ts, Base: c.httpClient.Transport},
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return fmt.Errorf("%w: google token refresh rejected: %v", domain.ErrIntegrationNotConnected, err)
		}
		return fmt.Errorf("%w: %s %s: %v", domain.ErrUpstreamProvider, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrUpstreamProvider, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: google rejected the access token", domain.ErrIntegrationNotConnected)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s: %w", domain.ErrUpstreamProvider, method, path, domain.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: %s %s: %s", domain.ErrUpstreamProvider, method, path, apiError(resp.Status, raw))
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", domain.ErrUpstreamProvider, path, err)
	}
	return nil
}

func apiError(status string, raw []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Error.Message != "" {
		return status + ": " + e.Error.Message
	}
	return status
}
