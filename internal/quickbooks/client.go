package quickbooks

import (
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
)

const (
	minorVersion = "75"
	pageSize     = 1000
)

// Endpoint is Intuit's OAuth 2.0 endpoint
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://appcenter.intuit.com/connect/oauth2",
	TokenURL:  "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer",
	AuthStyle: oauth2.AuthStyleInHeader,
}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	BaseURL      string // e.g. https://sandbox-quickbooks.api.intuit.com
	Endpoint     oauth2.Endpoint
	HTTPClient   *http.Client
}

// Client talks to the QuickBooks Online accounting API on behalf of a connected company.
type Client struct {
	oauth      *oauth2.Config
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = Endpoint
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{"com.intuit.quickbooks.accounting"},
			Endpoint:     endpoint,
		},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
	}
}

// Configured reports whether OAuth credentials were supplied
func (c *Client) Configured() bool {
	return c.oauth.ClientID != "" && c.oauth.ClientSecret != ""
}

func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: quickbooks token exchange: %v", domain.ErrUpstreamProvider, err)
	}
	return tok, nil
}

// TokenSource returns a source that refreshes tok when it expires
func (c *Client) TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return c.oauth.TokenSource(c.oauthContext(ctx), tok)
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// QueryCustomers pages through every customer of the company
func (c *Client) QueryCustomers(ctx context.Context, ts oauth2.TokenSource, realmID string) ([]Customer, error) {
	return queryAll(ctx, c, ts, realmID, EntityCustomer, func(r queryResponse) []Customer { return r.QueryResponse.Customer })
}

// QueryItems pages through every item of the company
func (c *Client) QueryItems(ctx context.Context, ts oauth2.TokenSource, realmID string) ([]Item, error) {
	return queryAll(ctx, c, ts, realmID, EntityItem, func(r queryResponse) []Item { return r.QueryResponse.Item })
}

// QueryInvoices pages through every invoice of the company
func (c *Client) QueryInvoices(ctx context.Context, ts oauth2.TokenSource, realmID string) ([]Invoice, error) {
	return queryAll(ctx, c, ts, realmID, EntityInvoice, func(r queryResponse) []Invoice { return r.QueryResponse.Invoice })
}

func (c *Client) GetCustomer(ctx context.Context, ts oauth2.TokenSource, realmID, id string) (*Customer, error) {
	var out struct {
		Customer Customer `json:"Customer"`
	}
	if err := c.read(ctx, ts, realmID, EntityCustomer, id, &out); err != nil {
		return nil, err
	}
	return &out.Customer, nil
}

func (c *Client) GetItem(ctx context.Context, ts oauth2.TokenSource, realmID, id string) (*Item, error) {
	var out struct {
		Item Item `json:"Item"`
	}
	if err := c.read(ctx, ts, realmID, EntityItem, id, &out); err != nil {
		return nil, err
	}
	return &out.Item, nil
}

func (c *Client) GetInvoice(ctx context.Context, ts oauth2.TokenSource, realmID, id string) (*Invoice, error) {
	var out struct {
		Invoice Invoice `json:"Invoice"`
	}
	if err := c.read(ctx, ts, realmID, EntityInvoice, id, &out); err != nil {
		return nil, err
	}
	return &out.Invoice, nil
}

func queryAll[T any](ctx context.Context, c *Client, ts oauth2.TokenSource, realmID, entity string, extract func(queryResponse) []T) ([]T, error) {
	var all []T
	for start := 1; ; start += pageSize {
		q := fmt.Sprintf("SELECT * FROM %s STARTPOSITION %d MAXRESULTS %d", entity, start, pageSize)

		var resp queryResponse
		path := "/v3/company/" + url.PathEscape(realmID) + "/query"
		if err := c.do(ctx, ts, http.MethodGet, path, url.Values{"query": {q}}, &resp); err != nil {
			return nil, err
		}

		page := extract(resp)
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

func (c *Client) read(ctx context.Context, ts oauth2.TokenSource, realmID, entity, id string, out interface{}) error {
	path := "/v3/company/" + url.PathEscape(realmID) + "/" + strings.ToLower(entity) + "/" + url.PathEscape(id)
	return c.do(ctx, ts, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, ts oauth2.TokenSource, method, path string, query url.Values, out interface{}) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("minorversion", minorVersion)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	httpClient := &http.Client{
		Timeout:   c.httpClient.Timeout,
		Transport: &oauth2.Transport{Source: ts, Base: c.httpClient.Transport},
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return fmt.Errorf("%w: token refresh rejected: %v", domain.ErrIntegrationNotConnected, err)
		}
		return fmt.Errorf("%w: %s %s: %v", domain.ErrUpstreamProvider, method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrUpstreamProvider, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: quickbooks rejected the access token", domain.ErrIntegrationNotConnected)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s: %s", domain.ErrUpstreamProvider, method, path, faultMessage(resp.Status, body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", domain.ErrUpstreamProvider, path, err)
	}
	return nil
}

func faultMessage(status string, body []byte) string {
	var f fault
	if json.Unmarshal(body, &f) == nil && len(f.Fault.Error) > 0 {
		e := f.Fault.Error[0]
		return fmt.Sprintf("%s: %s (%s)", status, e.Message, e.Detail)
	}
	return status
}
