package pipedrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dealflow-backend/internal/integration/domain"
)

// Client wraps the Pipedrive REST API v2. Access tokens come in per call from
// the token vault.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(companyDomain string) *Client {
	return &Client{
		baseURL: fmt.Sprintf("https://%s.pipedrive.com/api/v2", companyDomain),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// SetBaseURL points the client at a different endpoint. Used by tests.
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

type Person struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	OrgID  int    `json:"org_id"`
	Emails []struct {
		Value   string `json:"value"`
		Primary bool   `json:"primary"`
	} `json:"emails"`
}

type Organization struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Deal struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	PersonID int    `json:"person_id"`
	OrgID    int    `json:"org_id"`
	Value    int    `json:"value"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type Note struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
	DealID  int    `json:"deal_id"`
}

// SearchPersonByEmail returns the first person whose email matches exactly,
// or nil when no exact match exists. Pipedrive search is fuzzy, so the
// results are filtered against the query case-insensitively.
func (c *Client) SearchPersonByEmail(ctx context.Context, accessToken, email string) (*Person, error) {
	query := url.Values{"term": {email}, "fields": {"email"}}
	var out struct {
		Data struct {
			Items []struct {
				Item struct {
					ID           int      `json:"id"`
					Name         string   `json:"name"`
					Emails       []string `json:"emails"`
					Organization struct {
						ID int `json:"id"`
					} `json:"organization"`
				} `json:"item"`
			} `json:"items"`
		} `json:"data"`
	}
	if err := c.get(ctx, accessToken, "/persons/search", query, &out); err != nil {
		return nil, err
	}

	for _, item := range out.Data.Items {
		for _, candidate := range item.Item.Emails {
			if strings.EqualFold(candidate, email) {
				return &Person{
					ID:    item.Item.ID,
					Name:  item.Item.Name,
					OrgID: item.Item.Organization.ID,
				}, nil
			}
		}
	}
	return nil, nil
}

func (c *Client) CreatePerson(ctx context.Context, accessToken, name, email string, orgID int) (*Person, error) {
	payload := map[string]interface{}{
		"name": name,
		"emails": []map[string]interface{}{
			{"value": email, "primary": true},
		},
	}
	if orgID > 0 {
		payload["org_id"] = orgID
	}
	var out struct {
		Data Person `json:"data"`
	}
	if err := c.post(ctx, accessToken, "/persons", payload, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// SearchOrganizationByName returns the first organization matching the name,
// or nil when none matches.
func (c *Client) SearchOrganizationByName(ctx context.Context, accessToken, name string) (*Organization, error) {
	query := url.Values{"term": {name}}
	var out struct {
		Data struct {
			Items []struct {
				Item Organization `json:"item"`
			} `json:"items"`
		} `json:"data"`
	}
	if err := c.get(ctx, accessToken, "/organizations/search", query, &out); err != nil {
		return nil, err
	}
	for _, item := range out.Data.Items {
		if strings.EqualFold(item.Item.Name, name) {
			org := item.Item
			return &org, nil
		}
	}
	return nil, nil
}

func (c *Client) CreateOrganization(ctx context.Context, accessToken, name string) (*Organization, error) {
	var out struct {
		Data Organization `json:"data"`
	}
	if err := c.post(ctx, accessToken, "/organizations", map[string]interface{}{"name": name}, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// HasOpenDeal reports whether the person has any deal in status open.
func (c *Client) HasOpenDeal(ctx context.Context, accessToken string, personID int) (bool, error) {
	query := url.Values{"person_id": {strconv.Itoa(personID)}, "status": {"open"}}
	var out struct {
		Data []Deal `json:"data"`
	}
	if err := c.get(ctx, accessToken, "/deals", query, &out); err != nil {
		return false, err
	}
	return len(out.Data) > 0, nil
}

func (c *Client) CreateDeal(ctx context.Context, accessToken, title string, personID, orgID, value int, currency string) (*Deal, error) {
	payload := map[string]interface{}{
		"title":     title,
		"person_id": personID,
		"value":     value,
		"currency":  currency,
	}
	if orgID > 0 {
		payload["org_id"] = orgID
	}
	var out struct {
		Data Deal `json:"data"`
	}
	if err := c.post(ctx, accessToken, "/deals", payload, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) CreateNote(ctx context.Context, accessToken, content string, dealID int) (*Note, error) {
	payload := map[string]interface{}{
		"content": content,
		"deal_id": dealID,
	}
	var out struct {
		Data Note `json:"data"`
	}
	if err := c.post(ctx, accessToken, "/notes", payload, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) get(ctx context.Context, accessToken, path string, query url.Values, out interface{}) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("unable to build pipedrive request: %v", err)
	}
	return c.do(req, accessToken, out)
}

func (c *Client) post(ctx context.Context, accessToken, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("unable to encode pipedrive payload: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("unable to build pipedrive request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, accessToken, out)
}

func (c *Client) do(req *http.Request, accessToken string, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: pipedrive returned 401: %s", domain.ErrUnauthorized, body)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("%w: pipedrive returned %d: %s", domain.ErrProviderUnavailable, resp.StatusCode, body)
		default:
			return fmt.Errorf("pipedrive returned %d: %s", resp.StatusCode, body)
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("unable to decode pipedrive response: %v", err)
	}
	return nil
}
