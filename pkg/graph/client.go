package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dealflow-backend/internal/integration/domain"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// Client is a thin Microsoft Graph HTTP client. Access tokens are passed per
// call so the token vault stays the single owner of credential lifetime.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient() *Client {
	return &Client{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// SetBaseURL points the client at a different Graph endpoint. Used by tests.
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

// Subscription is a Graph change notification subscription.
type Subscription struct {
	ID                 string    `json:"id"`
	Resource           string    `json:"resource"`
	ChangeType         string    `json:"changeType"`
	NotificationURL    string    `json:"notificationUrl"`
	ClientState        string    `json:"clientState"`
	ExpirationDateTime time.Time `json:"expirationDateTime"`
}

// Message is the subset of a Graph mail message the pipeline reads.
type Message struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    struct {
		EmailAddress EmailAddress `json:"emailAddress"`
	} `json:"from"`
	ToRecipients []struct {
		EmailAddress EmailAddress `json:"emailAddress"`
	} `json:"toRecipients"`
	ReceivedDateTime time.Time `json:"receivedDateTime"`
	BodyPreview      string    `json:"bodyPreview"`
	Body             struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
}

type EmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (c *Client) CreateSubscription(ctx context.Context, accessToken string, sub Subscription) (*Subscription, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("unable to encode subscription: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/subscriptions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("unable to build subscription request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var created Subscription
	if err := c.do(req, accessToken, http.StatusCreated, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) RenewSubscription(ctx context.Context, accessToken, subscriptionID string, expiration time.Time) (*Subscription, error) {
	body, err := json.Marshal(map[string]string{
		"expirationDateTime": expiration.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to encode renewal: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+"/subscriptions/"+subscriptionID, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("unable to build renewal request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var renewed Subscription
	if err := c.do(req, accessToken, http.StatusOK, &renewed); err != nil {
		return nil, err
	}
	return &renewed, nil
}

func (c *Client) DeleteSubscription(ctx context.Context, accessToken, subscriptionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/subscriptions/"+subscriptionID, nil)
	if err != nil {
		return fmt.Errorf("unable to build delete request: %v", err)
	}
	return c.do(req, accessToken, http.StatusNoContent, nil)
}

func (c *Client) GetMessage(ctx context.Context, accessToken, messageID string) (*Message, error) {
	url := c.baseURL + "/me/messages/" + messageID +
		"?$select=id,subject,from,toRecipients,receivedDateTime,bodyPreview,body"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to build message request: %v", err)
	}

	var msg Message
	if err := c.do(req, accessToken, http.StatusOK, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetMessageMIME fetches the raw RFC 5322 form of a message.
func (c *Client) GetMessageMIME(ctx context.Context, accessToken, messageID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me/messages/"+messageID+"/$value", nil)
	if err != nil {
		return nil, fmt.Errorf("unable to build mime request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read mime body: %v", err)
	}
	return raw, nil
}

func (c *Client) do(req *http.Request, accessToken string, wantStatus int, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, wantStatus); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("unable to decode graph response: %v", err)
	}
	return nil
}

func checkStatus(resp *http.Response, want int) error {
	if resp.StatusCode == want {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: graph returned 401: %s", domain.ErrUnauthorized, body)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: graph returned %d: %s", domain.ErrProviderUnavailable, resp.StatusCode, body)
	default:
		return fmt.Errorf("graph returned %d: %s", resp.StatusCode, body)
	}
}
