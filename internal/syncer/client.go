package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client talks to the remote flashcard service over HTTP. Authentication is
// an opaque bearer token owned by the excluded auth layer.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) GetDecks(ctx context.Context) ([]RemoteDeck, error) {
	var response struct {
		Decks []RemoteDeck `json:"decks"`
	}
	if err := c.getJSON(ctx, "/decks", nil, &response); err != nil {
		return nil, fmt.Errorf("get decks: %w", err)
	}

	return response.Decks, nil
}

func (c *Client) GetDeckBundle(ctx context.Context, deckID string) (*DeckBundle, error) {
	var bundle DeckBundle
	if err := c.getJSON(ctx, "/deck/"+url.PathEscape(deckID), nil, &bundle); err != nil {
		return nil, fmt.Errorf("get deck bundle (deck_id: %s): %w", deckID, err)
	}

	return &bundle, nil
}

func (c *Client) GetChanges(ctx context.Context, since time.Time) (*ChangesResponse, error) {
	params := url.Values{"since": {since.UTC().Format(time.RFC3339Nano)}}

	var changes ChangesResponse
	if err := c.getJSON(ctx, "/sync/changes", params, &changes); err != nil {
		return nil, fmt.Errorf("get changes (since: %s): %w", since.Format(time.RFC3339), err)
	}

	return &changes, nil
}

func (c *Client) PushReviews(ctx context.Context, events []RemoteEvent) (*PushResult, error) {
	payload := struct {
		Events []RemoteEvent `json:"events"`
	}{Events: events}

	var result PushResult
	if err := c.postJSON(ctx, "/reviews", payload, &result); err != nil {
		return nil, fmt.Errorf("push reviews (event_count: %d): %w", len(events), err)
	}

	return &result, nil
}

func (c *Client) PullReviews(ctx context.Context, since time.Time) (*PullPage, error) {
	params := url.Values{"since": {since.UTC().Format(time.RFC3339Nano)}}

	var page PullPage
	if err := c.getJSON(ctx, "/reviews", params, &page); err != nil {
		return nil, fmt.Errorf("pull reviews (since: %s): %w", since.Format(time.RFC3339), err)
	}

	return &page, nil
}

// UploadRecording ships a review's audio out of band. Callers treat failure
// as non-fatal; the binary can be re-uploaded on a later sync.
func (c *Client) UploadRecording(ctx context.Context, reviewID string, recording io.Reader) error {
	endpoint := c.baseURL + "/reviews/" + url.PathEscape(reviewID) + "/recording"

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, recording)
	if err != nil {
		return fmt.Errorf("create request (review_id: %s): %w", reviewID, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request (review_id: %s): %w", reviewID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload recording (review_id: %s, status: %d): %s", reviewID, resp.StatusCode, string(body))
	}

	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, result any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request (url: %s): %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request (url: %s): %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed (url: %s, status: %d): %s", endpoint, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response (url: %s): %w", endpoint, err)
	}

	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, result any) error {
	endpoint := c.baseURL + path

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload (url: %s): %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request (url: %s): %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request (url: %s): %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed (url: %s, status: %d): %s", endpoint, resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response (url: %s): %w", endpoint, err)
	}

	return nil
}
