package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SocialClient reads follow lists from the social-graph service. It is only
// consulted when a user's follow set has never been cached.
type SocialClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewSocialClient(baseURL string) *SocialClient {
	if baseURL == "" {
		return nil
	}
	return &SocialClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *SocialClient) FetchFollowing(ctx context.Context, userID string) ([]string, error) {
	url := fmt.Sprintf("%s/users/%s/following", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("social service error: %s", string(body))
	}

	var out struct {
		Items []string `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Items, nil
}
