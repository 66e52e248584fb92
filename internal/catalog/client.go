// Package catalog предоставляет клиент для внешнего сервиса каталога призов.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrArticleNotFound возвращается, если позиция каталога не существует.
var ErrArticleNotFound = errors.New("article not found")

// Client инкапсулирует HTTP-взаимодействие с каталогом.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Article описывает позицию каталога в ответе внешнего сервиса.
// Цена указана в баллах.
type Article struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	Price     int64  `json:"price"`
	Available bool   `json:"available"`
	Digital   bool   `json:"digital"`
	Stock     int32  `json:"stock"`
}

// NewClient создаёт HTTP-клиент каталога по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *Client) url(path string) string {
	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return base + path
}

// GetArticle запрашивает позицию каталога по идентификатору.
func (c *Client) GetArticle(ctx context.Context, articleID int64) (*Article, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("catalog client not configured")
	}

	url := c.url(fmt.Sprintf("/api/articles/%d", articleID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrArticleNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result Article
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &result, nil
}

type visibilityResponse struct {
	Visible bool `json:"visible"`
}

// IsVisible сообщает, видна ли позиция каталога указанному пользователю.
func (c *Client) IsVisible(ctx context.Context, articleID, userID int64) (bool, error) {
	if c == nil || c.baseURL == "" {
		return false, fmt.Errorf("catalog client not configured")
	}

	url := c.url(fmt.Sprintf("/api/articles/%d/visibility?user_id=%d", articleID, userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, ErrArticleNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result visibilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}

	return result.Visible, nil
}
