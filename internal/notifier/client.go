// Package notifier предоставляет клиент для внешнего сервиса уведомлений.
// Доставка уведомлений идёт по принципу "отправил и забыл": сбой доставки
// логируется вызывающей стороной и никогда не откатывает породившую его
// операцию.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mmeshcher/pointshop-system/internal/model"
)

// Client инкапсулирует HTTP-взаимодействие с сервисом уведомлений.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// NewClient создаёт клиент уведомлений по указанному адресу.
func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 1 * time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc,
	}
}

type orderEvent struct {
	OrderID int64  `json:"order_id"`
	UserID  int64  `json:"user_id"`
	Total   int64  `json:"total"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("notifier client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}

// NotifyNewOrder отправляет событие о новом заказе.
func (c *Client) NotifyNewOrder(ctx context.Context, order *model.Order) error {
	return c.post(ctx, "/api/events/order-created", orderEvent{
		OrderID: order.ID,
		UserID:  order.UserID,
		Total:   order.Total,
		Status:  string(order.Status),
	})
}

// NotifyOrderCancelled отправляет событие об отмене заказа.
func (c *Client) NotifyOrderCancelled(ctx context.Context, order *model.Order, reason string) error {
	return c.post(ctx, "/api/events/order-cancelled", orderEvent{
		OrderID: order.ID,
		UserID:  order.UserID,
		Total:   order.Total,
		Status:  string(order.Status),
		Reason:  reason,
	})
}
