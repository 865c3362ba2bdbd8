package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	ldto "github.com/apostabot/apostabot/internal/bet-service/ledger/dto"
	"github.com/apostabot/apostabot/internal/bet-service/manager"
)

// Client fala com o ledger-service por HTTP e implementa manager.Ledger.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(base string) *Client {
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 2 * time.Second},
	}
}

func (c *Client) Reserve(ctx context.Context, user, tag string, amount int64) error {
	return c.post(ctx, "/ledger/reserve", ldto.ReserveRequest{UserID: user, Tag: tag, Amount: amount})
}

func (c *Client) Unreserve(ctx context.Context, user, tag string) error {
	return c.post(ctx, "/ledger/unreserve", ldto.UnreserveRequest{UserID: user, Tag: tag})
}

func (c *Client) ClearReservations(ctx context.Context, tag string) error {
	return c.post(ctx, "/ledger/reservations/clear", ldto.ClearReservationsRequest{Tag: tag})
}

func (c *Client) Transactions(ctx context.Context, batch []manager.Transaction) error {
	req := ldto.TransactionsRequest{Transactions: make([]ldto.TransactionItem, 0, len(batch))}
	for _, t := range batch {
		req.Transactions = append(req.Transactions, ldto.TransactionItem{
			UserID:      t.User,
			Amount:      t.Amount,
			Description: t.Description,
		})
	}
	return c.post(ctx, "/ledger/transactions", req)
}

// Ping confere se o ledger está de pé; usado no healthcheck do bet-service.
// A rota de health não tem efeito colateral nenhum no banco.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/ledger/health", nil)
	if err != nil {
		return err
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("ledger http %d", res.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return fmt.Errorf("ledger %s http %d", path, res.StatusCode)
	}
	return nil
}
