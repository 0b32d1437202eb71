// internal/clients/notifications_client.go
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"circulib/internal/circulation"
)

// NotificationsClient talks to the notifications service. Delivery is
// best-effort: callers log failures and move on, and a circuit breaker
// keeps a down notifications service from slowing down circulation.
type NotificationsClient struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewNotificationsClient(baseURL string) *NotificationsClient {
	return &NotificationsClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "notifications",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// SendDatesUpdated notifies the patron that the dates of an active loan
// changed.
func (c *NotificationsClient) SendDatesUpdated(ctx context.Context, loan *circulation.Loan) error {
	return c.send(ctx, "loan_dates_updated", loan)
}

// SendLoanExtended notifies the patron that a loan was extended.
func (c *NotificationsClient) SendLoanExtended(ctx context.Context, loan *circulation.Loan) error {
	return c.send(ctx, "loan_extended", loan)
}

func (c *NotificationsClient) send(ctx context.Context, kind string, loan *circulation.Loan) error {
	payload := struct {
		Kind      string            `json:"kind"`
		LoanPID   string            `json:"loan_pid"`
		PatronPID string            `json:"patron_pid"`
		Loan      *circulation.Loan `json:"loan"`
	}{
		Kind:      kind,
		LoanPID:   loan.PID,
		PatronPID: loan.PatronPID,
		Loan:      loan,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s notification: %w", kind, err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/notifications", bytes.NewBuffer(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusMultipleChoices {
			return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		return nil, nil
	})
	return err
}
