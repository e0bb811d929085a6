package sqsqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"zapmark/internal/domain"
)

// EventProducer mirrors dispatch-log entries onto an SQS queue feeding
// the dashboard's live activity view. Losing an event is acceptable;
// the dispatch log in Postgres stays the source of truth.
type EventProducer struct {
	SQS      *sqs.Client
	QueueURL string
}

type dispatchEvent struct {
	ID           string    `json:"id"`
	AutomationID string    `json:"automationId"`
	Store        string    `json:"store,omitempty"`
	GroupJID     string    `json:"groupJid,omitempty"`
	ProductURL   string    `json:"productUrl,omitempty"`
	AffiliateURL string    `json:"affiliateUrl,omitempty"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (p *EventProducer) Publish(ctx context.Context, e domain.DispatchEntry) error {
	body, err := json.Marshal(dispatchEvent{
		ID:           e.ID,
		AutomationID: e.AutomationID,
		Store:        e.Store,
		GroupJID:     e.GroupJID,
		ProductURL:   e.ProductURL,
		AffiliateURL: e.AffiliateURL,
		Status:       string(e.Status),
		Error:        e.Error,
		CreatedAt:    e.CreatedAt,
	})
	if err != nil {
		return err
	}

	s := string(body)
	_, err = p.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: &s,
	})
	return err
}
