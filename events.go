package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
)

const (
	eventSource = "pdf-lecture-service"
	eventType   = "ImagesGenerated"
)

// CompletionEvent is the detail payload the next pipeline step consumes.
type CompletionEvent struct {
	JobID       string `json:"jobId"`
	PageCount   int    `json:"pageCount"`
	ImagePrefix string `json:"imagePrefix"`
}

// EventPublisher hands a finished job off to the event bus. Delivery is
// at-least-once on the consumer side; this side publishes exactly once.
type EventPublisher interface {
	Publish(ctx context.Context, ev CompletionEvent) error
}

type eventBridgePublisher struct {
	client  *eventbridge.Client
	busName string
}

func (p *eventBridgePublisher) Publish(ctx context.Context, ev CompletionEvent) error {
	detail, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event detail: %w", err)
	}

	out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []ebtypes.PutEventsRequestEntry{
			{
				Source:       aws.String(eventSource),
				DetailType:   aws.String(eventType),
				Detail:       aws.String(string(detail)),
				EventBusName: aws.String(p.busName),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("put events: %w", err)
	}

	// PutEvents can succeed at the API level while rejecting entries.
	if out.FailedEntryCount > 0 {
		for _, entry := range out.Entries {
			if entry.ErrorCode != nil {
				return fmt.Errorf("event entry rejected: %s: %s",
					aws.ToString(entry.ErrorCode), aws.ToString(entry.ErrorMessage))
			}
		}
		return fmt.Errorf("event bus rejected %d entries", out.FailedEntryCount)
	}

	return nil
}
