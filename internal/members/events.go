package members

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EventMemberLoaded = "member.loaded"
	EventMemberMerged = "member.merged"
)

// Event tells downstream consumers (pages, tweets, news) that a canonical
// record changed.
type Event struct {
	Type              string    `json:"event_type"`
	ExternalID        string    `json:"external_id"`
	MemberID          uuid.UUID `json:"member_id"`
	Name              string    `json:"name,omitempty"`
	SourceExternalIDs []string  `json:"source_external_ids,omitempty"`
	FilledFields      []string  `json:"filled_fields,omitempty"`
	ImageScheduled    bool      `json:"image_scheduled,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, ...Event) error { return nil }
