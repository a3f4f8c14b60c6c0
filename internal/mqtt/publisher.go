package mqtt

import (
	"context"
	"encoding/json"

	"github.com/esafety/roadguard/internal/errors"
	"github.com/esafety/roadguard/internal/validation"
)

// Publisher announces validation results on <prefix>/validation/<incident id>.
type Publisher struct {
	client Client
	prefix string
}

// NewPublisher returns a Publisher sending through c.
func NewPublisher(c Client, prefix string) *Publisher {
	return &Publisher{client: c, prefix: prefix}
}

// PublishValidation implements validation.Publisher.
func (p *Publisher) PublishValidation(ctx context.Context, result *validation.Result) error {
	payload, err := json.Marshal(NewValidationEventDTO(result))
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			IncidentContext(result.IncidentID, "").
			Build()
	}
	return p.client.Publish(ctx, ValidationTopic(p.prefix, result.IncidentID), payload)
}

var _ validation.Publisher = (*Publisher)(nil)
