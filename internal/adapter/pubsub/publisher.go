package pubsub

import (
	"github.com/ThreeDotsLabs/watermill/message"

	infrapubsub "github.com/gamenight/scheduler/infra/pubsub"
)

// PublisherProvider hands out publishers on the main exchange. Kept as a
// named type so fx can decorate it and tests can swap the factory.
type PublisherProvider struct {
	factory *infrapubsub.Factory
}

func NewPublisherProvider(f *infrapubsub.Factory) *PublisherProvider {
	return &PublisherProvider{factory: f}
}

func (pp *PublisherProvider) Build() (message.Publisher, error) {
	return pp.factory.Publisher()
}
