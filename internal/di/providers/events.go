package providers

import (
	"github.com/samber/do/v2"

	"github.com/shirosync/shirosync-server/internal/config"
	"github.com/shirosync/shirosync-server/internal/events"
	"github.com/shirosync/shirosync-server/internal/logger"
)

// PublisherHandle wraps the event publisher with shutdown capability.
type PublisherHandle struct {
	events.Publisher
}

// Shutdown implements do.Shutdownable.
func (h *PublisherHandle) Shutdown() error {
	return h.Close()
}

// ProvidePublisher provides the NATS publisher, or a no-op one when NATS is not configured.
func ProvidePublisher(i do.Injector) (*PublisherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Events.NATSURL == "" {
		log.Info("Event publishing disabled")
		return &PublisherHandle{Publisher: events.Noop{}}, nil
	}

	pub, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, log.ForComponent("events"))
	if err != nil {
		// Events are best effort; the server runs without them.
		log.Warn("NATS unavailable, event publishing disabled", "url", cfg.Events.NATSURL, "error", err)
		return &PublisherHandle{Publisher: events.Noop{}}, nil
	}

	log.Info("Publishing events to NATS", "url", cfg.Events.NATSURL, "prefix", cfg.Events.SubjectPrefix)
	return &PublisherHandle{Publisher: pub}, nil
}
