package cloudmetrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	scarcitydomain "github.com/smallbiznis/directory/internal/scarcity/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("cloud.metrics",
	fx.Provide(NewPusher),
	fx.Provide(NewExporter),
)

// Exporter publishes category saturation to an external Prometheus.
type Exporter struct {
	registry *prometheus.Registry
	recorder *Recorder
	pusher   Pusher
	log      *zap.Logger
}

// NewExporter returns nil when no pusher is configured; a nil Exporter
// ignores Export calls.
func NewExporter(pusher Pusher, log *zap.Logger) *Exporter {
	if pusher == nil {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	registry := prometheus.NewRegistry()
	return &Exporter{
		registry: registry,
		recorder: NewRecorder(registry),
		pusher:   pusher,
		log:      log.Named("cloud.metrics"),
	}
}

// Export pushes the snapshots and reports how many were published.
func (e *Exporter) Export(ctx context.Context, snapshots []scarcitydomain.SlotSnapshot) (int, error) {
	if e == nil {
		return 0, nil
	}
	recorded := e.recorder.Update(snapshots)
	if recorded == 0 {
		return 0, nil
	}
	if err := e.pusher.Push(ctx, e.registry); err != nil {
		return 0, err
	}
	e.log.Debug("saturation exported", zap.Int("categories", recorded))
	return recorded, nil
}
