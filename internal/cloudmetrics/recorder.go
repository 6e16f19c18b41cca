package cloudmetrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	scarcitydomain "github.com/smallbiznis/directory/internal/scarcity/domain"
)

// Recorder mirrors slot snapshots into gauges on a private registry so they
// can be pushed without touching the process-wide /metrics registry.
type Recorder struct {
	businesses  *prometheus.GaugeVec
	planCounts  *prometheus.GaugeVec
	saturation  *prometheus.GaugeVec
	competition *prometheus.GaugeVec
}

func NewRecorder(registry *prometheus.Registry) *Recorder {
	r := &Recorder{
		businesses: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "directory_category_businesses",
			Help: "Published businesses per category.",
		}, []string{"category"}),
		planCounts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "directory_category_plan_businesses",
			Help: "Published businesses per category and plan.",
		}, []string{"category", "plan"}),
		saturation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "directory_category_saturation_percent",
			Help: "Share of paid capacity in use, 0-100.",
		}, []string{"category", "plan"}),
		competition: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "directory_category_competition",
			Help: "Competition level per category, 1 for the current level.",
		}, []string{"category", "level"}),
	}
	if registry != nil {
		registry.MustRegister(r.businesses, r.planCounts, r.saturation, r.competition)
	}
	return r
}

// Update replaces the gauges with the given snapshots. Degraded snapshots
// are skipped so a backend outage does not publish fallback numbers.
func (r *Recorder) Update(snapshots []scarcitydomain.SlotSnapshot) int {
	if r == nil {
		return 0
	}
	r.businesses.Reset()
	r.planCounts.Reset()
	r.saturation.Reset()
	r.competition.Reset()

	recorded := 0
	for _, snap := range snapshots {
		if snap.Degraded {
			continue
		}
		category := normalizeLabel(snap.CategoryID)
		r.businesses.WithLabelValues(category).Set(float64(snap.TotalBusinesses))
		r.planCounts.WithLabelValues(category, "free").Set(float64(snap.ByPlan.Free))
		r.planCounts.WithLabelValues(category, "featured").Set(float64(snap.ByPlan.Featured))
		r.planCounts.WithLabelValues(category, "sponsor").Set(float64(snap.ByPlan.Sponsor))
		r.saturation.WithLabelValues(category, "featured").Set(float64(snap.Saturation.Featured))
		r.saturation.WithLabelValues(category, "sponsor").Set(float64(snap.Saturation.Sponsor))
		r.competition.WithLabelValues(category, normalizeLabel(string(snap.CompetitionLevel))).Set(1)
		recorded++
	}
	return recorded
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
