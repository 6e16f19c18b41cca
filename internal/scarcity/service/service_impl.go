package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/smallbiznis/directory/internal/config"
	listingdomain "github.com/smallbiznis/directory/internal/listing/domain"
	"github.com/smallbiznis/directory/internal/observability/metrics"
	"github.com/smallbiznis/directory/internal/observability/tracing"
	scarcitydomain "github.com/smallbiznis/directory/internal/scarcity/domain"
	waitlistdomain "github.com/smallbiznis/directory/internal/waitlist/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("directory/scarcity")

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Cfg          *config.DirectoryConfigHolder
	ListingRepo  listingdomain.Repository
	WaitlistRepo waitlistdomain.Repository
	Metrics      *metrics.Metrics             `optional:"true"`
	Policy       scarcitydomain.FailurePolicy `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	cfg          *config.DirectoryConfigHolder
	listingRepo  listingdomain.Repository
	waitlistRepo waitlistdomain.Repository
	metrics      *metrics.Metrics
	policy       scarcitydomain.FailurePolicy
}

func New(p Params) scarcitydomain.Service {
	policy := p.Policy
	if policy == "" {
		policy = scarcitydomain.PolicyFailOpen
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("scarcity.service"),
		cfg:          p.Cfg,
		listingRepo:  p.ListingRepo,
		waitlistRepo: p.WaitlistRepo,
		metrics:      p.Metrics,
		policy:       policy,
	}
}

func (s *Service) CanUpgradeToPlan(ctx context.Context, req scarcitydomain.UpgradeRequest) (*scarcitydomain.UpgradeDecision, error) {
	categoryID := listingdomain.NormalizeCategory(req.CategoryID)
	if categoryID == "" {
		return nil, scarcitydomain.ErrInvalidCategory
	}
	plan, ok := listingdomain.ParsePlan(req.Plan)
	if !ok {
		return nil, scarcitydomain.ErrInvalidPlan
	}

	ctx, span := tracer.Start(ctx, "scarcity.can_upgrade")
	defer span.End()
	span.SetAttributes(attribute.String("category", categoryID), attribute.String("plan", string(plan)))

	cfg := s.cfg.Scarcity()
	if plan == listingdomain.PlanFree {
		return s.unlimited(cfg, "Plan gratuito siempre disponible"), nil
	}

	limits, found := cfg.Categories[categoryID]
	if !found {
		return s.unlimited(cfg, "Sin límites para esta categoría"), nil
	}
	maxAllowed := limitFor(limits, plan)
	if maxAllowed <= 0 {
		return s.unlimited(cfg, "Disponibilidad ilimitada"), nil
	}

	filter := listingdomain.SlotFilter{Category: categoryID, Plan: plan}
	if limits.ZoneLevel {
		filter.Zone = strings.ToLower(strings.TrimSpace(req.Zone))
	}
	if limits.SpecialtyLevel {
		filter.Specialty = listingdomain.NormalizeCategory(req.Specialty)
	}

	count, err := s.listingRepo.CountInPlan(ctx, s.db, filter)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		if s.policy != scarcitydomain.PolicyFailOpen {
			return nil, fmt.Errorf("count listings in plan: %w", err)
		}
		s.log.Error("slot count failed, allowing upgrade",
			zap.String("category", categoryID),
			zap.String("plan", string(plan)),
			zap.Error(err),
		)
		s.metrics.RecordScarcityFallback(ctx, "can_upgrade")
		return &scarcitydomain.UpgradeDecision{
			CanUpgrade:   true,
			SlotsLeft:    cfg.FallbackSlots,
			TotalSlots:   cfg.FallbackSlots,
			Message:      "Disponibilidad no verificada",
			UrgencyLevel: scarcitydomain.UrgencyLow,
			Degraded:     true,
		}, nil
	}

	slotsLeft := maxAllowed - int(count)
	if slotsLeft <= 0 {
		position := s.waitlistPosition(ctx, waitlistdomain.Key{
			Category:  categoryID,
			Plan:      string(plan),
			Zone:      filter.Zone,
			Specialty: filter.Specialty,
		})
		s.metrics.RecordScarcityCheck(ctx, string(plan), false)
		return &scarcitydomain.UpgradeDecision{
			CanUpgrade:       false,
			SlotsLeft:        0,
			TotalSlots:       maxAllowed,
			WaitlistPosition: position,
			Message:          fmt.Sprintf("Cupo lleno. Estás en lista de espera posición #%d", position),
			UrgencyLevel:     scarcitydomain.UrgencyCritical,
		}, nil
	}

	percentLeft := float64(slotsLeft) / float64(maxAllowed) * 100
	s.metrics.RecordScarcityCheck(ctx, string(plan), true)
	return &scarcitydomain.UpgradeDecision{
		CanUpgrade:   true,
		SlotsLeft:    slotsLeft,
		TotalSlots:   maxAllowed,
		Message:      slotsMessage(limits, plan, slotsLeft, maxAllowed),
		UrgencyLevel: urgencyFor(cfg.Urgency, percentLeft),
	}, nil
}

func (s *Service) GetScarcityMetrics(ctx context.Context, categoryID string) (*scarcitydomain.SlotSnapshot, error) {
	categoryID = listingdomain.NormalizeCategory(categoryID)
	if categoryID == "" {
		return nil, scarcitydomain.ErrInvalidCategory
	}

	ctx, span := tracer.Start(ctx, "scarcity.metrics")
	defer span.End()
	span.SetAttributes(attribute.String("category", categoryID))

	cfg := s.cfg.Scarcity()
	limits, found := cfg.Categories[categoryID]
	if !found {
		return emptySnapshot(categoryID), nil
	}

	counts, err := s.listingRepo.CountByPlan(ctx, s.db, categoryID)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		if s.policy != scarcitydomain.PolicyFailOpen {
			return nil, fmt.Errorf("count listings by plan: %w", err)
		}
		s.log.Error("scarcity metrics failed, serving empty snapshot",
			zap.String("category", categoryID),
			zap.Error(err),
		)
		s.metrics.RecordScarcityFallback(ctx, "metrics")
		snapshot := emptySnapshot(categoryID)
		snapshot.Degraded = true
		return snapshot, nil
	}

	byPlan := scarcitydomain.PlanCounts{
		Free:     counts[listingdomain.PlanFree],
		Featured: counts[listingdomain.PlanFeatured],
		Sponsor:  counts[listingdomain.PlanSponsor],
	}
	featured := saturation(byPlan.Featured, limits.Featured)
	sponsor := saturation(byPlan.Sponsor, limits.Sponsor)

	return &scarcitydomain.SlotSnapshot{
		CategoryID:      categoryID,
		TotalBusinesses: byPlan.Free + byPlan.Featured + byPlan.Sponsor,
		ByPlan:          byPlan,
		Saturation: scarcitydomain.Saturation{
			Featured: int(math.Round(featured)),
			Sponsor:  int(math.Round(sponsor)),
		},
		CompetitionLevel: competitionFor(cfg.Competition, sponsor),
	}, nil
}

func (s *Service) unlimited(cfg config.ScarcityConfig, message string) *scarcitydomain.UpgradeDecision {
	return &scarcitydomain.UpgradeDecision{
		CanUpgrade:   true,
		SlotsLeft:    cfg.FallbackSlots,
		TotalSlots:   cfg.FallbackSlots,
		Unlimited:    true,
		Message:      message,
		UrgencyLevel: scarcitydomain.UrgencyNone,
	}
}

// waitlistPosition is where a business joining now would land. Lookup
// failures fall back to the head of the queue.
func (s *Service) waitlistPosition(ctx context.Context, key waitlistdomain.Key) int {
	if s.waitlistRepo == nil {
		return 1
	}
	waiting, err := s.waitlistRepo.CountWaiting(ctx, s.db, key)
	if err != nil {
		s.log.Warn("waitlist position lookup failed", zap.String("category", key.Category), zap.Error(err))
		return 1
	}
	return int(waiting) + 1
}

func emptySnapshot(categoryID string) *scarcitydomain.SlotSnapshot {
	return &scarcitydomain.SlotSnapshot{
		CategoryID:       categoryID,
		CompetitionLevel: scarcitydomain.CompetitionLow,
	}
}

func limitFor(limits config.CategoryLimits, plan listingdomain.Plan) int {
	switch plan {
	case listingdomain.PlanSponsor:
		return limits.Sponsor
	case listingdomain.PlanFeatured:
		return limits.Featured
	default:
		return 0
	}
}

func saturation(count int64, limit int) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(count) / float64(limit) * 100
}

func urgencyFor(t config.UrgencyThresholds, percentLeft float64) scarcitydomain.Urgency {
	switch {
	case percentLeft <= t.Critical:
		return scarcitydomain.UrgencyCritical
	case percentLeft <= t.High:
		return scarcitydomain.UrgencyHigh
	case percentLeft <= t.Medium:
		return scarcitydomain.UrgencyMedium
	default:
		return scarcitydomain.UrgencyLow
	}
}

func competitionFor(t config.CompetitionThresholds, sponsorSaturation float64) scarcitydomain.Competition {
	switch {
	case sponsorSaturation >= t.Saturated:
		return scarcitydomain.CompetitionSaturated
	case sponsorSaturation >= t.High:
		return scarcitydomain.CompetitionHigh
	case sponsorSaturation >= t.Medium:
		return scarcitydomain.CompetitionMedium
	default:
		return scarcitydomain.CompetitionLow
	}
}

func slotsMessage(limits config.CategoryLimits, plan listingdomain.Plan, slotsLeft, total int) string {
	switch {
	case slotsLeft == 1:
		return fmt.Sprintf("¡ÚLTIMO LUGAR DISPONIBLE en %s!", limits.Messages[string(plan)])
	case slotsLeft <= 3:
		return fmt.Sprintf("Quedan solo %d lugares disponibles", slotsLeft)
	default:
		return fmt.Sprintf("%d lugares disponibles de %d", slotsLeft, total)
	}
}
