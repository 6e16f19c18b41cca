package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/directory/internal/clock"
	"github.com/smallbiznis/directory/internal/config"
	listingdomain "github.com/smallbiznis/directory/internal/listing/domain"
	notificationdomain "github.com/smallbiznis/directory/internal/notification/domain"
	waitlistdomain "github.com/smallbiznis/directory/internal/waitlist/domain"
	"github.com/smallbiznis/directory/pkg/db"
	"github.com/smallbiznis/directory/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Cfg         *config.DirectoryConfigHolder
	Repo        waitlistdomain.Repository
	ListingRepo listingdomain.Repository
	Notifier    notificationdomain.Notifier
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	cfg         *config.DirectoryConfigHolder
	repo        waitlistdomain.Repository
	listingRepo listingdomain.Repository
	notifier    notificationdomain.Notifier
}

func New(p Params) waitlistdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("waitlist.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		cfg:         p.Cfg,
		repo:        p.Repo,
		listingRepo: p.ListingRepo,
		notifier:    p.Notifier,
	}
}

func (s *Service) Join(ctx context.Context, req waitlistdomain.JoinRequest) (*waitlistdomain.Position, error) {
	businessID, err := snowflake.ParseString(strings.TrimSpace(req.BusinessID))
	if err != nil || businessID == 0 {
		return nil, waitlistdomain.ErrInvalidBusiness
	}
	key, err := s.queueKey(req.CategoryID, req.Plan, req.Zone, req.Specialty)
	if err != nil {
		return nil, err
	}

	ahead, err := s.repo.CountWaiting(ctx, s.db, key)
	if err != nil {
		return nil, err
	}
	position := int(ahead) + 1

	entry := &waitlistdomain.Entry{
		ID:         s.genID.Generate(),
		BusinessID: businessID,
		Category:   key.Category,
		Plan:       key.Plan,
		Zone:       key.Zone,
		Specialty:  key.Specialty,
		Status:     waitlistdomain.StatusWaiting,
		Position:   position,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, entry); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, waitlistdomain.ErrAlreadyWaitlisted
		}
		return nil, err
	}

	s.log.Info("business joined waitlist",
		zap.String("business_id", businessID.String()),
		zap.String("category", key.Category),
		zap.String("plan", key.Plan),
		zap.Int("position", position),
	)

	return &waitlistdomain.Position{
		EntryID:           entry.ID.String(),
		Position:          position,
		EstimatedWaitDays: position * s.cfg.Scarcity().WaitDaysPerPosition,
	}, nil
}

// NotifyNext offers a freed slot to the oldest waiting business of the queue.
// It returns nil when nobody is waiting. Zone and specialty are ignored for
// categories that are not limited at that level.
func (s *Service) NotifyNext(ctx context.Context, key waitlistdomain.Key) (*waitlistdomain.Entry, error) {
	key, err := s.queueKey(key.Category, key.Plan, key.Zone, key.Specialty)
	if err != nil {
		return nil, err
	}
	entry, err := s.repo.NextWaiting(ctx, s.db, key)
	if err != nil || entry == nil {
		return nil, err
	}

	holdHours := s.cfg.Scarcity().OfferHoldHours
	now := s.clock.Now()
	expiresAt := now.Add(time.Duration(holdHours) * time.Hour)
	if err := s.repo.MarkNotified(ctx, s.db, entry.ID, now, expiresAt); err != nil {
		return nil, err
	}
	entry.Status = waitlistdomain.StatusNotified
	entry.NotifiedAt = &now
	entry.ExpiresAt = &expiresAt

	var recipient, name string
	listing, err := s.listingRepo.FindByID(ctx, s.db, entry.BusinessID)
	if err != nil {
		s.log.Warn("waitlist business lookup failed", zap.String("business_id", entry.BusinessID.String()), zap.Error(err))
	}
	if listing != nil {
		recipient = listing.OwnerEmail
		name = listing.DisplayName()
	}

	if err := s.notifier.Notify(ctx, notificationdomain.Notification{
		Kind:       notificationdomain.KindSlotAvailable,
		BusinessID: entry.BusinessID,
		Recipient:  recipient,
		Payload: map[string]any{
			"business_name": name,
			"category":      entry.Category,
			"plan":          entry.Plan,
			"hold_hours":    holdHours,
			"expires_at":    expiresAt.Format(time.RFC3339),
		},
		DedupeKey: fmt.Sprintf("slot_available:%s", entry.ID),
	}); err != nil {
		s.log.Warn("slot available notification not queued", zap.Error(err))
	}

	s.log.Info("waitlist offer sent",
		zap.String("entry_id", entry.ID.String()),
		zap.String("business_id", entry.BusinessID.String()),
		zap.Time("expires_at", expiresAt),
	)
	return entry, nil
}

func (s *Service) ExpireOffers(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireOffers(ctx, s.db, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("waitlist offers expired", zap.Int64("count", n))
	}
	return n, nil
}

func (s *Service) List(ctx context.Context, req waitlistdomain.ListRequest) (*waitlistdomain.ListResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	filter := waitlistdomain.ListFilter{
		Category: listingdomain.NormalizeCategory(req.CategoryID),
		Plan:     strings.ToLower(strings.TrimSpace(req.Plan)),
		Limit:    pageSize + 1,
	}
	if status := strings.TrimSpace(req.Status); status != "" {
		switch waitlistdomain.Status(status) {
		case waitlistdomain.StatusWaiting, waitlistdomain.StatusNotified,
			waitlistdomain.StatusExpired, waitlistdomain.StatusConverted:
			filter.Status = waitlistdomain.Status(status)
		default:
			return nil, waitlistdomain.ErrInvalidStatus
		}
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, waitlistdomain.ErrInvalidPageToken
		}
		afterID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, waitlistdomain.ErrInvalidPageToken
		}
		filter.AfterID = afterID
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(e *waitlistdomain.Entry) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        e.ID.String(),
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	resp := &waitlistdomain.ListResponse{
		Entries:  make([]waitlistdomain.Entry, 0, len(items)),
		PageInfo: pageInfo,
	}
	for _, item := range items {
		resp.Entries = append(resp.Entries, *item)
	}
	return resp, nil
}

func (s *Service) queueKey(category, plan, zone, specialty string) (waitlistdomain.Key, error) {
	category = listingdomain.NormalizeCategory(category)
	if category == "" {
		return waitlistdomain.Key{}, waitlistdomain.ErrInvalidCategory
	}
	p, ok := listingdomain.ParsePlan(plan)
	if !ok || !p.IsPaid() {
		return waitlistdomain.Key{}, waitlistdomain.ErrInvalidPlan
	}

	key := waitlistdomain.Key{Category: category, Plan: string(p)}
	if limits, found := s.cfg.Scarcity().Categories[category]; found {
		if limits.ZoneLevel {
			key.Zone = strings.ToLower(strings.TrimSpace(zone))
		}
		if limits.SpecialtyLevel {
			key.Specialty = listingdomain.NormalizeCategory(specialty)
		}
	}
	return key, nil
}
