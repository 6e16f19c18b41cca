package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/smallbiznis/directory/internal/apikey/domain"
	"github.com/smallbiznis/directory/internal/cache"
	"github.com/smallbiznis/directory/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  apikeydomain.Repository
	Cache cache.PrincipalCache `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  apikeydomain.Repository
	genID *snowflake.Node
	clock clock.Clock
	cache cache.PrincipalCache
}

func New(p Params) apikeydomain.Service {
	principals := p.Cache
	if principals == nil {
		principals = cache.NewPrincipalCache()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("apikey.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
		cache: principals,
	}
}

func (s *Service) List(ctx context.Context) ([]apikeydomain.Response, error) {
	keys, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}
	out := make([]apikeydomain.Response, len(keys))
	for i, key := range keys {
		out[i] = key.Response()
	}
	return out, nil
}

// Create mints a key. The raw secret is only ever returned here.
func (s *Service) Create(ctx context.Context, req apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apikeydomain.ErrInvalidName
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if !apikeydomain.ValidRole(role) {
		return nil, apikeydomain.ErrInvalidRole
	}

	id := s.genID.Generate()
	keyID := apikeydomain.KeyIDFor(id)
	secret, err := apikeydomain.MintSecret(keyID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	key := &apikeydomain.APIKey{
		ID:        id,
		KeyID:     keyID,
		Name:      name,
		Role:      role,
		Scopes:    apikeydomain.NormalizeScopes(req.Scopes),
		KeyHash:   apikeydomain.HashAPIKey(secret),
		IsActive:  true,
		ExpiresAt: req.ExpiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, key); err != nil {
		return nil, err
	}

	s.log.Info("api key created", zap.String("key_id", keyID), zap.String("role", role))
	return &apikeydomain.SecretResponse{KeyID: keyID, Role: role, APIKey: secret}, nil
}

// Revoke deactivates a key and drops its cached principal so the next
// request with it fails.
func (s *Service) Revoke(ctx context.Context, keyID string) error {
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		return apikeydomain.ErrInvalidKeyID
	}

	key, err := s.repo.FindByKeyID(ctx, s.db, keyID)
	if err != nil {
		return err
	}
	if key == nil {
		return apikeydomain.ErrNotFound
	}

	now := s.clock.Now()
	key.IsActive = false
	key.UpdatedAt = now
	if key.ExpiresAt == nil || key.ExpiresAt.After(now) {
		key.ExpiresAt = &now
	}
	if err := s.repo.Update(ctx, s.db, key); err != nil {
		return err
	}
	s.cache.Invalidate(key.KeyHash)
	return nil
}

// Authenticate resolves a raw bearer key to its principal. Unknown, revoked
// and expired keys all yield ErrUnauthorized.
func (s *Service) Authenticate(ctx context.Context, raw string) (*apikeydomain.Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apikeydomain.ErrUnauthorized
	}
	hash := apikeydomain.HashAPIKey(raw)
	if principal, ok := s.cache.GetPrincipal(hash); ok {
		return principal, nil
	}

	now := s.clock.Now()
	key, err := s.repo.FindActiveByHash(ctx, s.db, hash, now)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, apikeydomain.ErrUnauthorized
	}
	if err := s.repo.TouchLastUsed(ctx, s.db, key.ID, now); err != nil {
		s.log.Warn("failed to record api key usage", zap.String("key_id", key.KeyID), zap.Error(err))
	}

	principal := key.Principal()
	s.cache.SetPrincipal(hash, principal)
	return principal, nil
}
