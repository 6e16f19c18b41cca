package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	apikeydomain "github.com/smallbiznis/directory/internal/apikey/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectInbox       = "inbox"
	ObjectApplication = "application"
	ObjectListing     = "listing"
	ObjectWaitlist    = "waitlist"
	ObjectAPIKey      = "api_key"
)

const (
	ActionInboxView   = "inbox.view"
	ActionInboxExport = "inbox.export"

	ActionApplicationApprove     = "application.approve"
	ActionApplicationReject      = "application.reject"
	ActionApplicationRequestInfo = "application.request_info"

	ActionListingPublish = "listing.publish"
	ActionListingReject  = "listing.reject"
	ActionListingSuspend = "listing.suspend"
	ActionListingExtend  = "listing.extend"
	ActionListingRemind  = "listing.remind"

	ActionWaitlistView = "waitlist.view"

	ActionAPIKeyView   = "api_key.view"
	ActionAPIKeyCreate = "api_key.create"
	ActionAPIKeyRevoke = "api_key.revoke"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads policies from the casbin_rule table and seeds the
// operator role policies.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor, role, object, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if !apikeydomain.ValidRole(role) {
		return ErrInvalidRole
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roleName := "role:" + role
	if err := s.ensureGrouping(actor, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(actor, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Warn("authorization denied",
			zap.String("actor", actor),
			zap.String("role", role),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping keeps exactly one role link per actor so a key whose role
// changed does not retain the old grants.
func (s *ServiceImpl) ensureGrouping(subject, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

// InboxCapability maps an inbox command to the object and action checked
// for it. ok is false for commands the inbox does not know.
func InboxCapability(kind, action string) (object string, capability string, ok bool) {
	isApplication := strings.EqualFold(strings.TrimSpace(kind), "application")
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "approve":
		return ObjectApplication, ActionApplicationApprove, true
	case "request-info":
		return ObjectApplication, ActionApplicationRequestInfo, true
	case "reject":
		if isApplication {
			return ObjectApplication, ActionApplicationReject, true
		}
		return ObjectListing, ActionListingReject, true
	case "publish":
		return ObjectListing, ActionListingPublish, true
	case "suspend":
		return ObjectListing, ActionListingSuspend, true
	case "extend":
		return ObjectListing, ActionListingExtend, true
	case "remind":
		return ObjectListing, ActionListingRemind, true
	default:
		return "", "", false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Admin permissions
		{"role:admin", "*", "*"},

		// Moderator permissions (content review)
		{"role:moderator", ObjectInbox, ActionInboxView},
		{"role:moderator", ObjectApplication, ActionApplicationApprove},
		{"role:moderator", ObjectApplication, ActionApplicationReject},
		{"role:moderator", ObjectApplication, ActionApplicationRequestInfo},
		{"role:moderator", ObjectListing, ActionListingPublish},
		{"role:moderator", ObjectListing, ActionListingReject},

		// Finance permissions (plans and payments)
		{"role:finance", ObjectInbox, ActionInboxView},
		{"role:finance", ObjectInbox, ActionInboxExport},
		{"role:finance", ObjectListing, ActionListingSuspend},
		{"role:finance", ObjectListing, ActionListingExtend},
		{"role:finance", ObjectListing, ActionListingRemind},
		{"role:finance", ObjectWaitlist, ActionWaitlistView},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
