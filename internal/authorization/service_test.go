package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/directory/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewEnforcer(testutil.NewDB(t))
	require.NoError(t, err)
	return NewService(Params{Log: zaptest.NewLogger(t), Enforcer: enforcer})
}

func TestRolePermissions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		role    string
		object  string
		action  string
		allowed bool
	}{
		{"admin can do anything", "admin", ObjectAPIKey, ActionAPIKeyCreate, true},
		{"admin can extend", "admin", ObjectListing, ActionListingExtend, true},
		{"moderator approves applications", "moderator", ObjectApplication, ActionApplicationApprove, true},
		{"moderator publishes listings", "moderator", ObjectListing, ActionListingPublish, true},
		{"moderator cannot extend plans", "moderator", ObjectListing, ActionListingExtend, false},
		{"moderator cannot export", "moderator", ObjectInbox, ActionInboxExport, false},
		{"finance extends plans", "finance", ObjectListing, ActionListingExtend, true},
		{"finance views waitlist", "finance", ObjectWaitlist, ActionWaitlistView, true},
		{"finance cannot approve", "finance", ObjectApplication, ActionApplicationApprove, false},
		{"finance cannot mint keys", "finance", ObjectAPIKey, ActionAPIKeyCreate, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Authorize(ctx, "api_key:"+tc.role, tc.role, tc.object, tc.action)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestRoleChangeDropsPreviousGrants(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, "api_key:key_1", "admin", ObjectAPIKey, ActionAPIKeyRevoke))
	err := svc.Authorize(ctx, "api_key:key_1", "moderator", ObjectAPIKey, ActionAPIKeyRevoke)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, "", "admin", ObjectInbox, ActionInboxView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "a", "owner", ObjectInbox, ActionInboxView), ErrInvalidRole)
	assert.ErrorIs(t, svc.Authorize(ctx, "a", "admin", " ", ActionInboxView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, "a", "admin", ObjectInbox, ""), ErrInvalidAction)
}

func TestEnforcerSeedIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	_, err := NewEnforcer(db)
	require.NoError(t, err)
	_, err = NewEnforcer(db)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Table("casbin_rule").Where("ptype = ?", "p").Count(&count).Error)
	assert.Equal(t, int64(13), count)
}

func TestInboxCapability(t *testing.T) {
	obj, act, ok := InboxCapability("application", "reject")
	require.True(t, ok)
	assert.Equal(t, ObjectApplication, obj)
	assert.Equal(t, ActionApplicationReject, act)

	obj, act, ok = InboxCapability("review", "reject")
	require.True(t, ok)
	assert.Equal(t, ObjectListing, obj)
	assert.Equal(t, ActionListingReject, act)

	_, act, ok = InboxCapability("payment", "Extend")
	require.True(t, ok)
	assert.Equal(t, ActionListingExtend, act)

	_, _, ok = InboxCapability("payment", "delete")
	assert.False(t, ok)
}
