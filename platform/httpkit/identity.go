package httpkit

import (
	"slices"

	"lead_distribution_backend/platform/apperr"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Role names carried in the access token.
const (
	RoleArtisan = "artisan"
	RoleClient  = "client"
	RoleAdmin   = "admin"
)

// Identity represents the authenticated caller's identity.
// Handlers read it instead of poking at gin context keys.
type Identity interface {
	// UserID returns the authenticated user's ID.
	UserID() uuid.UUID
	// Roles returns the user's assigned roles.
	Roles() []string
	// HasRole checks if the user has a specific role.
	HasRole(role string) bool
	// ProviderID returns the provider profile linked to an artisan account, if any.
	ProviderID() (uuid.UUID, bool)
	// IsAuthenticated returns true if the user is authenticated.
	IsAuthenticated() bool
}

type identity struct {
	userID        uuid.UUID
	roles         []string
	providerID    uuid.UUID
	hasProvider   bool
	authenticated bool
}

func (i *identity) UserID() uuid.UUID {
	return i.userID
}

func (i *identity) Roles() []string {
	return i.roles
}

func (i *identity) HasRole(role string) bool {
	return slices.Contains(i.roles, role)
}

func (i *identity) ProviderID() (uuid.UUID, bool) {
	return i.providerID, i.hasProvider
}

func (i *identity) IsAuthenticated() bool {
	return i.authenticated
}

// GetIdentity extracts the Identity from a Gin context.
// Returns an unauthenticated identity if user info is not present.
func GetIdentity(c *gin.Context) Identity {
	userID, userOK := c.Get(ContextUserIDKey)
	if !userOK {
		return &identity{authenticated: false}
	}

	uid, ok := userID.(uuid.UUID)
	if !ok {
		return &identity{authenticated: false}
	}

	id := &identity{userID: uid, authenticated: true}
	if roles, ok := c.Get(ContextRolesKey); ok {
		id.roles, _ = roles.([]string)
	}
	if raw, ok := c.Get(ContextProviderIDKey); ok {
		id.providerID, id.hasProvider = raw.(uuid.UUID)
	}
	return id
}

// MustGetIdentity extracts the Identity from a Gin context.
// If the user is not authenticated, it aborts with 401 Unauthorized and returns nil.
func MustGetIdentity(c *gin.Context) Identity {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		Abort(c, apperr.Unauthorized("unauthorized"))
		return nil
	}
	return id
}

// MustGetProviderID returns the caller's provider id, aborting with 403 when
// the token carries none.
func MustGetProviderID(c *gin.Context) (uuid.UUID, bool) {
	id := MustGetIdentity(c)
	if id == nil {
		return uuid.Nil, false
	}
	providerID, ok := id.ProviderID()
	if !ok {
		Abort(c, apperr.Forbidden("no provider profile linked to account"))
		return uuid.Nil, false
	}
	return providerID, true
}
