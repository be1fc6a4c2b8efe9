// Package authz holds the single authorization decision used by every
// mutating operation: given who is acting, what they want to do and the
// resource's owner, allow or deny.
package authz

// Actor is the authenticated caller. The zero value is anonymous.
type Actor struct {
	UserID      int64
	IsSuperuser bool
}

// Authenticated reports whether the actor carries an identity.
func (a Actor) Authenticated() bool {
	return a.UserID > 0
}

type Action int

const (
	ActionRead Action = iota + 1
	ActionCreate
	ActionUpdate
	ActionDelete
	ActionAdmin
)

func (a Action) String() string {
	switch a {
	case ActionRead:
		return "read"
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	case ActionAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Resource describes the target object. OwnerID is 0 for unowned resources
// such as catalog movies.
type Resource struct {
	Kind    string
	OwnerID int64
}

// Owned builds a resource owned by userID.
func Owned(kind string, userID int64) Resource {
	return Resource{Kind: kind, OwnerID: userID}
}

// Decision is the outcome of Decide.
type Decision struct {
	Allowed bool
	Reason  string
}

// Decide applies the permission rules:
//   - anonymous actors are denied everything;
//   - read and create are open to any authenticated actor;
//   - update is reserved to the owner;
//   - delete is allowed to the owner or a superuser;
//   - admin actions require a superuser.
func Decide(actor Actor, action Action, res Resource) Decision {
	if !actor.Authenticated() {
		return deny("authentication required")
	}

	switch action {
	case ActionRead, ActionCreate:
		return allow()
	case ActionUpdate:
		if isOwner(actor, res) {
			return allow()
		}
		return deny("only the owner may update this " + kindOr(res))
	case ActionDelete:
		if isOwner(actor, res) || actor.IsSuperuser {
			return allow()
		}
		return deny("only the owner or an administrator may delete this " + kindOr(res))
	case ActionAdmin:
		if actor.IsSuperuser {
			return allow()
		}
		return deny("administrator privileges required")
	default:
		return deny("unknown action")
	}
}

func isOwner(actor Actor, res Resource) bool {
	return res.OwnerID != 0 && res.OwnerID == actor.UserID
}

func kindOr(res Resource) string {
	if res.Kind == "" {
		return "resource"
	}
	return res.Kind
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }
