// Package profile provisions application-level user records on top of the
// remote relational store. Profiles are created lazily: a missing row is a
// provisioning signal, not an error.
package profile

import (
	"time"

	"github.com/google/uuid"
)

// RoleUser is the role assigned to every lazily provisioned profile.
const RoleUser = "user"

// Profile is the application-level user record, keyed by the identity
// user's id. A Profile returned by the service is not guaranteed to be
// durably stored; it may be a synthesized default (see Service.FetchProfile).
type Profile struct {
	ID        uuid.UUID
	FirstName *string
	LastName  *string
	AvatarURL *string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Creator is a marketplace seller record, keyed by the user's id.
type Creator struct {
	ID          uuid.UUID
	CompanyName *string
	Description *string
	Website     *string
	Verified    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Workflow is a purchasable permit workflow package.
type Workflow struct {
	ID          uuid.UUID
	CreatorID   uuid.UUID
	Title       string
	Description *string
	PermitType  *string
	Agency      *string
	Price       float64
	Status      *string
	Verified    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Chat is a user project: a conversation attached to a purchased workflow.
type Chat struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	WorkflowID  uuid.UUID
	ProjectName string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Workflow is the joined workflow row when the query requested it.
	Workflow *Workflow
}

// Purchase records a paid workflow unlock.
type Purchase struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	WorkflowID  uuid.UUID
	Amount      float64
	PaymentID   *string
	Status      *string
	PurchasedAt time.Time

	Workflow *Workflow
}
