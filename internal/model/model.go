// Package model defines domain entities shared by the client and the reference server.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// UserIdentity is the canonical signed-in user, normalized once at sign-in.
type UserIdentity struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// DisplayName returns "First Last", falling back to the email.
func (u UserIdentity) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Email
	}
}

// Session is the client's in-memory auth state. Token is set iff ExpiresAt is set.
type Session struct {
	User      *UserIdentity
	Token     string
	ExpiresAt time.Time
}

// Authenticated reports whether a token is present.
func (s Session) Authenticated() bool { return s.Token != "" }

// Tokens collects an issued access token and its expiry.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time
}

// User is an account stored by the reference server.
type User struct {
	ID        uuid.UUID
	Email     string // unique
	FirstName string
	LastName  string
	PwdHash   []byte // Argon2id(password, SaltAuth)
	SaltAuth  []byte
	CreatedAt time.Time
}

// Identity projects a server user into the wire identity.
func (u User) Identity() UserIdentity {
	return UserIdentity{ID: u.ID.String(), FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}
}

// MediaProduct is a master-data entry selectable in the product picker.
type MediaProduct struct {
	ProductCode string `json:"product_code"`
	ProductDesc string `json:"product_desc"`
	IsLocked    bool   `json:"is_locked"`
}

// DetailRow is one contract/item quantity-plan record for a product and publication date.
// It is read-only once fetched; edits always produce a new WriteRow.
type DetailRow struct {
	ProductCode         string `json:"product_code"`
	PublicationDate     string `json:"publication_date"`
	PhaseNo             string `json:"phase_no"`
	ContractNo          string `json:"contract_no"`
	ItemNo              string `json:"item_no"`
	BusinessPartner     string `json:"business_partner"`
	BusinessPartnerName string `json:"business_partner_name"`
	ItemCategory        string `json:"item_category"`
	ShipToParty         string `json:"ship_to_party"`
	SalesOrg            string `json:"sales_org"`
	DistributionChannel string `json:"distribution_channel"`
	Division            string `json:"division"`
	SalesUnit           string `json:"sales_unit"`
	SalesOffice         string `json:"sales_office"`
	SalesGroup          string `json:"sales_group"`
	SalesDistrict       string `json:"sales_district"`
	Quantity            int64  `json:"quantity"`
	Quantity1           int64  `json:"quantity1"`
	Quantity2           int64  `json:"quantity2"`
	Quantity3           int64  `json:"quantity3"`
	Quantity4           int64  `json:"quantity4"`
	Quantity5           int64  `json:"quantity5"`
	Quantity6           int64  `json:"quantity6"`
	Quantity7           int64  `json:"quantity7"`
	Quantity8           int64  `json:"quantity8"`
	Quantity9           int64  `json:"quantity9"`
	FixedIndicator      int    `json:"fixed_indicator"`
	MediaIssueStatus    string `json:"media_issue_status"`
	UpdatedBy           string `json:"updated_by,omitempty"`

	// Raw keeps the server object as received, for the details view and field fallbacks.
	Raw map[string]any `json:"-"`
}

// WriteRow is the save payload row. Every field is always serialized: the server rejects nulls.
type WriteRow struct {
	ProductCode         string `json:"product_code" validate:"required"`
	PublicationDate     string `json:"publication_date" validate:"required"`
	PhaseNo             string `json:"phase_no"`
	ContractNo          string `json:"contract_no" validate:"required"`
	ItemNo              string `json:"item_no" validate:"required"`
	BusinessPartner     string `json:"business_partner"`
	ItemCategory        string `json:"item_category"`
	ShipToParty         string `json:"ship_to_party"`
	SalesOrg            string `json:"sales_org"`
	DistributionChannel string `json:"distribution_channel"`
	Division            string `json:"division"`
	SalesUnit           string `json:"sales_unit"`
	SalesOffice         string `json:"sales_office"`
	SalesGroup          string `json:"sales_group"`
	SalesDistrict       string `json:"sales_district"`
	Quantity            int64  `json:"quantity"`
	Quantity1           int64  `json:"quantity1"`
	Quantity2           int64  `json:"quantity2"`
	Quantity3           int64  `json:"quantity3"`
	Quantity4           int64  `json:"quantity4"`
	Quantity5           int64  `json:"quantity5"`
	Quantity6           int64  `json:"quantity6"`
	Quantity7           int64  `json:"quantity7"`
	Quantity8           int64  `json:"quantity8"`
	Quantity9           int64  `json:"quantity9"`
	FixedIndicator      int    `json:"fixed_indicator" validate:"oneof=0 1"`
	UpdatedBy           string `json:"updated_by" validate:"required"`
}

// Selection identifies the record being edited.
type Selection struct {
	ProductCode     string `validate:"required"`
	PublicationDate string `validate:"required"`
	PhaseNo         string
	ContractNo      string `validate:"required"`
	ItemNo          string `validate:"required"`
}

// FormState holds editable fields as text, the way they are typed.
type FormState struct {
	// Quantities are signed whole numbers; BuildWritePayload parses them.
	BaseSupply       string
	NightCorrections string
	DaysFigure       string
	ExtraQuantity    string
	DeliveryQuantity string `validate:"required"`
	FixedQty         bool

	// Display-only fields.
	AgentName string `validate:"-"`
	Status    string `validate:"-"`
}

// Agent is one entry of the agent list for a product/date selection.
type Agent struct {
	Name             string `json:"agent_name"`
	ContractNo       string `json:"contract_no"`
	ItemNo           string `json:"item_no"`
	ItemCategory     string `json:"item_category"`
	DeliveryQuantity int64  `json:"delivery_quantity"`
	Status           string `json:"status"`
}
