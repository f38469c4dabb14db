package members

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PlaceholderImageRef is the image reference of a member with no photo.
const PlaceholderImageRef = "/images/placeholder_photo_original.gif"

type Member struct {
	ID                     uuid.UUID `json:"id" gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	ExternalID             string    `json:"external_id" gorm:"uniqueIndex;not null" validate:"required"`
	ConstituencyExternalID *string   `json:"constituency_external_id"`

	Name                   *string `json:"name"`
	Email                  *string `json:"email" lint:"omitempty,email"`
	Website                *string `json:"website" lint:"omitempty,url"`
	ParliamentaryPhone     *string `json:"parliamentary_phone"`
	ParliamentaryFax       *string `json:"parliamentary_fax"`
	PreferredLanguage      *string `json:"preferred_language"`
	ConstituencyAddress    *string `json:"constituency_address"`
	ConstituencyCity       *string `json:"constituency_city"`
	ConstituencyPostalCode *string `json:"constituency_postal_code"`
	ConstituencyPhone      *string `json:"constituency_phone"`
	ConstituencyFax        *string `json:"constituency_fax"`

	PartyID    *uuid.UUID `json:"party_id" gorm:"type:uuid"`
	Party      *Party     `json:"party,omitempty" gorm:"foreignKey:PartyID"`
	ProvinceID *uuid.UUID `json:"province_id" gorm:"type:uuid"`
	Province   *Province  `json:"province,omitempty" gorm:"foreignKey:ProvinceID"`
	RidingID   *uuid.UUID `json:"riding_id" gorm:"type:uuid;index"`
	Riding     *Riding    `json:"riding,omitempty" gorm:"foreignKey:RidingID"`

	Active bool `json:"active" gorm:"index"`

	// Enrichment, only ever filled by merge
	DateOfBirth     *time.Time `json:"date_of_birth" gorm:"type:date"`
	PlaceOfBirth    *string    `json:"place_of_birth"`
	Wikipedia       *string    `json:"wikipedia"`
	WikipediaRiding *string    `json:"wikipedia_riding"`
	Facebook        *string    `json:"facebook"`
	Twitter         *string    `json:"twitter"`

	ImageRef        string `json:"image_ref"`
	PendingImageURL string `json:"pending_image_url,omitempty"`

	LastSynced time.Time `json:"last_synced"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Party struct {
	ID   uuid.UUID `json:"id" gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	Name string    `json:"name" gorm:"not null"`
}

type Province struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	NameEN       string    `json:"name_en" gorm:"column:name_en;uniqueIndex;not null"`
	Abbreviation string    `json:"abbreviation"`
}

type Riding struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	ExternalID string     `json:"external_id" gorm:"uniqueIndex;not null"`
	NameEN     string     `json:"name_en" gorm:"column:name_en"`
	ProvinceID *uuid.UUID `json:"province_id" gorm:"type:uuid"`
}

// MemberMerge records one source member folded into a target.
type MemberMerge struct {
	ID               uuid.UUID      `json:"id" gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	TargetMemberID   uuid.UUID      `json:"target_member_id" gorm:"type:uuid;index"`
	SourceMemberID   uuid.UUID      `json:"source_member_id" gorm:"type:uuid;index"`
	TargetExternalID string         `json:"target_external_id"`
	SourceExternalID string         `json:"source_external_id"`
	FilledFields     pq.StringArray `json:"filled_fields" gorm:"type:text[]"`
	ImageScheduled   bool           `json:"image_scheduled"`
	MergedBy         string         `json:"merged_by"`
	CreatedAt        time.Time      `json:"created_at"`
}

func (Member) TableName() string {
	return "members.members"
}

func (Party) TableName() string {
	return "members.parties"
}

func (Province) TableName() string {
	return "members.provinces"
}

func (Riding) TableName() string {
	return "members.ridings"
}

func (MemberMerge) TableName() string {
	return "members.member_merges"
}

// HasDefaultImage reports whether the member still carries the placeholder photo.
func (m *Member) HasDefaultImage() bool {
	return IsDefaultImage(m.ImageRef)
}

func IsDefaultImage(ref string) bool {
	ref = strings.TrimSpace(ref)
	return ref == "" || ref == PlaceholderImageRef
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
