package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BasicProfile holds stage 1 (basics and photos) and stage 2 (background) data.
type BasicProfile struct {
	UserID          string     `json:"userId"`
	LegalName       *string    `json:"legalName"`
	DOB             *time.Time `json:"dob"`
	PhoneNumber     *string    `json:"phoneNumber"`
	Address         *string    `json:"address"`
	BabyPhotoURL    *string    `json:"babyPhotoUrl"`
	CurrentPhotoURL *string    `json:"currentPhotoUrl"`
	Education       *string    `json:"education"`
	Occupation      *string    `json:"occupation"`
	Nationality     *string    `json:"nationality"`
	Diet            *string    `json:"diet"`
	Height          *int       `json:"height"`
	Weight          *int       `json:"weight"`
	BodyBuild       *string    `json:"bodyBuild"`
	HairColor       *string    `json:"hairColor"`
	EyeColor        *string    `json:"eyeColor"`
	Race            *string    `json:"race"`
	Orientation     *string    `json:"orientation"`
	Bio             *string    `json:"bio"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// FirstName returns the first word of the legal name, or fallback when none is on file.
func (p *BasicProfile) FirstName(fallback string) string {
	if p == nil || p.LegalName == nil {
		return fallback
	}
	parts := strings.Fields(*p.LegalName)
	if len(parts) == 0 {
		return fallback
	}
	return parts[0]
}

type IdentityDocumentType string

const (
	DocumentDriverLicense IdentityDocumentType = "DRIVER_LICENSE"
	DocumentPassport      IdentityDocumentType = "PASSPORT"
	DocumentNationalID    IdentityDocumentType = "NATIONAL_ID"
)

// Valid reports whether t is a supported document type.
func (t IdentityDocumentType) Valid() bool {
	switch t {
	case DocumentDriverLicense, DocumentPassport, DocumentNationalID:
		return true
	}
	return false
}

// IdentityDocument is an uploaded proof of identity. A user may hold several.
type IdentityDocument struct {
	ID         string               `json:"id"`
	UserID     string               `json:"userId"`
	Type       IdentityDocumentType `json:"type"`
	FileURL    string               `json:"fileUrl"`
	UploadedAt time.Time            `json:"uploadedAt"`
}

// HealthRecord is the stage 3 questionnaire.
type HealthRecord struct {
	UserID              string    `json:"userId"`
	HasDiabetes         *bool     `json:"hasDiabetes"`
	HasHeartCondition   *bool     `json:"hasHeartCondition"`
	HasAutoimmune       *bool     `json:"hasAutoimmune"`
	MentalHealthHistory *string   `json:"mentalHealthHistory"`
	HIVHepStatus        *bool     `json:"hivHepStatus"`
	HasCancer           *bool     `json:"hasCancer"`
	HasNeuroDisorder    *bool     `json:"hasNeuroDisorder"`
	HasRespiratory      *bool     `json:"hasRespiratory"`
	OtherConditions     *string   `json:"otherConditions"`
	MajorSurgeries      *string   `json:"majorSurgeries"`
	Allergies           *bool     `json:"allergies"`
	AllergiesDetails    *string   `json:"allergiesDetails"`
	CMVStatus           *string   `json:"cmvStatus"`
	NeedleUsage         *bool     `json:"needleUsage"`
	TransfusionHistory  *bool     `json:"transfusionHistory"`
	MalariaRisk         *bool     `json:"malariaRisk"`
	ZikaRisk            *bool     `json:"zikaRisk"`
	MenstrualRegularity *bool     `json:"menstrualRegularity"`
	PregnancyHistory    *bool     `json:"pregnancyHistory"`
	ReproductiveConds   *bool     `json:"reproductiveConds"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// GeneticRecord is the stage 4 carrier screening.
type GeneticRecord struct {
	UserID            string    `json:"userId"`
	CarrierConditions []string  `json:"carrierConditions"`
	ReportFileURL     *string   `json:"reportFileUrl"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// CompensationRecord is the stage 5 pricing preference.
type CompensationRecord struct {
	UserID           string              `json:"userId"`
	IsInterested     *bool               `json:"isInterested"`
	AllowBidding     *bool               `json:"allowBidding"`
	AskingPrice      decimal.NullDecimal `json:"askingPrice"`
	MinAcceptedPrice decimal.NullDecimal `json:"minAcceptedPrice"`
	BuyNowPrice      decimal.NullDecimal `json:"buyNowPrice"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

// LegalRecord is the stage 6 consent.
type LegalRecord struct {
	UserID              string    `json:"userId"`
	ConsentAgreed       bool      `json:"consentAgreed"`
	AnonymityPreference *string   `json:"anonymityPreference"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// ProfileAggregate is a user with every sub-record that exists for them.
type ProfileAggregate struct {
	User              User                `json:"user"`
	Profile           *BasicProfile       `json:"profile"`
	IdentityDocuments []IdentityDocument  `json:"identityDocuments"`
	Health            *HealthRecord       `json:"health"`
	Genetic           *GeneticRecord      `json:"genetic"`
	Compensation      *CompensationRecord `json:"compensation"`
	Legal             *LegalRecord        `json:"legal"`
}

// BasicsPatch is the stage 1 basic information payload.
type BasicsPatch struct {
	LegalName   Field[string] `json:"legalName"`
	DOB         Field[Date]   `json:"dob"`
	PhoneNumber Field[string] `json:"phoneNumber"`
	Address     Field[string] `json:"address"`
}

// PhotosPatch carries stored photo URLs for stage 1.
type PhotosPatch struct {
	BabyPhotoURL    Field[string] `json:"babyPhotoUrl"`
	CurrentPhotoURL Field[string] `json:"currentPhotoUrl"`
}

// BackgroundPatch is the stage 2 payload.
type BackgroundPatch struct {
	Education   Field[string] `json:"education"`
	Occupation  Field[string] `json:"occupation"`
	Nationality Field[string] `json:"nationality"`
	Diet        Field[string] `json:"diet"`
	Height      Field[int]    `json:"height"`
	Weight      Field[int]    `json:"weight"`
	BodyBuild   Field[string] `json:"bodyBuild"`
	HairColor   Field[string] `json:"hairColor"`
	EyeColor    Field[string] `json:"eyeColor"`
	Race        Field[string] `json:"race"`
	Orientation Field[string] `json:"orientation"`
	Bio         Field[string] `json:"bio"`
}

// HealthPatch is the stage 3 payload.
type HealthPatch struct {
	HasDiabetes         Field[bool]   `json:"hasDiabetes"`
	HasHeartCondition   Field[bool]   `json:"hasHeartCondition"`
	HasAutoimmune       Field[bool]   `json:"hasAutoimmune"`
	MentalHealthHistory Field[string] `json:"mentalHealthHistory"`
	HIVHepStatus        Field[bool]   `json:"hivHepStatus"`
	HasCancer           Field[bool]   `json:"hasCancer"`
	HasNeuroDisorder    Field[bool]   `json:"hasNeuroDisorder"`
	HasRespiratory      Field[bool]   `json:"hasRespiratory"`
	OtherConditions     Field[string] `json:"otherConditions"`
	MajorSurgeries      Field[string] `json:"majorSurgeries"`
	Allergies           Field[bool]   `json:"allergies"`
	AllergiesDetails    Field[string] `json:"allergiesDetails"`
	CMVStatus           Field[string] `json:"cmvStatus"`
	NeedleUsage         Field[bool]   `json:"needleUsage"`
	TransfusionHistory  Field[bool]   `json:"transfusionHistory"`
	MalariaRisk         Field[bool]   `json:"malariaRisk"`
	ZikaRisk            Field[bool]   `json:"zikaRisk"`
	MenstrualRegularity Field[bool]   `json:"menstrualRegularity"`
	PregnancyHistory    Field[bool]   `json:"pregnancyHistory"`
	ReproductiveConds   Field[bool]   `json:"reproductiveConds"`
}

// GeneticPatch is the stage 4 payload.
type GeneticPatch struct {
	CarrierConditions Field[StringList] `json:"conditions"`
	ReportFileURL     Field[string]     `json:"reportFileUrl"`
}

// CompensationPatch is the stage 5 payload.
type CompensationPatch struct {
	IsInterested     Field[bool]            `json:"isInterested"`
	AllowBidding     Field[bool]            `json:"allowBidding"`
	AskingPrice      Field[decimal.Decimal] `json:"askingPrice"`
	MinAcceptedPrice Field[decimal.Decimal] `json:"minAccepted"`
	BuyNowPrice      Field[decimal.Decimal] `json:"buyNow"`
}

// LegalSubmission is the stage 6 payload. Submitting it is always a completion.
type LegalSubmission struct {
	ConsentAgreed       bool
	AnonymityPreference *string
}
