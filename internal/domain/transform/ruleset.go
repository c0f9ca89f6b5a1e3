package transform

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/syncline/backend/internal/domain/shared"
)

// Sentinel errors for the transform domain
var (
	ErrRulesetNotFound   = shared.NewDomainError("RULESET_NOT_FOUND", "Mapping ruleset not found")
	ErrNoActiveRuleset   = shared.NewDomainError("RULESET_NONE_ACTIVE", "No mapping ruleset active for the requested date")
	ErrInvalidMapping    = shared.NewDomainError("RULESET_INVALID_MAPPING", "Field mapping is invalid")
	ErrMissingDestination = shared.NewDomainError("RULESET_MISSING_DESTINATION", "Field mapping destination is required")
)

// DataType is the target type a mapped value is coerced to
type DataType string

const (
	DataTypeString  DataType = "string"
	DataTypeNumber  DataType = "number"
	DataTypeBool    DataType = "bool"
	DataTypeDate    DataType = "date"
	DataTypeUnknown DataType = ""
)

// FieldMapping maps one source field onto one destination field, with an
// optional transform operator applied in between and a target data type
// the result is coerced to.
type FieldMapping struct {
	SourceField string    `json:"source_field"`
	DestField   string    `json:"dest_field"`
	Operator    *Operator `json:"operator,omitempty"`
	DataType    DataType  `json:"data_type,omitempty"`
	// Promote marks the destination field for extraction into a scalar
	// mirror column
	Promote bool `json:"promote,omitempty"`
}

// Validate checks the mapping's shape, including its operator parameters
func (m *FieldMapping) Validate() error {
	if m.DestField == "" {
		return ErrMissingDestination
	}
	if m.SourceField == "" && (m.Operator == nil || !m.Operator.Kind.Generative()) {
		return ErrInvalidMapping
	}
	if m.Operator != nil {
		if err := m.Operator.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// RuleSet is one version of the data-driven mapping and filtering rules
// for an entity type. Versions carry validity windows so a historical
// batch can be replayed with the ruleset that was active on its original
// ingestion date ("time travel").
type RuleSet struct {
	ID         uuid.UUID
	OrgID      uuid.UUID
	EntityType string
	Version    int
	// PromotionRule is a boolean predicate over the raw document deciding
	// whether a record is promoted into the mirror. Empty promotes
	// everything.
	PromotionRule string
	Mappings      []FieldMapping
	ValidFrom     time.Time
	ValidUntil    *time.Time
	CreatedAt     time.Time
}

// NewRuleSet creates a ruleset version active from the given time
func NewRuleSet(orgID uuid.UUID, entityType string, version int, promotionRule string, mappings []FieldMapping, validFrom time.Time) (*RuleSet, error) {
	for i := range mappings {
		if err := mappings[i].Validate(); err != nil {
			return nil, err
		}
	}
	return &RuleSet{
		ID:            uuid.New(),
		OrgID:         orgID,
		EntityType:    entityType,
		Version:       version,
		PromotionRule: promotionRule,
		Mappings:      mappings,
		ValidFrom:     validFrom,
		CreatedAt:     time.Now(),
	}, nil
}

// ActiveAt returns true if this version was valid at the given instant
func (rs *RuleSet) ActiveAt(t time.Time) bool {
	if t.Before(rs.ValidFrom) {
		return false
	}
	return rs.ValidUntil == nil || t.Before(*rs.ValidUntil)
}

// RuleSetRepository defines persistence for mapping rulesets
type RuleSetRepository interface {
	// Save creates or updates a ruleset version
	Save(ctx context.Context, rs *RuleSet) error
	// FindActiveAt returns the ruleset version for an entity type that was
	// active at the given instant, or ErrNoActiveRuleset
	FindActiveAt(ctx context.Context, orgID uuid.UUID, entityType string, at time.Time) (*RuleSet, error)
	// FindByVersion returns a specific ruleset version
	FindByVersion(ctx context.Context, orgID uuid.UUID, entityType string, version int) (*RuleSet, error)
	// FindAll lists all versions for an entity type, newest first
	FindAll(ctx context.Context, orgID uuid.UUID, entityType string) ([]*RuleSet, error)
}

// Lineage links a mirror record to the raw record and ruleset version that
// produced its current state
type Lineage struct {
	ID             uuid.UUID
	OrgID          uuid.UUID
	RecordID       uuid.UUID
	RawRecordID    uuid.UUID
	BatchID        uuid.UUID
	RulesetVersion int
	MirrorVersion  int64
	CreatedAt      time.Time
}

// NewLineage records one transformation step for a mirror record
func NewLineage(orgID, recordID, rawRecordID, batchID uuid.UUID, rulesetVersion int, mirrorVersion int64) *Lineage {
	return &Lineage{
		ID:             uuid.New(),
		OrgID:          orgID,
		RecordID:       recordID,
		RawRecordID:    rawRecordID,
		BatchID:        batchID,
		RulesetVersion: rulesetVersion,
		MirrorVersion:  mirrorVersion,
		CreatedAt:      time.Now(),
	}
}

// LineageRepository defines persistence for transformation lineage
type LineageRepository interface {
	// Save appends a lineage entry
	Save(ctx context.Context, lineage *Lineage) error
	// FindByRecord lists lineage for a mirror record, newest first
	FindByRecord(ctx context.Context, recordID uuid.UUID) ([]*Lineage, error)
}
