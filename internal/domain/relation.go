package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RelationType is the kind of statement a relation makes within its lineage.
type RelationType string

const (
	RelationTypeAdd      RelationType = "ADD"
	RelationTypeEdit     RelationType = "EDIT"
	RelationTypeSuppress RelationType = "SUPPRESS"
)

func (t RelationType) Valid() bool {
	switch t {
	case RelationTypeAdd, RelationTypeEdit, RelationTypeSuppress:
		return true
	default:
		return false
	}
}

// RelationState is derived from a relation's successor and never stored.
type RelationState string

const (
	RelationStateActive     RelationState = "ACTIVE"
	RelationStateSuperseded RelationState = "SUPERSEDED"
	RelationStateSuppressed RelationState = "SUPPRESSED"
)

// StateFor returns the state of a relation given its successor, if any.
func StateFor(successor *Relation) RelationState {
	if successor == nil {
		return RelationStateActive
	}
	if successor.Type == RelationTypeSuppress {
		return RelationStateSuppressed
	}
	return RelationStateSuperseded
}

// EPrint identifies one immutable version of an arXiv e-print.
type EPrint struct {
	ArxivID string
	Version int
}

var (
	newStyleID = regexp.MustCompile(`^\d{4}\.\d{4,5}$`)
	oldStyleID = regexp.MustCompile(`^[a-z][a-z\-]*(\.[A-Z]{2})?/\d{7}$`)
	versionTag = regexp.MustCompile(`^[1-9]\d*$`)
)

// ParseEPrint parses the "<arxiv id>v<version>" form, e.g. "1234.56789v1".
func ParseEPrint(s string) (EPrint, error) {
	i := strings.LastIndex(s, "v")
	if i <= 0 || i == len(s)-1 {
		return EPrint{}, ValidationError{Field: "ePrint", Message: fmt.Sprintf("%q has no version suffix", s)}
	}
	if !versionTag.MatchString(s[i+1:]) {
		return EPrint{}, ValidationError{Field: "ePrint", Message: fmt.Sprintf("%q has an invalid version", s)}
	}
	version, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return EPrint{}, ValidationError{Field: "ePrint", Message: fmt.Sprintf("%q has an invalid version", s)}
	}
	e := EPrint{ArxivID: s[:i], Version: version}
	if err := e.Validate(); err != nil {
		return EPrint{}, err
	}
	return e, nil
}

func (e EPrint) Validate() error {
	if !newStyleID.MatchString(e.ArxivID) && !oldStyleID.MatchString(e.ArxivID) {
		return ValidationError{Field: "arxivId", Message: fmt.Sprintf("%q is not an arXiv identifier", e.ArxivID)}
	}
	if e.Version < 1 {
		return ValidationError{Field: "version", Message: "must be a positive integer"}
	}
	return nil
}

func (e EPrint) String() string {
	return fmt.Sprintf("%sv%d", e.ArxivID, e.Version)
}

// Resource is the external object an e-print is related to, e.g. a DOI.
type Resource struct {
	ResourceType string
	Identifier   string
}

func (r Resource) Validate() error {
	if strings.TrimSpace(r.ResourceType) == "" {
		return ValidationError{Field: "resourceType", Message: "must not be empty"}
	}
	if strings.TrimSpace(r.Identifier) == "" {
		return ValidationError{Field: "resourceId", Message: "must not be empty"}
	}
	return nil
}

// Relation is an immutable statement linking an e-print to a resource.
// Predecessor is nil for ADD relations and set for EDIT and SUPPRESS.
type Relation struct {
	ID          string
	Type        RelationType
	EPrint      EPrint
	Resource    Resource
	Description string
	CreatedAt   time.Time
	Creator     *string
	Predecessor *string
}

// Activation records whether a relation is the live head of its lineage.
type Activation struct {
	RelationID string
	Active     bool
}

// LineageEntry is a relation paired with its derived state.
type LineageEntry struct {
	Relation Relation
	State    RelationState
}
