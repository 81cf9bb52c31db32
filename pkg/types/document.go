package types

import "strings"

// UserRole selects the retrieval keywords and prompt instruction used for a question
type UserRole string

const (
	RoleEngineer UserRole = "engineer"
	RoleQuality  UserRole = "quality"
	RoleSales    UserRole = "sales"
	RoleSupport  UserRole = "support"
)

// Roles lists every supported role in display order
var Roles = []UserRole{RoleEngineer, RoleQuality, RoleSales, RoleSupport}

// ParseUserRole parses a role name, defaulting to engineer when empty
func ParseUserRole(s string) (UserRole, error) {
	if strings.TrimSpace(s) == "" {
		return RoleEngineer, nil
	}
	r := UserRole(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Roles {
		if r == known {
			return r, nil
		}
	}
	return "", ErrInvalidRole
}

// DocumentType classifies an uploaded document
type DocumentType string

const (
	DocDatasheet     DocumentType = "datasheet"
	DocManual        DocumentType = "manual"
	DocSpecification DocumentType = "specification"
)

// ParseDocumentType parses a document type, defaulting to datasheet when empty
func ParseDocumentType(s string) (DocumentType, error) {
	switch DocumentType(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DocDatasheet, nil
	case DocDatasheet:
		return DocDatasheet, nil
	case DocManual:
		return DocManual, nil
	case DocSpecification:
		return DocSpecification, nil
	default:
		return "", ErrInvalidDocumentType
	}
}

// ProcessingStatus tracks a document through ingestion
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Valid reports whether s is a known status
func (s ProcessingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether processing has finished, successfully or not
func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}
