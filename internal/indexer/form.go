package indexer

import "strings"

// placeholderValues are form values that clients send instead of leaving a field empty
var placeholderValues = map[string]bool{
	"":       true,
	"none":   true,
	"null":   true,
	"string": true,
}

// CleanFormValue trims v and returns nil for empty or placeholder values
func CleanFormValue(v string) *string {
	v = strings.TrimSpace(v)
	if placeholderValues[strings.ToLower(v)] {
		return nil
	}
	return &v
}

// Metadata is the optional descriptive data sent with an upload
type Metadata struct {
	DocumentType  *string
	ProductFamily *string
	ProductModel  *string
	Version       *string
	Language      *string
}

// MetadataFromForm cleans raw form values by field name
func MetadataFromForm(get func(key string) string) Metadata {
	return Metadata{
		DocumentType:  CleanFormValue(get("document_type")),
		ProductFamily: CleanFormValue(get("product_family")),
		ProductModel:  CleanFormValue(get("product_model")),
		Version:       CleanFormValue(get("version")),
		Language:      CleanFormValue(get("language")),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
