// Package model holds the declarative schema of topics and pipelines as they are stored by
// the meta collaborator. The json tags are the YAML field names as well.
package model

import "strings"

type TopicType string

const (
	TopicTypeRaw       TopicType = "raw"
	TopicTypeDistinct  TopicType = "distinct"
	TopicTypeAggregate TopicType = "aggregate"
	TopicTypeTime      TopicType = "time"
	TopicTypeRatio     TopicType = "ratio"
)

type TopicKind string

const (
	TopicKindBusiness TopicKind = "business"
	TopicKindSystem   TopicKind = "system"
)

type FactorType string

const (
	FactorTypeSequence FactorType = "sequence"
	FactorTypeNumber   FactorType = "number"
	FactorTypeUnsigned FactorType = "unsigned"
	FactorTypeText     FactorType = "text"
	FactorTypeEnum     FactorType = "enum"
	FactorTypeEmail    FactorType = "email"
	FactorTypePhone    FactorType = "phone"
	FactorTypeBoolean  FactorType = "boolean"
	FactorTypeDate     FactorType = "date"
	FactorTypeTime     FactorType = "time"
	FactorTypeDateTime FactorType = "datetime"
	FactorTypeObject   FactorType = "object"
	FactorTypeArray    FactorType = "array"
)

// Topic is a row shaped data collection.
type Topic struct {
	TopicID     string    `json:"topicId"`
	TenantID    string    `json:"tenantId"`
	Name        string    `json:"name"`
	Type        TopicType `json:"type,omitempty"`
	Kind        TopicKind `json:"kind,omitempty"`
	Description string    `json:"description,omitempty"`
	Factors     []*Factor `json:"factors,omitempty"`
}

// Factor is a typed field of a topic. Nested factors use dotted names.
type Factor struct {
	FactorID     string     `json:"factorId"`
	Name         string     `json:"name"`
	Type         FactorType `json:"type"`
	Encrypt      string     `json:"encrypt,omitempty"`
	DefaultValue string     `json:"defaultValue,omitempty"`
}

// FindFactor looks a factor up by id.
func (t *Topic) FindFactor(factorID string) (*Factor, bool) {
	for _, f := range t.Factors {
		if f.FactorID == factorID {
			return f, true
		}
	}
	return nil, false
}

// FindFactorByName looks a factor up by its (possibly dotted) name.
func (t *Topic) FindFactorByName(name string) (*Factor, bool) {
	for _, f := range t.Factors {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// IsAggregate reports whether rows of the topic are maintained by merges rather than inserts.
func (t *Topic) IsAggregate() bool {
	switch t.Type {
	case TopicTypeAggregate, TopicTypeTime, TopicTypeRatio:
		return true
	}
	return false
}

// EncryptedFactors returns the factors carrying an encryption method.
func (t *Topic) EncryptedFactors() []*Factor {
	var out []*Factor
	for _, f := range t.Factors {
		if strings.TrimSpace(f.Encrypt) != "" {
			out = append(out, f)
		}
	}
	return out
}
