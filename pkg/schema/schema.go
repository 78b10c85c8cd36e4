// Package schema implements the closed JSON-Schema subset used to describe
// task and workflow input/output shapes: object, array, string, number,
// integer, boolean, and any, with required properties, enum, format, and
// numeric bounds.
package schema

import (
	"fmt"
	"sort"
)

// Kind is one of the closed set of schema node kinds.
type Kind string

const (
	KindObject  Kind = "object"
	KindArray   Kind = "array"
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
	KindAny     Kind = "any"
)

var validKinds = map[Kind]bool{
	KindObject: true, KindArray: true, KindString: true,
	KindNumber: true, KindInteger: true, KindBoolean: true, KindAny: true,
}

// Schema is a parsed node of the schema tree. Only the fields relevant to
// Kind are populated; the rest are zero values.
type Schema struct {
	Kind Kind

	// object
	Properties map[string]*Schema
	Required   []string
	Strict     bool // reject properties not listed in Properties

	// array
	Items *Schema

	// string
	Format string
	Enum   []string

	// number / integer
	Min    *float64
	Max    *float64
}

// Parse builds a Schema from a decoded JSON descriptor (the generic
// map[string]interface{}/[]interface{} shape produced by encoding/json).
func Parse(raw interface{}) (*Schema, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("schema descriptor must be an object, got %T", raw)
	}
	return parseNode(m, "$")
}

func parseNode(m map[string]interface{}, path string) (*Schema, error) {
	kindRaw, ok := m["type"]
	if !ok {
		return nil, fmt.Errorf("%s: missing required \"type\"", path)
	}
	kindStr, ok := kindRaw.(string)
	if !ok {
		return nil, fmt.Errorf("%s: \"type\" must be a string", path)
	}
	kind := Kind(kindStr)
	if !validKinds[kind] {
		return nil, fmt.Errorf("%s: unknown type %q", path, kindStr)
	}

	s := &Schema{Kind: kind}

	switch kind {
	case KindObject:
		if err := parseObject(m, path, s); err != nil {
			return nil, err
		}
	case KindArray:
		itemsRaw, ok := m["items"]
		if !ok {
			return nil, fmt.Errorf("%s: array schema missing \"items\"", path)
		}
		itemsMap, ok := itemsRaw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%s.items: must be an object", path)
		}
		items, err := parseNode(itemsMap, path+".items")
		if err != nil {
			return nil, err
		}
		s.Items = items
	case KindString:
		if f, ok := m["format"].(string); ok {
			s.Format = f
		}
		if enumRaw, ok := m["enum"]; ok {
			enumSlice, ok := enumRaw.([]interface{})
			if !ok {
				return nil, fmt.Errorf("%s.enum: must be an array", path)
			}
			for _, e := range enumSlice {
				es, ok := e.(string)
				if !ok {
					return nil, fmt.Errorf("%s.enum: all values must be strings", path)
				}
				s.Enum = append(s.Enum, es)
			}
		}
	case KindNumber, KindInteger:
		if minRaw, ok := m["minimum"]; ok {
			min, ok := minRaw.(float64)
			if !ok {
				return nil, fmt.Errorf("%s.minimum: must be a number", path)
			}
			s.Min = &min
		}
		if maxRaw, ok := m["maximum"]; ok {
			max, ok := maxRaw.(float64)
			if !ok {
				return nil, fmt.Errorf("%s.maximum: must be a number", path)
			}
			s.Max = &max
		}
		if s.Min != nil && s.Max != nil && *s.Min > *s.Max {
			return nil, fmt.Errorf("%s: minimum %v exceeds maximum %v", path, *s.Min, *s.Max)
		}
	case KindBoolean, KindAny:
		// no additional fields
	}

	return s, nil
}

func parseObject(m map[string]interface{}, path string, s *Schema) error {
	s.Properties = make(map[string]*Schema)
	if propsRaw, ok := m["properties"]; ok {
		props, ok := propsRaw.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%s.properties: must be an object", path)
		}
		for name, propRaw := range props {
			propMap, ok := propRaw.(map[string]interface{})
			if !ok {
				return fmt.Errorf("%s.properties.%s: must be an object", path, name)
			}
			prop, err := parseNode(propMap, fmt.Sprintf("%s.properties.%s", path, name))
			if err != nil {
				return err
			}
			s.Properties[name] = prop
		}
	}
	if reqRaw, ok := m["required"]; ok {
		reqSlice, ok := reqRaw.([]interface{})
		if !ok {
			return fmt.Errorf("%s.required: must be an array", path)
		}
		for _, r := range reqSlice {
			rs, ok := r.(string)
			if !ok {
				return fmt.Errorf("%s.required: all entries must be strings", path)
			}
			if _, exists := s.Properties[rs]; !exists {
				return fmt.Errorf("%s.required: %q is not a declared property", path, rs)
			}
			s.Required = append(s.Required, rs)
		}
	}
	if strictRaw, ok := m["strict"]; ok {
		strict, ok := strictRaw.(bool)
		if !ok {
			return fmt.Errorf("%s.strict: must be a boolean", path)
		}
		s.Strict = strict
	}
	return nil
}

// SortedPropertyNames returns s.Properties' keys in stable, deterministic order.
func (s *Schema) SortedPropertyNames() []string {
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRequired reports whether name is in s.Required.
func (s *Schema) IsRequired(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}
