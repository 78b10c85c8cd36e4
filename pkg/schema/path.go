package schema

import "fmt"

// PathStep is one field-name or array-index step of a structural path,
// mirroring pkg/template.Segment without introducing a dependency on that
// package from this leaf package.
type PathStep struct {
	Name    string
	Index   int
	IsIndex bool
}

// DeriveAt walks s along steps and returns the Schema describing the value
// found there — used to derive the schema of a `tasks.<id>.output.<path>`
// or `input.<path>` expression for compile-time compatibility checking
// (§4.5 step 4).
func DeriveAt(s *Schema, steps []PathStep) (*Schema, error) {
	current := s
	for i, step := range steps {
		if current.Kind == KindAny {
			return current, nil
		}
		if step.IsIndex {
			if current.Kind != KindArray {
				return nil, fmt.Errorf("step %d (%s): not an array", i, current.Kind)
			}
			current = current.Items
			continue
		}
		if current.Kind != KindObject {
			return nil, fmt.Errorf("step %d (%q): not an object", i, step.Name)
		}
		prop, ok := current.Properties[step.Name]
		if !ok {
			return nil, fmt.Errorf("step %d: property %q is not declared", i, step.Name)
		}
		current = prop
	}
	return current, nil
}
