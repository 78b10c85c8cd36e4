// Package compat implements structural type-compatibility checking between
// a producer schema (an upstream task's declared output, or a literal
// input value's inferred shape) and a consumer schema (a downstream task's
// declared input), per the engine's structural-subtyping rules.
package compat

import (
	"fmt"

	"github.com/lyzr/workflowengine/pkg/schema"
)

// Incompatibility is a single structural mismatch found walking producer
// against consumer.
type Incompatibility struct {
	Path   string
	Reason string
}

func (i Incompatibility) String() string {
	return fmt.Sprintf("%s: %s", i.Path, i.Reason)
}

// Check walks producer and consumer together and collects every structural
// incompatibility. An empty result means producer can always satisfy
// consumer at runtime.
//
// Rules:
//   - consumer kind "any" is satisfied by any producer kind.
//   - producer kind "any" can satisfy nothing but consumer "any" (the
//     producer's actual shape is unknown at compile time).
//   - primitive kinds (string/number/integer/boolean) are compatible only
//     with themselves, except producer integer satisfies consumer number
//     (every integer is a number).
//   - object: every property required by consumer must be present in
//     producer's properties, be required by producer too, and be
//     compatible; extra producer properties are always fine (structural
//     width subtyping).
//   - array: producer.Items must be compatible with consumer.Items.
//   - string enum: if consumer declares an enum, producer's enum (if any)
//     must be a subset of consumer's; a producer with no enum constraint
//     cannot statically satisfy a consumer enum and is flagged.
func Check(producer, consumer *schema.Schema) []Incompatibility {
	return checkAt(producer, consumer, "$")
}

func checkAt(producer, consumer *schema.Schema, path string) []Incompatibility {
	if consumer.Kind == schema.KindAny {
		return nil
	}
	if producer.Kind == schema.KindAny {
		return []Incompatibility{{Path: path, Reason: "producer type is \"any\"; cannot statically verify compatibility with a concrete consumer type"}}
	}

	if producer.Kind != consumer.Kind {
		if producer.Kind == schema.KindInteger && consumer.Kind == schema.KindNumber {
			// every integer is a number: allowed
		} else {
			return []Incompatibility{{Path: path,
				Reason: fmt.Sprintf("producer type %q is not compatible with consumer type %q", producer.Kind, consumer.Kind)}}
		}
	}

	switch consumer.Kind {
	case schema.KindObject:
		return checkObject(producer, consumer, path)
	case schema.KindArray:
		return checkAt(producer.Items, consumer.Items, path+"[]")
	case schema.KindString:
		out := checkEnum(producer, consumer, path)
		out = append(out, checkFormat(producer, consumer, path)...)
		return out
	case schema.KindNumber, schema.KindInteger, schema.KindBoolean:
		return checkRange(producer, consumer, path)
	}
	return nil
}

func checkObject(producer, consumer *schema.Schema, path string) []Incompatibility {
	var out []Incompatibility
	for _, name := range consumer.SortedPropertyNames() {
		consumerProp := consumer.Properties[name]
		if !consumer.IsRequired(name) {
			// optional consumer property: only check compatibility if producer declares it
			if producerProp, ok := producer.Properties[name]; ok {
				out = append(out, checkAt(producerProp, consumerProp, path+"."+name)...)
			}
			continue
		}
		producerProp, ok := producer.Properties[name]
		if !ok {
			out = append(out, Incompatibility{Path: path + "." + name,
				Reason: fmt.Sprintf("consumer requires property %q which producer never declares", name)})
			continue
		}
		if !producer.IsRequired(name) {
			out = append(out, Incompatibility{Path: path + "." + name,
				Reason: fmt.Sprintf("consumer requires property %q which producer declares but does not require", name)})
			continue
		}
		out = append(out, checkAt(producerProp, consumerProp, path+"."+name)...)
	}
	return out
}

func checkEnum(producer, consumer *schema.Schema, path string) []Incompatibility {
	if len(consumer.Enum) == 0 {
		return nil
	}
	if len(producer.Enum) == 0 {
		return []Incompatibility{{Path: path,
			Reason: "consumer restricts values to an enum but producer declares no enum constraint"}}
	}
	allowed := make(map[string]bool, len(consumer.Enum))
	for _, e := range consumer.Enum {
		allowed[e] = true
	}
	for _, e := range producer.Enum {
		if !allowed[e] {
			return []Incompatibility{{Path: path,
				Reason: fmt.Sprintf("producer enum value %q is not permitted by consumer enum", e)}}
		}
	}
	return nil
}

// checkFormat implements the spec's documented choice for the open question
// on string formats: a consumer format constraint is satisfied only by a
// producer declaring the identical format. A producer with no format
// constraint cannot satisfy a consumer that requires one.
func checkFormat(producer, consumer *schema.Schema, path string) []Incompatibility {
	if consumer.Format == "" {
		return nil
	}
	if producer.Format != consumer.Format {
		return []Incompatibility{{Path: path,
			Reason: fmt.Sprintf("consumer requires format %q, producer declares %q", consumer.Format, producer.Format)}}
	}
	return nil
}

func checkRange(producer, consumer *schema.Schema, path string) []Incompatibility {
	if consumer.Min != nil {
		if producer.Min == nil || *producer.Min < *consumer.Min {
			return []Incompatibility{{Path: path,
				Reason: fmt.Sprintf("consumer requires minimum %v which producer does not guarantee", *consumer.Min)}}
		}
	}
	if consumer.Max != nil {
		if producer.Max == nil || *producer.Max > *consumer.Max {
			return []Incompatibility{{Path: path,
				Reason: fmt.Sprintf("consumer requires maximum %v which producer does not guarantee", *consumer.Max)}}
		}
	}
	return nil
}
