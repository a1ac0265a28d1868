package ccl

import (
	"regexp"
	"strings"
	"sync"

	"github.com/cloudprobe/assure/assets"
)

// AssetType is the taxonomy reference of a condition. A plain asset type
// applies to every asset of that type; a filtered one additionally carries
// a predicate that must hold before the owning rule applies at all.
//
// This is a tagged variant, not a hierarchy: Filter == nil means plain.
type AssetType struct {
	Value  string
	Filter *Condition
}

// IsFiltered reports whether the type narrows applicability via a predicate.
func (t *AssetType) IsFiltered() bool {
	return t != nil && t.Filter != nil
}

// Evaluate runs the applicability predicate. A plain asset type always
// applies.
func (t *AssetType) Evaluate(props assets.AssetProperties) bool {
	if !t.IsFiltered() {
		return true
	}
	return t.Filter.Evaluate(props)
}

// Condition is a single predicate clause over an asset's properties.
type Condition struct {
	AssetType *AssetType
	Path      string
	Op        Op
	Operand   Value

	// Source is the original CCL line; it identifies the condition in
	// evaluation results across rule reloads.
	Source string

	regexOnce sync.Once
	regex     *regexp.Regexp
}

// Evaluate applies the condition to a property bag. It is pure and
// deterministic; any type mismatch or regex failure degrades to false
// rather than propagating.
func (c *Condition) Evaluate(props assets.AssetProperties) bool {
	value, ok := props.Value(c.Path)

	switch c.Op {
	case OpExists:
		return ok
	case OpNotExists:
		return !ok
	}

	if !ok {
		// missing path fails every remaining operator
		return false
	}

	return c.compareValue(value)
}

// compareValue applies the operator. A list value means "at least one
// element satisfies"; for contains a list means membership, so elements
// are matched by equality instead of substring.
func (c *Condition) compareValue(value any) bool {
	if list, isList := value.([]any); isList {
		for _, element := range list {
			var match bool
			if c.Op == OpContains {
				match = c.equalsOperand(element)
			} else {
				match = c.compareScalar(element)
			}
			if match {
				return true
			}
		}
		return false
	}
	return c.compareScalar(value)
}

// equalsOperand tests element equality with the same coercion rules as ==.
func (c *Condition) equalsOperand(value any) bool {
	return c.compareWith(equalsComparator{}, value)
}

func (c *Condition) compareScalar(value any) bool {
	switch c.Op {
	case OpContains:
		s, isString := value.(string)
		if !isString {
			return false
		}
		return strings.Contains(s, c.Operand.String())
	case OpMatches:
		re := c.compiledRegex()
		if re == nil {
			return false
		}
		return re.MatchString(canonical(value))
	}

	cmp := comparatorFor(c.Op)
	if cmp == nil {
		return false
	}
	return c.compareWith(cmp, value)
}

func (c *Condition) compareWith(cmp comparator, value any) bool {
	if lhs, ok := toFloat(value); ok {
		if rhs, ok := c.Operand.Float(); ok {
			b, err := cmp.CompareFloat(lhs, rhs)
			return err == nil && b
		}
	}

	if lhs, ok := value.(bool); ok {
		if rhs, ok := c.Operand.Bool(); ok {
			b, err := cmp.CompareBool(lhs, rhs)
			return err == nil && b
		}
	}

	b, err := cmp.CompareString(canonical(value), c.Operand.String())
	return err == nil && b
}

func (c *Condition) compiledRegex() *regexp.Regexp {
	c.regexOnce.Do(func() {
		re, err := regexp.Compile(c.Operand.String())
		if err == nil {
			c.regex = re
		}
	})
	return c.regex
}
