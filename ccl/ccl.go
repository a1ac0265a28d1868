// Package ccl implements the condition language used by compliance rules:
// one boolean predicate per line, checked against the property bag of a
// discovered cloud asset.
//
// Grammar:
//
//	<assetType>[ "(" <filter> ")" ] "." <path> <operator> [<operand>]
//
// where <filter> is itself "<path> <operator> [<operand>]" evaluated on the
// same property bag, e.g.
//
//	AWS::EC2::Instance(platform == "windows").publicIp not exists
package ccl

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCondition is returned for every malformed condition line.
var ErrInvalidCondition = errors.New("invalid condition")

// ParseCondition parses one non-comment, non-blank CCL line.
func ParseCondition(line string) (*Condition, error) {
	source := strings.TrimSpace(line)
	if source == "" || strings.HasPrefix(source, "#") {
		return nil, fmt.Errorf("%w: empty line", ErrInvalidCondition)
	}

	assetType, rest, err := splitAssetType(source)
	if err != nil {
		return nil, err
	}

	condition, err := parseExpression(rest)
	if err != nil {
		return nil, err
	}

	condition.AssetType = assetType
	condition.Source = source

	return condition, nil
}

// splitAssetType cuts the asset type reference, including an optional
// filter predicate in parentheses, off the front of the line.
func splitAssetType(source string) (*AssetType, string, error) {
	paren := strings.IndexByte(source, '(')
	dot := strings.IndexByte(source, '.')

	if dot < 0 {
		return nil, "", fmt.Errorf("%w: missing property path in %q", ErrInvalidCondition, source)
	}

	// plain asset type: the first dot comes before any parenthesis
	if paren < 0 || dot < paren {
		name := source[:dot]
		if name == "" {
			return nil, "", fmt.Errorf("%w: missing asset type in %q", ErrInvalidCondition, source)
		}
		return &AssetType{Value: name}, source[dot+1:], nil
	}

	name := source[:paren]
	if name == "" {
		return nil, "", fmt.Errorf("%w: missing asset type in %q", ErrInvalidCondition, source)
	}

	closing := matchingParen(source, paren)
	if closing < 0 {
		return nil, "", fmt.Errorf("%w: unbalanced filter in %q", ErrInvalidCondition, source)
	}

	filter, err := parseExpression(source[paren+1 : closing])
	if err != nil {
		return nil, "", fmt.Errorf("invalid filter predicate: %w", err)
	}
	filter.Source = strings.TrimSpace(source[paren+1 : closing])

	rest := source[closing+1:]
	if !strings.HasPrefix(rest, ".") {
		return nil, "", fmt.Errorf("%w: expected '.' after filter in %q", ErrInvalidCondition, source)
	}

	return &AssetType{Value: name, Filter: filter}, rest[1:], nil
}

// matchingParen finds the parenthesis closing the one at open, skipping
// over quoted operand text.
func matchingParen(source string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(source); i++ {
		ch := source[i]
		if quote != 0 {
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'':
			quote = ch
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// parseExpression parses "<path> <operator> [<operand>]".
func parseExpression(expr string) (*Condition, error) {
	expr = strings.TrimSpace(expr)

	path, rest, found := strings.Cut(expr, " ")
	if !found || path == "" {
		return nil, fmt.Errorf("%w: expected operator in %q", ErrInvalidCondition, expr)
	}
	rest = strings.TrimSpace(rest)

	switch rest {
	case "exists":
		return &Condition{Path: path, Op: OpExists}, nil
	case "not exists":
		return &Condition{Path: path, Op: OpNotExists}, nil
	}

	token, operand, found := strings.Cut(rest, " ")
	if !found {
		return nil, fmt.Errorf("%w: missing operand in %q", ErrInvalidCondition, expr)
	}

	op, ok := opFromToken(token)
	if !ok {
		return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidCondition, token)
	}

	value, err := ParseValue(operand)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCondition, err)
	}

	return &Condition{Path: path, Op: op, Operand: value}, nil
}
