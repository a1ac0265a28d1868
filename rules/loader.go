package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/cloudprobe/assure/ccl"
)

// LoadRule parses a rule from a lightly-structured markdown document:
//
//	# <rule name>
//	<description paragraph>
//
//	## Controls
//	* <certificationId>/<controlId>
//
//	```ccl
//	<one condition per line>
//	```
//
// A missing level-1 heading or any unparseable condition line fails the
// whole document with ErrMalformedRule.
func LoadRule(path string) (*Rule, error) {
	source, err := os.ReadFile(path) // #nosec G304 -- rule paths come from the configured rules dir
	if err != nil {
		return nil, fmt.Errorf("read rule document: %w", err)
	}

	rule, err := parseRuleDocument(source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	rule.ID = ruleID(path)
	rule.Active = true

	return rule, nil
}

// ruleID flattens the <catalogue>/<category>/<file> hierarchy into a unique
// id: grandparent directory, parent directory and file stem joined by "-".
func ruleID(path string) string {
	clean := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(clean))
	grandparent := filepath.Base(filepath.Dir(filepath.Dir(clean)))
	stem := strings.TrimSuffix(filepath.Base(clean), filepath.Ext(clean))

	return grandparent + "-" + parent + "-" + stem
}

func parseRuleDocument(source []byte) (*Rule, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	rule := &Rule{}
	inControls := false

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Heading:
			inControls = false
			switch n.Level {
			case 1:
				rule.Name = nodeText(n, source)
				if paragraph, ok := node.NextSibling().(*ast.Paragraph); ok {
					rule.Description = nodeText(paragraph, source)
				}
			case 2:
				if strings.EqualFold(nodeText(n, source), "Controls") {
					inControls = true
				}
			}
		case *ast.List:
			if !inControls {
				continue
			}
			for item := n.FirstChild(); item != nil; item = item.NextSibling() {
				rule.Controls = append(rule.Controls, nodeText(item, source))
			}
		case *ast.FencedCodeBlock:
			if err := parseConditionBlock(rule, n, source); err != nil {
				return nil, err
			}
		}
	}

	if rule.Name == "" {
		return nil, fmt.Errorf("%w: no level-1 heading found", ErrMalformedRule)
	}

	return rule, nil
}

func parseConditionBlock(rule *Rule, block *ast.FencedCodeBlock, source []byte) error {
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		line := strings.TrimSpace(string(seg.Value(source)))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		condition, err := ccl.ParseCondition(line)
		if err != nil {
			return fmt.Errorf("%w: line %q: %v", ErrMalformedRule, line, err)
		}

		rule.Conditions = append(rule.Conditions, condition)
	}
	return nil
}

// CheckAssetTypes verifies the convention that all conditions of a rule
// reference the same asset type. A mismatch is a warning, not fatal: the
// first condition's type stays authoritative for matching.
func CheckAssetTypes(rule *Rule) error {
	if len(rule.Conditions) < 2 {
		return nil
	}
	first := rule.Conditions[0].AssetType.Value
	for _, condition := range rule.Conditions[1:] {
		if condition.AssetType.Value != first {
			return fmt.Errorf("%w: %q and %q in rule %s",
				ErrAssetTypeMismatch, first, condition.AssetType.Value, rule.ID)
		}
	}
	return nil
}

// nodeText renders the inline text content of a node, dropping markup.
func nodeText(node ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(node, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := child.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
