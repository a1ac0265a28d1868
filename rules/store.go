package rules

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cloudprobe/assure/telemetry"
)

// Store indexes rules by asset type and owns rule identity. Loading builds
// a fresh index and swaps it in atomically, so concurrent readers never
// observe a partially populated index.
type Store struct {
	mu     sync.RWMutex
	byType map[string][]*Rule
	byID   map[string]*Rule

	logger *telemetry.Logger
	tracer trace.Tracer
}

// NewStore creates an empty rule store.
func NewStore() *Store {
	return &Store{
		byType: make(map[string][]*Rule),
		byID:   make(map[string]*Rule),
		logger: telemetry.NewLogger("rule-store"),
		tracer: otel.Tracer("rule-store"),
	}
}

// Load recursively loads every rule document under root and swaps the new
// index in. A directory without loadable documents is not an error; a
// document that fails to parse is logged and skipped, loading continues.
func (s *Store) Load(ctx context.Context, root string) error {
	ctx, span := s.tracer.Start(ctx, "rule_store.load",
		trace.WithAttributes(attribute.String("rules.root", root)))
	defer span.End()

	byType := make(map[string][]*Rule)
	byID := make(map[string]*Rule)

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		rule, err := s.loadDocument(ctx, path)
		if err != nil {
			s.logger.WithContext(ctx).Warn().
				Err(err).
				Str("path", path).
				Msg("rule not loaded")
			return nil
		}

		s.indexRule(ctx, byType, byID, rule)
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.byType = byType
	s.byID = byID
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info().
		Str("root", root).
		Int("rules", len(byID)).
		Msg("rule index swapped in")

	return nil
}

func (s *Store) loadDocument(ctx context.Context, path string) (*Rule, error) {
	if strings.EqualFold(filepath.Ext(path), ".rego") {
		return LoadRegoRule(ctx, path)
	}
	return LoadRule(path)
}

func (s *Store) indexRule(ctx context.Context, byType map[string][]*Rule, byID map[string]*Rule, rule *Rule) {
	if err := CheckAssetTypes(rule); err != nil {
		s.logger.WithContext(ctx).Warn().
			Err(err).
			Str("rule_id", rule.ID).
			Msg("using first condition's asset type")
	}

	assetType := rule.AssetType()
	if assetType == "" {
		// a rule without conditions matches nothing
		s.logger.WithContext(ctx).Warn().
			Str("rule_id", rule.ID).
			Msg("rule has no asset type, not indexed")
		return
	}

	byType[assetType] = append(byType[assetType], rule)
	byID[rule.ID] = rule

	s.logger.WithContext(ctx).Debug().
		Str("rule_id", rule.ID).
		Str("asset_type", assetType).
		Msg("rule indexed")
}

// Add inserts a single rule into the live index.
func (s *Store) Add(rule *Rule) {
	assetType := rule.AssetType()
	if assetType == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byType[assetType] = append(s.byType[assetType], rule)
	s.byID[rule.ID] = rule
}

// Get returns the active rules for an asset type, empty if none.
func (s *Store) Get(assetType string) []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*Rule
	for _, rule := range s.byType[assetType] {
		if rule.Active {
			active = append(active, rule)
		}
	}
	return active
}

// GetWithID returns the rule with the given id, or nil.
func (s *Store) GetWithID(id string) *Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id]
}

// GetRulesForControl returns every rule that lists the given
// "certificationId/controlId" key. Linear scan; reloads are rare relative
// to lookups and the rule count is small.
func (s *Store) GetRulesForControl(controlKey string) []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Rule
	for _, rules := range s.byType {
		for _, rule := range rules {
			for _, control := range rule.Controls {
				if control == controlKey {
					matched = append(matched, rule)
					break
				}
			}
		}
	}
	return matched
}

// All returns every loaded rule, active or not.
func (s *Store) All() []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*Rule, 0, len(s.byID))
	for _, rule := range s.byID {
		all = append(all, rule)
	}
	return all
}

// Count returns the number of indexed rules.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
