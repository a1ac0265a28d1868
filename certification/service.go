package certification

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cloudprobe/assure/assets"
	"github.com/cloudprobe/assure/rules"
	"github.com/cloudprobe/assure/storage"
	"github.com/cloudprobe/assure/telemetry"
)

var (
	// ErrControlNotAutomated is returned when monitoring is requested for
	// a control that has no mapped rules.
	ErrControlNotAutomated = errors.New("control has no mapped rules and cannot be monitored")

	// ErrControlNotFound is returned for unknown certification/control ids.
	ErrControlNotFound = errors.New("control not found")
)

// Publisher delivers certification updates to subscribers. Delivery must
// not block the aggregation path.
type Publisher interface {
	Publish(topic string, cert *Certification)
}

// Service owns the loaded certifications and recomputes control
// fulfillment from persisted evaluation results. Aggregation for one
// certification is serialized; different certifications aggregate in
// parallel.
type Service struct {
	mu             sync.RWMutex
	certifications map[string]*Certification

	certLocksMu sync.Mutex
	certLocks   map[string]*sync.Mutex

	rules     *rules.Store
	registry  *assets.Registry
	store     storage.Store
	publisher Publisher

	logger *telemetry.Logger
	tracer trace.Tracer
}

// NewService creates the aggregation service. store and publisher may be
// nil; persistence and publishing are then skipped.
func NewService(ruleStore *rules.Store, registry *assets.Registry, store storage.Store, publisher Publisher) *Service {
	return &Service{
		certifications: make(map[string]*Certification),
		certLocks:      make(map[string]*sync.Mutex),
		rules:          ruleStore,
		registry:       registry,
		store:          store,
		publisher:      publisher,
		logger:         telemetry.NewLogger("certification"),
		tracer:         otel.Tracer("certification"),
	}
}

func (s *Service) lockFor(certID string) *sync.Mutex {
	s.certLocksMu.Lock()
	defer s.certLocksMu.Unlock()

	lock, ok := s.certLocks[certID]
	if !ok {
		lock = &sync.Mutex{}
		s.certLocks[certID] = lock
	}
	return lock
}

// Load registers a certification produced by an external catalogue
// importer, marks controls with mapped rules as automated and starts
// monitoring them.
func (s *Service) Load(ctx context.Context, cert *Certification) {
	// control flags are settled before the certification becomes visible
	// to concurrent aggregation passes
	for _, control := range cert.Controls {
		mapped := s.rules.GetRulesForControl(cert.ID + "/" + control.ControlID)
		control.Automated = len(mapped) > 0
		if control.Automated {
			control.Active = true
		}
	}

	s.mu.Lock()
	s.certifications[cert.ID] = cert
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info().
		Str("certification", cert.ID).
		Int("controls", len(cert.Controls)).
		Msg("certification loaded")

	s.UpdateCertification(ctx, cert.ID, nil)
}

// Certification returns a loaded certification by id.
func (s *Service) Certification(id string) (*Certification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.certifications[id]
	return cert, ok
}

// Certifications returns all loaded certifications.
func (s *Service) Certifications() []*Certification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Certification, 0, len(s.certifications))
	for _, cert := range s.certifications {
		out = append(out, cert)
	}
	return out
}

// StartMonitoring activates a control and immediately recomputes its
// fulfillment. It refuses controls without mapped rules.
func (s *Service) StartMonitoring(ctx context.Context, certID, controlID string) error {
	cert, ok := s.Certification(certID)
	if !ok {
		return ErrControlNotFound
	}
	control := cert.Control(controlID)
	if control == nil {
		return ErrControlNotFound
	}

	mapped := s.rules.GetRulesForControl(certID + "/" + controlID)
	if len(mapped) == 0 {
		return ErrControlNotAutomated
	}

	control.Automated = true
	control.Active = true
	s.UpdateCertification(ctx, certID, []string{controlID})
	return nil
}

// StopMonitoring deactivates a control. Its last fulfillment is kept.
func (s *Service) StopMonitoring(certID, controlID string) {
	if cert, ok := s.Certification(certID); ok {
		if control := cert.Control(controlID); control != nil {
			control.Active = false
		}
	}
}

// UpdateCertifications recomputes fulfillment for every active control of
// every loaded certification. The pipeline calls this after each batch.
func (s *Service) UpdateCertifications(ctx context.Context) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.certifications))
	for id := range s.certifications {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		s.UpdateCertification(ctx, id, nil)
	}
}

// UpdateCertification recomputes fulfillment for the named certification.
// When controlIDs is non-empty, only those controls are recomputed. One
// publish event is emitted per pass, not per control.
func (s *Service) UpdateCertification(ctx context.Context, certID string, controlIDs []string) {
	cert, ok := s.Certification(certID)
	if !ok {
		return
	}

	lock := s.lockFor(certID)
	lock.Lock()
	defer lock.Unlock()

	ctx, span := s.tracer.Start(ctx, "certification.update",
		trace.WithAttributes(attribute.String("certification.id", certID)))
	defer span.End()

	for _, control := range cert.Controls {
		if len(controlIDs) > 0 && !contains(controlIDs, control.ControlID) {
			continue
		}
		if !control.Active {
			continue
		}

		s.aggregateControl(ctx, cert, control)

		telemetry.AggregationPasses.Add(ctx, 1)
		s.logger.LogFulfillment(ctx, control.ControlID, control.Fulfilled.String())

		s.persist(ctx, storage.BucketControls, certID+"/"+control.ControlID, control)
	}

	s.persist(ctx, storage.BucketCertifications, certID, cert)

	if s.publisher != nil {
		s.publisher.Publish(certID, cert)
	}
}

// aggregateControl implements the fulfillment state machine: rules are
// resolved by control-id string at aggregation time, every known result of
// a mapped rule is copied in, and a single failing result turns the pass
// from GOOD to WARNING. No evidence at all means NOT_EVALUATED, whether or
// not rules are mapped.
func (s *Service) aggregateControl(ctx context.Context, cert *Certification, control *Control) {
	control.Results = nil
	control.RuleIDs = nil

	mapped := s.rules.GetRulesForControl(cert.ID + "/" + control.ControlID)
	if len(mapped) == 0 {
		control.Fulfilled = NotEvaluated
		return
	}

	control.Fulfilled = Good

	for _, rule := range mapped {
		control.RuleIDs = append(control.RuleIDs, rule.ID)

		for _, asset := range s.registry.WithType(rule.AssetType()) {
			for _, result := range asset.EvaluationResults {
				if result.RuleID != rule.ID {
					continue
				}
				control.Results = append(control.Results, result)
			}
		}

		// GOOD can only degrade to WARNING within one pass, never recover
		if control.Fulfilled == Good && anyFailed(control.Results) {
			control.Fulfilled = Warning
		}
	}

	if len(control.Results) == 0 {
		// rules configured but nothing observed yet
		control.Fulfilled = NotEvaluated
	}
}

func (s *Service) persist(ctx context.Context, bucket []byte, key string, entity any) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveOrUpdate(bucket, key, entity); err != nil {
		s.logger.WithContext(ctx).Error().
			Err(err).
			Str("key", key).
			Msg("failed to persist entity")
	}
}

func anyFailed(results []assets.EvaluationResult) bool {
	for _, result := range results {
		if result.HasFailedConditions() {
			return true
		}
	}
	return false
}

func contains(list []string, value string) bool {
	for _, element := range list {
		if element == value {
			return true
		}
	}
	return false
}
