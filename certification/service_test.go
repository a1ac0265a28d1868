package certification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudprobe/assure/assets"
	"github.com/cloudprobe/assure/ccl"
	"github.com/cloudprobe/assure/rules"
)

type recordingPublisher struct {
	topics []string
}

func (r *recordingPublisher) Publish(topic string, cert *Certification) {
	r.topics = append(r.topics, topic)
}

func demoCertification() *Certification {
	return &Certification{
		ID:        "demo-cert",
		Publisher: "Demo Institute",
		Controls: []*Control{
			{ControlID: "CLD.1.2", Name: "Encryption at rest"},
			{ControlID: "CLD.2.1", Name: "Public access prevention"},
		},
	}
}

func ruleFor(t *testing.T, id, control, line string) *rules.Rule {
	t.Helper()
	cond, err := ccl.ParseCondition(line)
	require.NoError(t, err)
	return &rules.Rule{
		ID:         id,
		Active:     true,
		Controls:   []string{control},
		Conditions: []*ccl.Condition{cond},
	}
}

func TestLoadMarksAutomatedControls(t *testing.T) {
	ruleStore := rules.NewStore()
	ruleStore.Add(ruleFor(t, "aws-s3-encryption", "demo-cert/CLD.1.2",
		`Bucket.encryption == true`))

	service := NewService(ruleStore, assets.NewRegistry(), nil, nil)
	service.Load(context.Background(), demoCertification())

	cert, ok := service.Certification("demo-cert")
	require.True(t, ok)

	automated := cert.Control("CLD.1.2")
	assert.True(t, automated.Automated)
	assert.True(t, automated.Active)
	// rules are mapped but no asset has been evaluated yet
	assert.Equal(t, NotEvaluated, automated.Fulfilled)

	manual := cert.Control("CLD.2.1")
	assert.False(t, manual.Automated)
	assert.False(t, manual.Active)
}

func TestLoadPublishesSettledControls(t *testing.T) {
	ruleStore := rules.NewStore()
	ruleStore.Add(ruleFor(t, "aws-s3-encryption", "demo-cert/CLD.1.2",
		`Bucket.encryption == true`))

	service := NewService(ruleStore, assets.NewRegistry(), nil, nil)

	// a reader polling during Load must never observe the certification
	// before its control flags are settled
	firstSight := make(chan bool, 1)
	go func() {
		for {
			if cert, ok := service.Certification("demo-cert"); ok {
				firstSight <- cert.Control("CLD.1.2").Automated
				return
			}
		}
	}()

	service.Load(context.Background(), demoCertification())
	assert.True(t, <-firstSight, "certification visible before control flags were set")
}

func TestStartMonitoring(t *testing.T) {
	ruleStore := rules.NewStore()
	ruleStore.Add(ruleFor(t, "aws-s3-encryption", "demo-cert/CLD.1.2",
		`Bucket.encryption == true`))

	service := NewService(ruleStore, assets.NewRegistry(), nil, nil)
	service.Load(context.Background(), demoCertification())
	ctx := context.Background()

	// a control without mapped rules cannot be monitored
	err := service.StartMonitoring(ctx, "demo-cert", "CLD.2.1")
	assert.ErrorIs(t, err, ErrControlNotAutomated)
	cert, _ := service.Certification("demo-cert")
	assert.False(t, cert.Control("CLD.2.1").Active)

	assert.ErrorIs(t, service.StartMonitoring(ctx, "demo-cert", "CLD.9.9"), ErrControlNotFound)
	assert.ErrorIs(t, service.StartMonitoring(ctx, "no-such-cert", "CLD.1.2"), ErrControlNotFound)

	require.NoError(t, service.StartMonitoring(ctx, "demo-cert", "CLD.1.2"))
	assert.True(t, cert.Control("CLD.1.2").Active)

	service.StopMonitoring("demo-cert", "CLD.1.2")
	assert.False(t, cert.Control("CLD.1.2").Active)
}

func TestAggregationStateMachine(t *testing.T) {
	ruleStore := rules.NewStore()
	ruleStore.Add(ruleFor(t, "aws-s3-encryption", "demo-cert/CLD.1.2",
		`Bucket.encryption == true`))

	registry := assets.NewRegistry()
	publisher := &recordingPublisher{}
	service := NewService(ruleStore, registry, nil, publisher)
	service.Load(context.Background(), demoCertification())
	ctx := context.Background()

	cert, _ := service.Certification("demo-cert")
	control := cert.Control("CLD.1.2")

	// no evidence yet
	service.UpdateCertifications(ctx)
	assert.Equal(t, NotEvaluated, control.Fulfilled)

	// one passing result
	registry.Update(&assets.Asset{ID: "b-1", Type: "Bucket",
		EvaluationResults: []assets.EvaluationResult{{RuleID: "aws-s3-encryption"}}})
	service.UpdateCertifications(ctx)
	assert.Equal(t, Good, control.Fulfilled)
	assert.Equal(t, []string{"aws-s3-encryption"}, control.RuleIDs)
	assert.Len(t, control.Results, 1)

	// one failing result among passing ones degrades to WARNING
	registry.Update(&assets.Asset{ID: "b-2", Type: "Bucket",
		EvaluationResults: []assets.EvaluationResult{{
			RuleID:           "aws-s3-encryption",
			FailedConditions: []string{`Bucket.encryption == true`},
		}}})
	service.UpdateCertifications(ctx)
	assert.Equal(t, Warning, control.Fulfilled)

	// the violating asset disappears; WARNING recovers on the next pass
	registry.Update(&assets.Asset{ID: "b-2", Type: "Bucket",
		EvaluationResults: []assets.EvaluationResult{{RuleID: "aws-s3-encryption"}}})
	service.UpdateCertifications(ctx)
	assert.Equal(t, Good, control.Fulfilled)

	// one publish per pass, not per control; Load published once already
	assert.GreaterOrEqual(t, len(publisher.topics), 4)
	for _, topic := range publisher.topics {
		assert.Equal(t, "demo-cert", topic)
	}
}

func TestAggregationIgnoresOtherRules(t *testing.T) {
	ruleStore := rules.NewStore()
	ruleStore.Add(ruleFor(t, "aws-s3-encryption", "demo-cert/CLD.1.2",
		`Bucket.encryption == true`))
	ruleStore.Add(ruleFor(t, "aws-s3-versioning", "other-cert/X.1",
		`Bucket.versioning == true`))

	registry := assets.NewRegistry()
	registry.Update(&assets.Asset{ID: "b-1", Type: "Bucket",
		EvaluationResults: []assets.EvaluationResult{
			{RuleID: "aws-s3-encryption"},
			{RuleID: "aws-s3-versioning", FailedConditions: []string{`Bucket.versioning == true`}},
		}})

	service := NewService(ruleStore, registry, nil, nil)
	service.Load(context.Background(), demoCertification())

	cert, _ := service.Certification("demo-cert")
	control := cert.Control("CLD.1.2")

	// the versioning failure belongs to another certification's control
	assert.Equal(t, Good, control.Fulfilled)
	assert.Len(t, control.Results, 1)
}

func TestAggregationResetsWhenRulesDisappear(t *testing.T) {
	ruleStore := rules.NewStore()
	ruleStore.Add(ruleFor(t, "aws-s3-encryption", "demo-cert/CLD.1.2",
		`Bucket.encryption == true`))

	registry := assets.NewRegistry()
	registry.Update(&assets.Asset{ID: "b-1", Type: "Bucket",
		EvaluationResults: []assets.EvaluationResult{{RuleID: "aws-s3-encryption"}}})

	service := NewService(ruleStore, registry, nil, nil)
	ctx := context.Background()
	service.Load(ctx, demoCertification())

	cert, _ := service.Certification("demo-cert")
	control := cert.Control("CLD.1.2")
	require.Equal(t, Good, control.Fulfilled)

	// a reload dropped the rule mapping; the control returns to NOT_EVALUATED
	require.NoError(t, ruleStore.Load(ctx, t.TempDir()))
	service.UpdateCertifications(ctx)
	assert.Equal(t, NotEvaluated, control.Fulfilled)
	assert.Empty(t, control.RuleIDs)
	assert.Empty(t, control.Results)
}
