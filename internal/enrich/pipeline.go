package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
)

// ErrUpstream marks a fatal ingestion failure: the one condition under
// which a pipeline run produces no alert. Every other stage failure
// degrades into the alert's Errors list instead.
var ErrUpstream = errors.New("log ingestion failed")

// Stage error strings recorded in EnrichedAlert.Errors.
const (
	errSemanticFailed   = "Semantic Interpreter failed"
	errIntentFailed     = "Intent Classifier failed"
	errIntentSkipped    = "Skipped Intent Classifier (dependency missing)"
	errTechniqueFailed  = "Technique Reasoner failed"
	errTechniqueSkipped = "Skipped Technique Reasoner (dependency missing)"
)

// Ingestor normalizes a raw log into the fixed event schema. Mandatory:
// its failure aborts the request.
type Ingestor interface {
	Ingest(ctx context.Context, req *RawLogRequest, correlationID string) (*NormalizedEvent, error)
}

// Interpreter extracts semantic features from a normalized event.
type Interpreter interface {
	Interpret(ctx context.Context, event *NormalizedEvent, correlationID string) (*SemanticInput, error)
}

// IntentClassifier produces an intent verdict for a semantic input.
type IntentClassifier interface {
	Classify(ctx context.Context, in *SemanticInput, debug bool) (*IntentVerdict, error)
}

// TechniqueReasoner maps semantic features to a technique. The intent
// label is a contextual hint only; "unknown" stands in when absent.
type TechniqueReasoner interface {
	Analyze(ctx context.Context, in *SemanticInput, intent, correlationID string) (*TechniqueVerdict, error)
}

// Notifier receives completed alerts the pipeline considers worth
// paging about (high and critical risk).
type Notifier interface {
	Send(ctx context.Context, alert *EnrichedAlert) error
}

// CompleteEvent summarizes a finished pipeline run for observers.
type CompleteEvent struct {
	Status       string // "success" or "upstream_failure"
	Level        RiskLevel
	Score        float64
	Duration     float64
	IntentSource string
	ErrorCount   int
}

// Hooks lets the caller observe pipeline execution, typically for
// metrics. Any field may be nil.
type Hooks struct {
	OnStage    func(stage, outcome string, seconds float64)
	OnComplete func(e *CompleteEvent)
}

// Stage outcome labels reported through Hooks.OnStage.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Pipeline sequences the enrichment stages for one request at a time:
// ingestion (mandatory), semantic interpretation (optional), intent
// classification and technique reasoning (each requiring semantic
// success), then risk aggregation and narrative construction over
// whatever partial results exist. A Pipeline is safe for concurrent
// use; each run owns its own intermediate values.
type Pipeline struct {
	ingestor    Ingestor
	interpreter Interpreter
	classifier  IntentClassifier
	technique   TechniqueReasoner
	callTimeout time.Duration
	logger      log.Logger
	hooks       Hooks
	notifier    Notifier
}

// NewPipeline creates a pipeline with the given collaborators.
// callTimeout bounds each collaborator call individually. notifier may
// be nil.
func NewPipeline(ingestor Ingestor, interpreter Interpreter, classifier IntentClassifier, technique TechniqueReasoner, callTimeout time.Duration, logger log.Logger, hooks Hooks, notifier Notifier) *Pipeline {
	if logger == nil {
		logger = log.Nop()
	}
	return &Pipeline{
		ingestor:    ingestor,
		interpreter: interpreter,
		classifier:  classifier,
		technique:   technique,
		callTimeout: callTimeout,
		logger:      logger,
		hooks:       hooks,
		notifier:    notifier,
	}
}

// Run executes the pipeline for one raw log. It returns ErrUpstream
// (wrapped) only when ingestion fails; every other stage failure is
// recorded in the returned alert's Errors list and the run still
// succeeds. No stage is retried here; the classification policy owns
// its own retry budget for the external reasoner.
func (p *Pipeline) Run(ctx context.Context, req *RawLogRequest, debug bool) (*EnrichedAlert, error) {
	start := time.Now()
	correlationID := ulid.Make().String()

	L := p.logger.With("correlation_id", correlationID, "source", req.Source)
	L.Info(ctx, "starting enrichment")

	alert := &EnrichedAlert{
		CorrelationID: correlationID,
		RawLog:        req.RawLog,
		Source:        req.Source,
		EventType:     req.EventType,
		Errors:        []string{},
	}

	// Stage 1: ingestion. The sole fatal stage.
	normalized, err := p.runIngestion(ctx, req, correlationID)
	if err != nil {
		L.Error(ctx, err, "ingestion failed, aborting enrichment")
		p.complete(start, alert, "upstream_failure")
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	alert.Normalized = normalized
	if alert.Source == "" {
		alert.Source = normalized.Source
	}

	// Stage 2: semantic interpretation. Optional; failure skips the
	// two stages that depend on it but the pipeline continues.
	semantic, err := p.runSemantic(ctx, normalized, correlationID)
	if err != nil {
		L.Warn(ctx, "semantic interpretation failed", "error", err)
		alert.Errors = append(alert.Errors, errSemanticFailed)
	}
	alert.Semantic = semantic

	// Stage 3: intent classification, requires semantic success.
	if semantic != nil {
		verdict, err := p.runIntent(ctx, semantic, debug)
		if err != nil {
			L.Warn(ctx, "intent classification failed", "error", err)
			alert.Errors = append(alert.Errors, errIntentFailed)
		}
		alert.Intent = verdict
	} else {
		p.stage("intent", OutcomeSkipped, 0)
		alert.Errors = append(alert.Errors, errIntentSkipped)
	}

	// Stage 4: technique reasoning, requires semantic success. Uses
	// the intent label purely as a hint, "unknown" when absent.
	if semantic != nil {
		verdict, err := p.runTechnique(ctx, semantic, alert.IntentLabel(), correlationID)
		if err != nil {
			L.Warn(ctx, "technique reasoning failed", "error", err)
			alert.Errors = append(alert.Errors, errTechniqueFailed)
		}
		alert.Technique = verdict
	} else {
		p.stage("technique", OutcomeSkipped, 0)
		alert.Errors = append(alert.Errors, errTechniqueSkipped)
	}

	// Stages 5-6: risk fusion and narrative over whatever exists.
	alert.Risk = ComputeRisk(alert.Semantic, alert.Intent, alert.Technique)
	alert.Summary = BuildSummary(alert.Normalized, alert.Semantic, alert.Intent, alert.Technique, alert.Risk)
	alert.Recommendations = BuildRecommendations(alert.Intent, alert.Technique, alert.Risk)

	L.Info(ctx, "enrichment complete",
		"risk_level", alert.Risk.Level,
		"risk_score", alert.Risk.Score,
		"intent", alert.IntentLabel(),
		"errors", len(alert.Errors),
	)
	p.complete(start, alert, "success")

	if p.notifier != nil && (alert.Risk.Level == LevelHigh || alert.Risk.Level == LevelCritical) {
		// notify asynchronously so a slow webhook never delays the response
		go func(nctx context.Context) {
			if err := p.notifier.Send(nctx, alert); err != nil {
				L.Error(nctx, err, "alert notification failed")
			}
		}(context.WithoutCancel(ctx))
	}

	return alert, nil
}

func (p *Pipeline) runIngestion(ctx context.Context, req *RawLogRequest, correlationID string) (*NormalizedEvent, error) {
	cctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	start := time.Now()
	out, err := p.ingestor.Ingest(cctx, req, correlationID)
	p.stage("ingestion", outcomeOf(err), time.Since(start).Seconds())
	return out, err
}

func (p *Pipeline) runSemantic(ctx context.Context, event *NormalizedEvent, correlationID string) (*SemanticInput, error) {
	cctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	start := time.Now()
	out, err := p.interpreter.Interpret(cctx, event, correlationID)
	p.stage("semantic", outcomeOf(err), time.Since(start).Seconds())
	return out, err
}

// runIntent is not bounded by the per-call timeout: the classifier's
// external-reasoner sub-call owns its own retry budget, and the rule
// engine itself is local and fast.
func (p *Pipeline) runIntent(ctx context.Context, in *SemanticInput, debug bool) (*IntentVerdict, error) {
	start := time.Now()
	out, err := p.classifier.Classify(ctx, in, debug)
	p.stage("intent", outcomeOf(err), time.Since(start).Seconds())
	return out, err
}

func (p *Pipeline) runTechnique(ctx context.Context, in *SemanticInput, intent, correlationID string) (*TechniqueVerdict, error) {
	cctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	start := time.Now()
	out, err := p.technique.Analyze(cctx, in, intent, correlationID)
	p.stage("technique", outcomeOf(err), time.Since(start).Seconds())
	return out, err
}

func (p *Pipeline) stage(name, outcome string, seconds float64) {
	if p.hooks.OnStage != nil {
		p.hooks.OnStage(name, outcome, seconds)
	}
}

func (p *Pipeline) complete(start time.Time, alert *EnrichedAlert, status string) {
	if p.hooks.OnComplete == nil {
		return
	}
	e := &CompleteEvent{
		Status:     status,
		Duration:   time.Since(start).Seconds(),
		ErrorCount: len(alert.Errors),
	}
	if alert.Risk != nil {
		e.Level = alert.Risk.Level
		e.Score = alert.Risk.Score
	}
	if alert.Intent != nil {
		e.IntentSource = string(alert.Intent.Source)
	}
	p.hooks.OnComplete(e)
}

func outcomeOf(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
