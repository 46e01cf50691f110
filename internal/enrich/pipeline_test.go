package enrich

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

type mockIngestor struct {
	event *NormalizedEvent
	err   error
	calls int
}

func (m *mockIngestor) Ingest(_ context.Context, _ *RawLogRequest, _ string) (*NormalizedEvent, error) {
	m.calls++
	return m.event, m.err
}

type mockInterpreter struct {
	semantic *SemanticInput
	err      error
	calls    int
}

func (m *mockInterpreter) Interpret(_ context.Context, _ *NormalizedEvent, _ string) (*SemanticInput, error) {
	m.calls++
	return m.semantic, m.err
}

type mockClassifier struct {
	verdict *IntentVerdict
	err     error
	calls   int
}

func (m *mockClassifier) Classify(_ context.Context, _ *SemanticInput, _ bool) (*IntentVerdict, error) {
	m.calls++
	return m.verdict, m.err
}

type mockTechnique struct {
	verdict *TechniqueVerdict
	err     error
	calls   int

	lastIntent string
}

func (m *mockTechnique) Analyze(_ context.Context, _ *SemanticInput, intent, _ string) (*TechniqueVerdict, error) {
	m.calls++
	m.lastIntent = intent
	return m.verdict, m.err
}

type mockNotifier struct {
	mu    sync.Mutex
	sent  []*EnrichedAlert
	done  chan struct{}
	err   error
	once  sync.Once
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{done: make(chan struct{})}
}

func (m *mockNotifier) Send(_ context.Context, alert *EnrichedAlert) error {
	m.mu.Lock()
	m.sent = append(m.sent, alert)
	m.mu.Unlock()
	m.once.Do(func() { close(m.done) })
	return m.err
}

func (m *mockNotifier) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// stageRecorder captures hook invocations for assertions.
type stageRecorder struct {
	mu       sync.Mutex
	stages   map[string]string
	complete *CompleteEvent
}

func newStageRecorder() *stageRecorder {
	return &stageRecorder{stages: make(map[string]string)}
}

func (r *stageRecorder) hooks() Hooks {
	return Hooks{
		OnStage: func(stage, outcome string, _ float64) {
			r.mu.Lock()
			r.stages[stage] = outcome
			r.mu.Unlock()
		},
		OnComplete: func(e *CompleteEvent) {
			r.mu.Lock()
			r.complete = e
			r.mu.Unlock()
		},
	}
}

func testRequest() *RawLogRequest {
	return &RawLogRequest{
		RawLog: "4688: process created",
		Source: "windows_security",
	}
}

func happyMocks() (*mockIngestor, *mockInterpreter, *mockClassifier, *mockTechnique) {
	return &mockIngestor{event: &NormalizedEvent{
			Source:   "windows_security",
			Hostname: "ws01",
			User:     "jdoe",
		}},
		&mockInterpreter{semantic: &SemanticInput{
			Summary:    "powershell encoded command execution",
			Features:   map[string]any{"suspicious_indicators": []string{"encoded_command"}},
			Confidence: 0.9,
		}},
		&mockClassifier{verdict: &IntentVerdict{
			Intent: "malicious_script_execution",
			Tactic: "execution",
			Score:  0.8,
			Source: SourceRules,
		}},
		&mockTechnique{verdict: &TechniqueVerdict{
			TechniqueName: "Command and Scripting Interpreter",
			TechniqueID:   "T1059",
			Confidence:    0.7,
		}}
}

func TestRun_FullSuccess(t *testing.T) {
	t.Parallel()

	ing, interp, cls, tech := happyMocks()
	rec := newStageRecorder()
	p := NewPipeline(ing, interp, cls, tech, time.Second, log.Nop(), rec.hooks(), nil)

	alert, err := p.Run(context.Background(), testRequest(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if alert.CorrelationID == "" {
		t.Error("CorrelationID must be set")
	}
	if len(alert.Errors) != 0 {
		t.Errorf("Errors = %v, want none", alert.Errors)
	}
	if alert.Risk == nil || alert.Risk.Level == "" {
		t.Fatal("Risk must be computed")
	}
	if alert.Summary == "" || len(alert.Recommendations) == 0 {
		t.Error("Summary and Recommendations must be built")
	}
	if tech.lastIntent != "malicious_script_execution" {
		t.Errorf("technique received intent %q, want the classified label", tech.lastIntent)
	}
	// source carried through from the request
	if alert.Source != "windows_security" {
		t.Errorf("Source = %q", alert.Source)
	}

	wantStages := map[string]string{
		"ingestion": OutcomeSuccess,
		"semantic":  OutcomeSuccess,
		"intent":    OutcomeSuccess,
		"technique": OutcomeSuccess,
	}
	if !reflect.DeepEqual(rec.stages, wantStages) {
		t.Errorf("stages = %v, want %v", rec.stages, wantStages)
	}
	if rec.complete == nil || rec.complete.Status != "success" {
		t.Errorf("complete = %+v, want success", rec.complete)
	}
}

func TestRun_IngestionFailureIsFatal(t *testing.T) {
	t.Parallel()

	ing := &mockIngestor{err: errors.New("parser rejected log")}
	_, interp, cls, tech := happyMocks()
	rec := newStageRecorder()
	p := NewPipeline(ing, interp, cls, tech, time.Second, log.Nop(), rec.hooks(), nil)

	alert, err := p.Run(context.Background(), testRequest(), false)
	if alert != nil {
		t.Errorf("alert = %+v, want nil on ingestion failure", alert)
	}
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}

	// nothing downstream may run
	if interp.calls != 0 || cls.calls != 0 || tech.calls != 0 {
		t.Errorf("downstream calls = (%d, %d, %d), want all 0", interp.calls, cls.calls, tech.calls)
	}
	if rec.complete == nil || rec.complete.Status != "upstream_failure" {
		t.Errorf("complete = %+v, want upstream_failure", rec.complete)
	}
}

func TestRun_SemanticFailureSkipsDependents(t *testing.T) {
	t.Parallel()

	ing, _, cls, tech := happyMocks()
	interp := &mockInterpreter{err: errors.New("interpreter down")}
	rec := newStageRecorder()
	p := NewPipeline(ing, interp, cls, tech, time.Second, log.Nop(), rec.hooks(), nil)

	alert, err := p.Run(context.Background(), testRequest(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantErrors := []string{
		"Semantic Interpreter failed",
		"Skipped Intent Classifier (dependency missing)",
		"Skipped Technique Reasoner (dependency missing)",
	}
	if !reflect.DeepEqual(alert.Errors, wantErrors) {
		t.Errorf("Errors = %v, want %v", alert.Errors, wantErrors)
	}
	if cls.calls != 0 || tech.calls != 0 {
		t.Errorf("dependent stages ran: classifier %d, technique %d", cls.calls, tech.calls)
	}
	// no stage confidences left: risk bottoms out
	if alert.Risk == nil || alert.Risk.Score != 0 || alert.Risk.Level != LevelLow {
		t.Errorf("Risk = %+v, want zero/low", alert.Risk)
	}
	if rec.stages["intent"] != OutcomeSkipped || rec.stages["technique"] != OutcomeSkipped {
		t.Errorf("stages = %v, want intent and technique skipped", rec.stages)
	}
	if alert.Summary == "" {
		t.Error("Summary must still be built from partial results")
	}
}

func TestRun_IntentFailureDegrades(t *testing.T) {
	t.Parallel()

	ing, interp, _, tech := happyMocks()
	cls := &mockClassifier{err: errors.New("classifier blew up")}
	p := NewPipeline(ing, interp, cls, tech, time.Second, log.Nop(), Hooks{}, nil)

	alert, err := p.Run(context.Background(), testRequest(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(alert.Errors, []string{"Intent Classifier failed"}) {
		t.Errorf("Errors = %v", alert.Errors)
	}
	// technique still runs, with the neutral intent label
	if tech.calls != 1 {
		t.Errorf("technique calls = %d, want 1", tech.calls)
	}
	if tech.lastIntent != IntentUnknown {
		t.Errorf("technique received intent %q, want unknown", tech.lastIntent)
	}
}

func TestRun_TechniqueFailureDegrades(t *testing.T) {
	t.Parallel()

	ing, interp, cls, _ := happyMocks()
	tech := &mockTechnique{err: errors.New("retriever down")}
	p := NewPipeline(ing, interp, cls, tech, time.Second, log.Nop(), Hooks{}, nil)

	alert, err := p.Run(context.Background(), testRequest(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(alert.Errors, []string{"Technique Reasoner failed"}) {
		t.Errorf("Errors = %v", alert.Errors)
	}
	if alert.Intent == nil || alert.Risk == nil {
		t.Error("intent and risk must survive a technique failure")
	}
}

func TestRun_NotifiesOnHighRisk(t *testing.T) {
	t.Parallel()

	ing, interp, tech := &mockIngestor{event: &NormalizedEvent{}}, &mockInterpreter{semantic: &SemanticInput{
		Summary:    "lsass dump",
		Features:   map[string]any{},
		Confidence: 1.0,
	}}, &mockTechnique{verdict: &TechniqueVerdict{TechniqueID: "T1003", Confidence: 1.0}}
	cls := &mockClassifier{verdict: &IntentVerdict{Intent: "credential_dumping", Score: 1.0, Source: SourceRules}}

	n := newMockNotifier()
	p := NewPipeline(ing, interp, cls, tech, time.Second, log.Nop(), Hooks{}, n)

	alert, err := p.Run(context.Background(), testRequest(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if alert.Risk.Level != LevelCritical {
		t.Fatalf("Level = %q, want critical", alert.Risk.Level)
	}

	select {
	case <-n.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was not called for a critical alert")
	}
	if n.sentCount() != 1 {
		t.Errorf("notifications = %d, want 1", n.sentCount())
	}
}

func TestRun_NoNotificationOnLowRisk(t *testing.T) {
	t.Parallel()

	ing := &mockIngestor{event: &NormalizedEvent{}}
	interp := &mockInterpreter{semantic: &SemanticInput{Summary: "routine", Features: map[string]any{}, Confidence: 0.2}}
	cls := &mockClassifier{verdict: &IntentVerdict{Intent: IntentUnknown, Score: 0, Source: SourceRules}}
	tech := &mockTechnique{verdict: &TechniqueVerdict{TechniqueID: "T1059", Confidence: 0.1}}

	n := newMockNotifier()
	p := NewPipeline(ing, interp, cls, tech, time.Second, log.Nop(), Hooks{}, n)

	alert, err := p.Run(context.Background(), testRequest(), false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if alert.Risk.Level != LevelLow {
		t.Fatalf("Level = %q, want low", alert.Risk.Level)
	}

	// give a wrongly spawned goroutine a moment to surface
	time.Sleep(50 * time.Millisecond)
	if n.sentCount() != 0 {
		t.Errorf("notifications = %d, want 0", n.sentCount())
	}
}

func TestRun_UniqueCorrelationIDs(t *testing.T) {
	t.Parallel()

	ing, interp, cls, tech := happyMocks()
	p := NewPipeline(ing, interp, cls, tech, time.Second, log.Nop(), Hooks{}, nil)

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		alert, err := p.Run(context.Background(), testRequest(), false)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if seen[alert.CorrelationID] {
			t.Fatalf("duplicate correlation ID %q", alert.CorrelationID)
		}
		seen[alert.CorrelationID] = true
	}
}
