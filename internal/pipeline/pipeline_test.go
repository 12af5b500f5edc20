package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/askdb/askdb/internal/audit"
	"github.com/askdb/askdb/internal/intent"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/query"
	"github.com/askdb/askdb/internal/query/sqlexec"
	"github.com/askdb/askdb/internal/synth"
)

const stockSQL = "SELECT pt.name->>'es_ES' AS producto, SUM(sq.quantity) AS cantidad " +
	"FROM stock_quant sq JOIN product_product pp ON pp.id = sq.product_id " +
	"JOIN product_template pt ON pt.id = pp.product_tmpl_id " +
	"WHERE pt.name->>'es_ES' ILIKE '%tornillo%' GROUP BY 1 LIMIT 50"

func TestHandleSpanishStockQuestionEndToEnd(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(`FROM \( SELECT pt\.name->>'es_ES' AS producto, SUM\(sq\.quantity\) AS cantidad FROM stock_quant sq .* LIMIT 50 \) AS q LIMIT 51$`).
		WillReturnRows(sqlmock.NewRows([]string{"producto", "cantidad"}).
			AddRow([]byte("Tornillo M4"), 120.0).
			AddRow("Tornillo M6", 35.0))

	model := &scriptedModel{
		sql:    "```sql\n" + stockSQL + ";\n```",
		answer: "Hay 120 unidades de Tornillo M4 y 35 de Tornillo M6.",
	}
	sink := &recordingSink{}
	orchestrator := newOrchestrator(t, Deps{
		Model:  model,
		Engine: sqlexec.NewEngine(db, sqlexec.EngineConfig{Timeout: time.Second, RowCap: 50}, quietLogger()),
		Audit:  sink,
	})

	resp := orchestrator.Handle(context.Background(), "¿Cuánto stock hay de tornillos en el almacén?")
	if resp.Failure != nil {
		t.Fatalf("Handle() failure = %v", resp.Failure)
	}
	if resp.Intent != intent.DataQuery {
		t.Fatalf("Intent = %q", resp.Intent)
	}
	if resp.Text != "Hay 120 unidades de Tornillo M4 y 35 de Tornillo M6." {
		t.Fatalf("Text = %q", resp.Text)
	}
	if resp.SQL != stockSQL || !resp.Validated {
		t.Fatalf("SQL = %q validated = %v", resp.SQL, resp.Validated)
	}
	if resp.Result == nil || len(resp.Result.Rows) != 2 || resp.Result.Rows[0][0] != "Tornillo M4" {
		t.Fatalf("Result = %+v", resp.Result)
	}
	if got := model.callsOf("generate"); got != 1 {
		t.Fatalf("generate calls = %d", got)
	}
	if got := model.callsOf("synthesize"); got != 1 {
		t.Fatalf("synthesize calls = %d", got)
	}
	if !strings.Contains(model.lastSynthesisInput, `"row_count":2`) {
		t.Fatalf("synthesis input = %q", model.lastSynthesisInput)
	}
	if len(sink.entries) != 1 || sink.entries[0].Outcome != "answered" || sink.entries[0].Rows != 2 {
		t.Fatalf("audit entries = %+v", sink.entries)
	}
	if sink.entries[0].RequestID != resp.RequestID || resp.RequestID == "" {
		t.Fatalf("audit request id = %q, response = %q", sink.entries[0].RequestID, resp.RequestID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sqlmock expectations: %v", err)
	}
}

func TestHandleRejectsDropWithoutExecuting(t *testing.T) {
	engine := &countingEngine{}
	model := &scriptedModel{sql: "DROP TABLE product_template;"}
	sink := &recordingSink{}
	orchestrator := newOrchestrator(t, Deps{Model: model, Engine: engine, Audit: sink})

	resp := orchestrator.Handle(context.Background(), "elimina la tabla product_template")
	if engine.calls != 0 {
		t.Fatalf("engine called %d times for a rejected query", engine.calls)
	}
	if FailureKind(resp) != ValidationRejection {
		t.Fatalf("FailureKind() = %q, failure = %v", FailureKind(resp), resp.Failure)
	}
	if resp.Validated {
		t.Fatal("rejected query reported as validated")
	}
	if !strings.Contains(resp.Text, "DROP TABLE product_template;") {
		t.Fatalf("Text = %q, want offending SQL", resp.Text)
	}
	if !strings.Contains(resp.Text, "rechazada") {
		t.Fatalf("Text = %q, want Spanish rejection", resp.Text)
	}
	if model.callsOf("synthesize") != 0 {
		t.Fatal("synthesis should not run after a rejection")
	}
	if len(sink.entries) != 1 || sink.entries[0].Outcome != string(ValidationRejection) {
		t.Fatalf("audit entries = %+v", sink.entries)
	}
}

func TestHandleRejectsPiggybackedStatement(t *testing.T) {
	engine := &countingEngine{}
	orchestrator := newOrchestrator(t, Deps{
		Model:  &scriptedModel{sql: "select 1; drop table x"},
		Engine: engine,
	})
	resp := orchestrator.Handle(context.Background(), "muestra los productos")
	if engine.calls != 0 || FailureKind(resp) != ValidationRejection {
		t.Fatalf("engine calls = %d, failure = %v", engine.calls, resp.Failure)
	}
}

func TestHandleEmptyResultSaysNoData(t *testing.T) {
	engine := &countingEngine{result: query.Result{Columns: []string{"producto", "cantidad"}}}
	model := &scriptedModel{sql: "SELECT 1 FROM stock_quant WHERE false"}
	sink := &recordingSink{}
	orchestrator := newOrchestrator(t, Deps{Model: model, Engine: engine, Audit: sink})

	resp := orchestrator.Handle(context.Background(), "¿Cuántos productos hay en la ubicación X?")
	if resp.Failure != nil {
		t.Fatalf("Handle() failure = %v", resp.Failure)
	}
	if resp.Text != synth.Message(synth.Spanish, synth.MessageNoData) {
		t.Fatalf("Text = %q", resp.Text)
	}
	if Outcome(resp) != "no_data" {
		t.Fatalf("Outcome() = %q", Outcome(resp))
	}
	if len(sink.entries) != 1 || sink.entries[0].Outcome != "no_data" {
		t.Fatalf("audit entries = %+v", sink.entries)
	}
}

func TestHandleNeverExceedsRowCap(t *testing.T) {
	rows := make([][]any, 10)
	for i := range rows {
		rows[i] = []any{int64(i)}
	}
	engine := &countingEngine{result: query.Result{Columns: []string{"id"}, Rows: rows}}
	model := &scriptedModel{sql: "SELECT id FROM stock_location", answer: "Diez ubicaciones."}
	orchestrator := newOrchestrator(t, Deps{Model: model, Engine: engine, RowCap: 3})

	resp := orchestrator.Handle(context.Background(), "lista las ubicaciones")
	if resp.Failure != nil {
		t.Fatalf("Handle() failure = %v", resp.Failure)
	}
	if engine.lastRequest.RowLimit != 3 {
		t.Fatalf("RowLimit = %d", engine.lastRequest.RowLimit)
	}
	if len(resp.Result.Rows) != 3 || !resp.Result.Truncated {
		t.Fatalf("rows = %d truncated = %v", len(resp.Result.Rows), resp.Result.Truncated)
	}
	if !strings.Contains(model.lastSynthesisInput, `"row_count":3`) {
		t.Fatalf("synthesis input = %q", model.lastSynthesisInput)
	}
}

func TestHandleGenerationFailureExecutesNothing(t *testing.T) {
	engine := &countingEngine{}
	model := &scriptedModel{errs: map[string]error{"generate": errors.New("upstream 503")}}
	orchestrator := newOrchestrator(t, Deps{Model: model, Engine: engine})

	resp := orchestrator.Handle(context.Background(), "How many products are in stock?")
	if FailureKind(resp) != GenerationFailure {
		t.Fatalf("FailureKind() = %q", FailureKind(resp))
	}
	if engine.calls != 0 {
		t.Fatal("engine should not be called after a generation failure")
	}
	if resp.Text != synth.Message(synth.English, synth.MessageGenerationFailed) {
		t.Fatalf("Text = %q", resp.Text)
	}
	var stageErr *StageError
	if !errors.As(resp.Failure, &stageErr) || stageErr.Stage != "generate" {
		t.Fatalf("Failure = %#v", resp.Failure)
	}
}

func TestHandleEmptyGenerationIsGenerationFailure(t *testing.T) {
	engine := &countingEngine{}
	orchestrator := newOrchestrator(t, Deps{Model: &scriptedModel{sql: "```sql\n```"}, Engine: engine})
	resp := orchestrator.Handle(context.Background(), "muestra el stock")
	if FailureKind(resp) != GenerationFailure || engine.calls != 0 {
		t.Fatalf("FailureKind() = %q, engine calls = %d", FailureKind(resp), engine.calls)
	}
}

func TestHandleExecutionFailureReportsKind(t *testing.T) {
	engine := &countingEngine{err: &query.ExecutionError{Kind: query.KindTimeout, Err: context.DeadlineExceeded}}
	model := &scriptedModel{sql: "SELECT * FROM stock_quant"}
	orchestrator := newOrchestrator(t, Deps{Model: model, Engine: engine})

	resp := orchestrator.Handle(context.Background(), "muestra el stock")
	if FailureKind(resp) != ExecutionFailure {
		t.Fatalf("FailureKind() = %q", FailureKind(resp))
	}
	if !strings.Contains(resp.Text, "timeout") {
		t.Fatalf("Text = %q", resp.Text)
	}
	if resp.Result != nil {
		t.Fatal("no partial rows may be surfaced after an execution failure")
	}
	if model.callsOf("synthesize") != 0 {
		t.Fatal("synthesis should not run after an execution failure")
	}
}

func TestHandleSynthesisFailureFallsBackToTable(t *testing.T) {
	engine := &countingEngine{result: query.Result{
		Columns: []string{"producto", "cantidad"},
		Rows:    [][]any{{"Tornillo M4", int64(120)}, {"Tuerca", nil}},
	}}
	model := &scriptedModel{sql: "SELECT 1 FROM stock_quant", errs: map[string]error{"synthesize": errors.New("rate limited")}}
	orchestrator := newOrchestrator(t, Deps{Model: model, Engine: engine})

	resp := orchestrator.Handle(context.Background(), "muestra el stock")
	if FailureKind(resp) != SynthesisFailure {
		t.Fatalf("FailureKind() = %q", FailureKind(resp))
	}
	for _, want := range []string{synth.Message(synth.Spanish, synth.MessageSynthesisFailed), "Tornillo M4", "NULL", "(2 rows)"} {
		if !strings.Contains(resp.Text, want) {
			t.Fatalf("Text = %q, missing %q", resp.Text, want)
		}
	}
}

func TestHandleConversationalSkipsDatabase(t *testing.T) {
	engine := &countingEngine{}
	model := &scriptedModel{chat: "¡Hola! ¿En qué te ayudo?"}
	orchestrator := newOrchestrator(t, Deps{Model: model, Engine: engine})

	resp := orchestrator.Handle(context.Background(), "hola, buenos días")
	if resp.Intent != intent.Conversational {
		t.Fatalf("Intent = %q", resp.Intent)
	}
	if resp.Text != "¡Hola! ¿En qué te ayudo?" || resp.Failure != nil {
		t.Fatalf("Text = %q failure = %v", resp.Text, resp.Failure)
	}
	if engine.calls != 0 || model.callsOf("generate") != 0 {
		t.Fatal("conversational input must not generate or execute SQL")
	}
}

func TestHandleRecoversFromPanic(t *testing.T) {
	engine := &countingEngine{}
	model := &scriptedModel{panicOn: "generate"}
	sink := &recordingSink{}
	orchestrator := newOrchestrator(t, Deps{Model: model, Engine: engine, Audit: sink})

	resp := orchestrator.Handle(context.Background(), "muestra el stock")
	if FailureKind(resp) != InternalFailure {
		t.Fatalf("FailureKind() = %q", FailureKind(resp))
	}
	if resp.Text != synth.Message(synth.Spanish, synth.MessageInternal) {
		t.Fatalf("Text = %q", resp.Text)
	}
	if len(sink.entries) != 1 {
		t.Fatal("a recovered panic should still be audited")
	}
}

func TestHandleSurvivesPanickingAuditSink(t *testing.T) {
	orchestrator := newOrchestrator(t, Deps{
		Model:  &scriptedModel{chat: "¡Hola! ¿En qué te ayudo?"},
		Engine: &countingEngine{},
		Audit:  panickingSink{},
	})

	var resp Response
	func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				t.Fatalf("Handle() panicked: %v", recovered)
			}
		}()
		resp = orchestrator.Handle(context.Background(), "hola, buenos días")
	}()
	if resp.Failure != nil {
		t.Fatalf("Failure = %v", resp.Failure)
	}
	if resp.Text != "¡Hola! ¿En qué te ayudo?" {
		t.Fatalf("Text = %q", resp.Text)
	}
}

func TestHandleKeepsCallerRequestID(t *testing.T) {
	orchestrator := newOrchestrator(t, Deps{Model: &scriptedModel{chat: "hi"}, Engine: &countingEngine{}})
	ctx := observability.ContextWithRequestID(context.Background(), "req-42")
	if resp := orchestrator.Handle(ctx, "hello"); resp.RequestID != "req-42" {
		t.Fatalf("RequestID = %q", resp.RequestID)
	}
}

func TestNewRequiresEngineAndModel(t *testing.T) {
	if _, err := New(Deps{Model: &scriptedModel{}}); err == nil {
		t.Fatal("expected error without engine")
	}
	if _, err := New(Deps{Engine: &countingEngine{}}); err == nil {
		t.Fatal("expected error without model")
	}
}

func newOrchestrator(t *testing.T, deps Deps) *Orchestrator {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = quietLogger()
	}
	orchestrator, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return orchestrator
}

// scriptedModel answers by stage, recognized from the system prompt.
type scriptedModel struct {
	sql     string
	answer  string
	chat    string
	errs    map[string]error
	panicOn string

	calls              map[string]int
	lastSynthesisInput string
}

func (m *scriptedModel) Complete(_ context.Context, messages []llm.Message) (string, error) {
	stage := "chat"
	switch system := messages[0].Content; {
	case strings.Contains(system, "Return ONLY SQL"):
		stage = "generate"
	case strings.Contains(system, "query result"):
		stage = "synthesize"
		m.lastSynthesisInput = messages[len(messages)-1].Content
	}
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[stage]++
	if stage == m.panicOn {
		panic("model exploded")
	}
	if err := m.errs[stage]; err != nil {
		return "", err
	}
	switch stage {
	case "generate":
		return m.sql, nil
	case "synthesize":
		return m.answer, nil
	}
	return m.chat, nil
}

func (m *scriptedModel) callsOf(stage string) int {
	return m.calls[stage]
}

type countingEngine struct {
	calls       int
	lastRequest query.Request
	result      query.Result
	err         error
}

func (e *countingEngine) Execute(_ context.Context, request query.Request) (query.Result, error) {
	e.calls++
	e.lastRequest = request
	if request.Query.IsZero() {
		return query.Result{}, query.ErrNotValidated
	}
	if e.err != nil {
		return query.Result{}, e.err
	}
	return e.result, nil
}

type recordingSink struct {
	entries []audit.Entry
}

func (s *recordingSink) Record(_ context.Context, entry audit.Entry) {
	s.entries = append(s.entries, entry)
}

type panickingSink struct{}

func (panickingSink) Record(context.Context, audit.Entry) {
	panic("archive unavailable")
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
