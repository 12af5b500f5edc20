// Package pipeline sequences one question through classification, prompt
// composition, generation, validation, execution and synthesis, and maps
// every failure to an answer the operator can read.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/audit"
	"github.com/askdb/askdb/internal/intent"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/prompt"
	"github.com/askdb/askdb/internal/query"
	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/sqlguard"
	"github.com/askdb/askdb/internal/synth"
)

const (
	defaultRowCap = 50

	outcomeAnswered = "answered"
	outcomeNoData   = "no_data"
)

// Deps are the collaborators of an Orchestrator. Engine and Model are
// required; everything else falls back to the built-in defaults.
type Deps struct {
	Classifier  *intent.Classifier
	Schema      schema.Provider
	SQLPrompt   *prompt.Composer
	ChatPrompt  *prompt.Composer
	Model       llm.Client
	Generator   *nl2sql.Generator
	Validator   *sqlguard.Validator
	Engine      query.Engine
	Synthesizer *synth.Synthesizer
	Audit       audit.Sink
	Logger      *slog.Logger
	RowCap      int
	Clock       func() time.Time
}

type Orchestrator struct {
	deps Deps
}

// Response is the outcome of one question. Text is never empty and is
// written in the language of the question.
type Response struct {
	RequestID string
	Text      string
	Intent    intent.Label
	// SQL is the extracted candidate, set whether or not it was accepted.
	SQL       string
	Validated bool
	// Result is nil unless the query was executed.
	Result  *query.Result
	Failure error
}

func New(deps Deps) (*Orchestrator, error) {
	if deps.Engine == nil {
		return nil, errors.New("query engine is required")
	}
	if deps.Model == nil {
		return nil, errors.New("model client is required")
	}
	if deps.RowCap <= 0 {
		deps.RowCap = defaultRowCap
	}
	if deps.Classifier == nil {
		deps.Classifier = intent.NewClassifier()
	}
	if deps.Schema == nil {
		deps.Schema = schema.NewStatic(schema.Default())
	}
	if deps.SQLPrompt == nil {
		deps.SQLPrompt = prompt.NewComposer(prompt.SQLStrategy{RowCap: deps.RowCap})
	}
	if deps.ChatPrompt == nil {
		deps.ChatPrompt = prompt.NewComposer(prompt.ChatStrategy{})
	}
	if deps.Generator == nil {
		deps.Generator = nl2sql.NewGenerator(deps.Model)
	}
	if deps.Validator == nil {
		deps.Validator = sqlguard.NewValidator()
	}
	if deps.Synthesizer == nil {
		deps.Synthesizer = synth.NewSynthesizer(deps.Model, deps.RowCap)
	}
	if deps.Audit == nil {
		deps.Audit = audit.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Orchestrator{deps: deps}, nil
}

func (o *Orchestrator) RowCap() int {
	return o.deps.RowCap
}

type request struct {
	ctx      context.Context
	question string
	lang     synth.Language
	logger   *slog.Logger
	stage    string
	resp     Response
}

// Handle answers one question. It does not return an error: every failure,
// including a panic in a collaborator, becomes a Response with Failure set.
func (o *Orchestrator) Handle(ctx context.Context, question string) Response {
	ctx, requestID := observability.EnsureRequestID(ctx)
	started := o.deps.Clock()
	req := &request{
		ctx:      ctx,
		question: question,
		lang:     synth.DetectLanguage(question),
		logger:   o.deps.Logger.With(slog.String("request_id", requestID)),
		stage:    "classify",
		resp:     Response{RequestID: requestID},
	}

	protect(req, func() { o.run(req) }, func(recovered any) {
		req.fail(InternalFailure, "recovered from panic", fmt.Errorf("panic: %v", recovered),
			synth.Message(req.lang, synth.MessageInternal))
	})
	// A panic while logging or auditing leaves the answer as it is.
	req.stage = "finish"
	protect(req, func() { o.finish(req, started) }, nil)
	return req.resp
}

// protect runs fn, logging any panic with its stack. onPanic, when set, sees
// the recovered value.
func protect(req *request, fn func(), onPanic func(recovered any)) {
	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}
		req.logger.ErrorContext(req.ctx, "pipeline panic",
			slog.String("stage", req.stage),
			slog.Any("panic", recovered),
			slog.String("stack", string(debug.Stack())),
		)
		if onPanic != nil {
			onPanic(recovered)
		}
	}()
	fn()
}

func (o *Orchestrator) run(req *request) {
	o.timed(req, "classify", func() { req.resp.Intent = o.deps.Classifier.Classify(req.question) })
	if req.resp.Intent != intent.DataQuery {
		o.converse(req)
		return
	}

	var messages []llm.Message
	o.timed(req, "compose", func() {
		messages = o.deps.SQLPrompt.Compose(req.question, o.deps.Schema.Describe())
	})

	var generated nl2sql.GeneratedQuery
	var err error
	o.timed(req, "generate", func() { generated, err = o.deps.Generator.Generate(req.ctx, messages) })
	req.resp.SQL = generated.Cleaned
	if err != nil {
		req.fail(GenerationFailure, "model did not produce a query", err, synth.Message(req.lang, synth.MessageGenerationFailed))
		return
	}

	var verdict sqlguard.Verdict
	o.timed(req, "validate", func() { verdict = o.deps.Validator.Validate(generated.Cleaned) })
	generated.Validated = verdict.Allowed
	req.resp.Validated = generated.Validated
	if !verdict.Allowed {
		req.logger.WarnContext(req.ctx, "generated query rejected", slog.String("reason", verdict.Reason), slog.String("sql", generated.Cleaned))
		text := synth.Message(req.lang, synth.MessageRejected, verdict.Reason) + "\n\n" + generated.Cleaned
		req.fail(ValidationRejection, verdict.Reason, nil, text)
		return
	}
	req.resp.SQL = verdict.Query.SQL()

	var result query.Result
	o.timed(req, "execute", func() {
		result, err = o.deps.Engine.Execute(req.ctx, query.Request{Query: verdict.Query, RowLimit: o.deps.RowCap})
	})
	if err != nil {
		kind := query.KindOf(err)
		if kind == "" {
			kind = query.KindStatement
		}
		req.fail(ExecutionFailure, string(kind), err, synth.Message(req.lang, synth.MessageExecutionFailed, kind))
		return
	}
	if len(result.Rows) > o.deps.RowCap {
		result.Rows = result.Rows[:o.deps.RowCap]
		result.Truncated = true
	}
	observability.ObserveRowsReturned(len(result.Rows))
	req.resp.Result = &result

	var answer string
	o.timed(req, "synthesize", func() { answer, err = o.deps.Synthesizer.Synthesize(req.ctx, req.question, result) })
	if err != nil {
		req.fail(SynthesisFailure, "answer could not be written", err, o.fallback(req.lang, result))
		return
	}
	req.resp.Text = answer
}

func (o *Orchestrator) converse(req *request) {
	var text string
	var err error
	o.timed(req, "converse", func() {
		text, err = o.deps.Model.Complete(req.ctx, o.deps.ChatPrompt.Compose(req.question, schema.Descriptor{}))
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("model returned an empty reply")
	}
	if err != nil {
		req.fail(GenerationFailure, "model did not reply", err, synth.Message(req.lang, synth.MessageGenerationFailed))
		return
	}
	req.resp.Text = strings.TrimSpace(text)
}

// fallback renders the raw rows when synthesis failed.
func (o *Orchestrator) fallback(lang synth.Language, result query.Result) string {
	if result.Empty() {
		return synth.Message(lang, synth.MessageNoData)
	}
	var b strings.Builder
	b.WriteString(synth.Message(lang, synth.MessageSynthesisFailed))
	b.WriteString("\n")
	b.WriteString(synth.RenderTable(result))
	if result.Truncated {
		b.WriteString("\n")
		b.WriteString(synth.Message(lang, synth.MessageTruncated, len(result.Rows)))
	}
	return b.String()
}

func (o *Orchestrator) timed(req *request, stage string, fn func()) {
	req.stage = stage
	started := time.Now()
	fn()
	observability.ObserveStage(stage, time.Since(started))
}

func (o *Orchestrator) finish(req *request, started time.Time) {
	resp := &req.resp
	if strings.TrimSpace(resp.Text) == "" {
		resp.Text = synth.Message(req.lang, synth.MessageInternal)
	}
	if resp.Intent == "" {
		resp.Intent = intent.Conversational
	}
	outcome := Outcome(*resp)
	elapsed := o.deps.Clock().Sub(started)
	observability.ObserveRequest(string(resp.Intent), outcome)

	attrs := []any{
		slog.String("intent", string(resp.Intent)),
		slog.String("outcome", outcome),
		slog.Duration("duration", elapsed),
	}
	if resp.Failure != nil {
		req.logger.WarnContext(req.ctx, "question failed", append(attrs, slog.Any("error", resp.Failure))...)
	} else {
		req.logger.InfoContext(req.ctx, "question answered", attrs...)
	}

	entry := audit.Entry{
		RequestID:  resp.RequestID,
		Question:   req.question,
		Intent:     string(resp.Intent),
		SQL:        resp.SQL,
		Outcome:    outcome,
		DurationMs: elapsed.Milliseconds(),
		At:         started,
	}
	if resp.Result != nil {
		entry.Rows = len(resp.Result.Rows)
		entry.Truncated = resp.Result.Truncated
	}
	o.deps.Audit.Record(req.ctx, entry)
}

func (r *request) fail(kind Kind, message string, cause error, text string) {
	r.resp.Failure = stageError(kind, r.stage, message, cause)
	r.resp.Text = text
}

// Outcome names how a response ended: "answered", "no_data" or the failure
// kind.
func Outcome(resp Response) string {
	var stageErr *StageError
	if errors.As(resp.Failure, &stageErr) {
		return string(stageErr.Kind)
	}
	if resp.Failure != nil {
		return string(InternalFailure)
	}
	if resp.Result != nil && resp.Result.Empty() {
		return outcomeNoData
	}
	return outcomeAnswered
}

// FailureKind returns the kind of a failed response, or "" on success.
func FailureKind(resp Response) Kind {
	var stageErr *StageError
	if errors.As(resp.Failure, &stageErr) {
		return stageErr.Kind
	}
	return ""
}
