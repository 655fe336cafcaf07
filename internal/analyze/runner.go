// Package analyze orchestrates one extraction: figure registry snapshot →
// generated prompt → backend adapter → raw text → typed result, with the run
// recorded in the store.
package analyze

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/late7/ai-doc-reader/internal/interpret"
	"github.com/late7/ai-doc-reader/internal/model"
	"github.com/late7/ai-doc-reader/internal/prompt"
	"github.com/late7/ai-doc-reader/internal/registry"
	"github.com/late7/ai-doc-reader/internal/store"
	"github.com/late7/ai-doc-reader/pkg/anthropic"
	"github.com/late7/ai-doc-reader/pkg/workspace"
)

// directUserInstruction is the short fixed user-facing instruction for
// direct-upload calls; the generated prompt travels as the developer
// instruction.
const directUserInstruction = "Analyze the attached documents and respond with only the JSON object described in your instructions."

// maxFileReadConcurrency bounds parallel file reads when preparing a
// direct-upload request.
const maxFileReadConcurrency = 4

// Runner executes extractions and question runs. All backend calls are
// single-shot: a transport failure surfaces immediately with no retry.
type Runner struct {
	Store     store.Store
	Registry  *registry.Registry
	Workspace workspace.Client
	LLM       anthropic.Client
	Generator prompt.Generator
	Model     string
	MaxTokens int64
	// QuestionRate paces sequential "run all questions" loops so a bulk
	// action does not burst the workspace backend. Nil means no pacing.
	QuestionRate *rate.Limiter
}

func (r *Runner) maxTokens() int64 {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return 8192
}

// enabledFigures loads the registry and filters to enabled entries.
func (r *Runner) enabledFigures(ctx context.Context) ([]model.Figure, error) {
	snap, err := r.Registry.ListFigures(ctx)
	if err != nil {
		return nil, err
	}
	return model.EnabledFigures(snap.Figures), nil
}

// RunWorkspace runs one extraction through the RAG chat adapter against a
// pre-populated workspace.
func (r *Runner) RunWorkspace(ctx context.Context, slug string, mode prompt.Mode) (*model.Run, error) {
	figures, err := r.enabledFigures(ctx)
	if err != nil {
		return nil, err
	}

	text, err := r.Generator.Generate(prompt.Request{
		Figures:     figures,
		Mode:        mode,
		SubjectName: slug,
	})
	if err != nil {
		return nil, err
	}

	run := model.Run{
		ID:        uuid.New().String(),
		Workspace: slug,
		Backend:   model.BackendWorkspace,
		Mode:      string(mode),
	}
	if err := r.Store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	zap.L().Info("analyze: workspace extraction started",
		zap.String("run_id", run.ID),
		zap.String("workspace", slug),
		zap.String("mode", string(mode)),
	)

	resp, err := r.Workspace.Chat(ctx, slug, text)
	if err != nil {
		if failErr := r.Store.FailRun(ctx, run.ID, err.Error()); failErr != nil {
			zap.L().Error("analyze: record run failure", zap.Error(failErr))
		}
		return nil, eris.Wrap(err, "analyze: workspace chat")
	}

	result := interpret.Interpret(resp.TextResponse, mode)
	sources := make([]model.Source, 0, len(resp.Sources))
	for _, s := range resp.Sources {
		sources = append(sources, model.Source{Document: s.Document, Text: s.Text})
	}

	if err := r.Store.CompleteRun(ctx, run.ID, result, sources, model.TokenUsage{}); err != nil {
		return nil, err
	}

	return r.Store.GetRun(ctx, run.ID)
}

// RunDirect runs one extraction through the direct-upload adapter: the
// selected files travel inline with the request, no retrieval step.
func (r *Runner) RunDirect(ctx context.Context, subject string, mode prompt.Mode, paths []string) (*model.Run, error) {
	figures, err := r.enabledFigures(ctx)
	if err != nil {
		return nil, err
	}

	text, err := r.Generator.Generate(prompt.Request{
		Figures:         figures,
		Mode:            mode,
		SubjectName:     subject,
		ForDirectUpload: true,
	})
	if err != nil {
		return nil, err
	}

	docs, err := readDocuments(ctx, paths)
	if err != nil {
		return nil, err
	}

	run := model.Run{
		ID:        uuid.New().String(),
		Workspace: subject,
		Backend:   model.BackendDirectUpload,
		Mode:      string(mode),
	}
	if err := r.Store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	zap.L().Info("analyze: direct extraction started",
		zap.String("run_id", run.ID),
		zap.String("subject", subject),
		zap.String("mode", string(mode)),
		zap.Int("files", len(docs)),
	)

	resp, err := r.LLM.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     r.Model,
		MaxTokens: r.maxTokens(),
		System:    []anthropic.SystemBlock{{Text: text}},
		Messages: []anthropic.Message{{
			Role:      "user",
			Content:   directUserInstruction,
			Documents: docs,
		}},
	})
	if err != nil {
		if failErr := r.Store.FailRun(ctx, run.ID, err.Error()); failErr != nil {
			zap.L().Error("analyze: record run failure", zap.Error(failErr))
		}
		return nil, eris.Wrap(err, "analyze: direct upload")
	}

	resp.Usage.LogCost(r.Model, "direct_extraction")
	usage := model.TokenUsage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		Cost:         resp.Usage.EstimateCost(r.Model),
	}

	result := interpret.Interpret(resp.Text(), mode)
	if err := r.Store.CompleteRun(ctx, run.ID, result, nil, usage); err != nil {
		return nil, err
	}

	return r.Store.GetRun(ctx, run.ID)
}

// RunQuestion sends one registry question to the workspace and returns the
// free-form answer with citations.
func (r *Runner) RunQuestion(ctx context.Context, slug string, q model.Question) model.QuestionAnswer {
	answer := model.QuestionAnswer{QuestionID: q.ID, Title: q.Title}

	resp, err := r.Workspace.Chat(ctx, slug, q.Prompt)
	if err != nil {
		answer.Error = err.Error()
		return answer
	}

	answer.Answer = resp.TextResponse
	for _, s := range resp.Sources {
		answer.Sources = append(answer.Sources, model.Source{Document: s.Document, Text: s.Text})
	}
	return answer
}

// RunAllQuestions runs every enabled question against the workspace, one at a
// time in registry order. The serialization is deliberate: it avoids bursting
// the downstream provider. A failed question becomes an error entry in its
// answer; the loop keeps going.
func (r *Runner) RunAllQuestions(ctx context.Context, slug string) ([]model.QuestionAnswer, error) {
	snap, err := r.Registry.ListQuestions(ctx)
	if err != nil {
		return nil, err
	}

	var answers []model.QuestionAnswer
	for _, q := range snap.Questions {
		if !q.Enabled {
			continue
		}
		if r.QuestionRate != nil {
			if err := r.QuestionRate.Wait(ctx); err != nil {
				return answers, eris.Wrap(err, "analyze: run all questions")
			}
		}
		answers = append(answers, r.RunQuestion(ctx, slug, q))
	}
	return answers, nil
}

// readDocuments loads the attachment files, bounded-concurrently. Order of
// the result matches the input paths.
func readDocuments(ctx context.Context, paths []string) ([]anthropic.Document, error) {
	if len(paths) == 0 {
		return nil, eris.New("analyze: no files selected for direct upload")
	}

	docs := make([]anthropic.Document, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFileReadConcurrency)

	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return eris.Wrapf(err, "analyze: read %s", path)
			}
			docs[i] = anthropic.Document{
				Filename:  filepath.Base(path),
				MediaType: mediaTypeFor(path),
				Data:      data,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

func mediaTypeFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return "application/pdf"
	}
	return "text/plain"
}
