package digest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rcliao/reddit-digest/internal/cache"
	"github.com/rcliao/reddit-digest/internal/llm"
	"github.com/rcliao/reddit-digest/internal/model"
	"github.com/rcliao/reddit-digest/internal/prompts"
)

const (
	ContentTypeJSON = "application/json; charset=utf-8"
	ContentTypeText = "text/plain; charset=utf-8"
)

// ErrNoProvider is returned when a summary must be generated but no LLM
// provider is configured.
var ErrNoProvider = errors.New("no llm provider configured")

// SummaryRequest asks for a summary of one curated result. Prompt overrides
// the stored directive; Content, when set, is used as model input instead of
// the cached or freshly curated result.
type SummaryRequest struct {
	Request
	Prompt  string
	Content json.RawMessage
}

// SummaryJob is a prepared summary: either a replay of a cached summary or a
// generation still to be streamed. ContentType is known before any byte is
// written.
type SummaryJob struct {
	a      *Assembler
	req    Request
	prompt string
	input  []byte
	replay []byte

	Cached      bool
	ContentType string
}

// Prompt is the directive the summary is generated with.
func (j *SummaryJob) Prompt() string { return j.prompt }

// PrepareSummary resolves the prompt, and either finds a cached summary
// generated with it or gathers the model input.
func (a *Assembler) PrepareSummary(ctx context.Context, sr SummaryRequest) (*SummaryJob, error) {
	req, err := sr.Request.Normalize()
	if err != nil {
		return nil, err
	}

	prompt := prompts.DefaultFor(req.Subreddit)
	if a.Prompts != nil {
		prompt = a.Prompts.Resolve(ctx, req.Subreddit, sr.Prompt)
	} else if p := strings.TrimSpace(sr.Prompt); p != "" {
		prompt = p
	}
	job := &SummaryJob{a: a, req: req, prompt: prompt, ContentType: ContentTypeText}

	cached, hit := cache.GetJSON[model.Result](ctx, a.Cache, cache.SubjectNamespace, req.Key())
	if hit && cached.HasSummaryFor(prompt) {
		job.Cached = true
		if len(cached.SummaryStructured) > 0 {
			if job.replay, err = json.Marshal(cached.SummaryStructured); err != nil {
				return nil, fmt.Errorf("replay summary: %w", err)
			}
			job.ContentType = ContentTypeJSON
		} else {
			job.replay = []byte(cached.Summary)
		}
		return job, nil
	}

	if a.LLM == nil {
		return nil, ErrNoProvider
	}
	switch {
	case hasContent(sr.Content):
		job.input = sr.Content
	case hit:
		job.input, err = json.Marshal(cached)
	default:
		var res *model.Result
		if res, err = a.Research(ctx, req); err == nil {
			job.input, err = json.Marshal(res)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("summary input: %w", err)
	}
	return job, nil
}

// Summary prepares and runs a summary, writing it to w.
func (a *Assembler) Summary(ctx context.Context, sr SummaryRequest, w io.Writer) error {
	job, err := a.PrepareSummary(ctx, sr)
	if err != nil {
		return err
	}
	return job.Run(ctx, w)
}

// Run writes the summary to w. A generated summary is streamed as it
// arrives and merged into the cached result only after the stream ended
// cleanly with some text. On failure an error marker is written and the
// cache is left as it was.
func (j *SummaryJob) Run(ctx context.Context, w io.Writer) error {
	a := j.a
	if j.Cached {
		summaryOutcomes.WithLabelValues("replayed").Inc()
		_, err := w.Write(j.replay)
		return err
	}

	text, err := j.stream(ctx, w)
	if err != nil {
		summaryOutcomes.WithLabelValues("failed").Inc()
		a.log.Warn("summary stream failed", "subreddit", j.req.Subreddit, "period", j.req.Period, "err", err)
		fmt.Fprintf(w, "\n[Error] %s\n", err)
		flush(w)
		return err
	}
	if text == "" {
		summaryOutcomes.WithLabelValues("empty").Inc()
		a.log.Warn("summary stream produced no text", "subreddit", j.req.Subreddit, "period", j.req.Period)
		return nil
	}
	summaryOutcomes.WithLabelValues("generated").Inc()

	if err := j.commit(context.WithoutCancel(ctx), text); err != nil {
		a.log.Error("summary commit failed", "subreddit", j.req.Subreddit, "err", err)
	}
	return nil
}

func (j *SummaryJob) stream(ctx context.Context, w io.Writer) (string, error) {
	a := j.a
	system := llm.SystemPrompt(j.prompt, j.req.Subreddit, j.req.Period, a.now())
	stream, err := a.LLM.GenerateStream(ctx, llm.SummaryRequest(a.model, system, j.input))
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	defer stream.Close()

	var buf strings.Builder
	for {
		chunk, err := stream.Recv(ctx)
		if errors.Is(err, io.EOF) {
			return buf.String(), nil
		}
		if err != nil {
			return "", fmt.Errorf("generate summary: %w", err)
		}
		if chunk.Delta == "" {
			continue
		}
		if _, err := io.WriteString(w, chunk.Delta); err != nil {
			return "", fmt.Errorf("write summary: %w", err)
		}
		flush(w)
		buf.WriteString(chunk.Delta)
	}
}

// commit merges the generated text into the current cache entry, or into a
// result built from the model input when there is none, and archives it.
func (j *SummaryJob) commit(ctx context.Context, text string) error {
	a := j.a
	key := j.req.Key()

	doc := map[string]json.RawMessage{}
	raw, ok := a.Cache.Get(ctx, cache.SubjectNamespace, key)
	if !ok || json.Unmarshal(raw, &doc) != nil || doc == nil {
		doc = j.baseDocument()
	}

	if items, ok := ParseStructured(text); ok {
		doc["ai_summary_structured"] = mustJSON(items)
		delete(doc, "ai_summary")
	} else {
		doc["ai_summary"] = mustJSON(text)
		delete(doc, "ai_summary_structured")
	}
	doc["ai_prompt_used"] = mustJSON(j.prompt)

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("commit summary: %w", err)
	}
	if err := a.Cache.Set(ctx, cache.SubjectNamespace, key, data, ResultTTL); err != nil {
		return err
	}
	if a.Archive != nil {
		if err := a.Archive.Save(ctx, j.req.Subreddit, j.req.Period, data); err != nil {
			snapshotFailures.Inc()
			a.log.Warn("snapshot save failed", "subreddit", j.req.Subreddit, "period", j.req.Period, "err", err)
		}
	}
	return nil
}

func (j *SummaryJob) baseDocument() map[string]json.RawMessage {
	var in struct {
		TopPosts json.RawMessage `json:"top_posts"`
	}
	_ = json.Unmarshal(j.input, &in)
	if len(in.TopPosts) == 0 || bytes.Equal(in.TopPosts, []byte("null")) {
		in.TopPosts = json.RawMessage("[]")
	}
	return map[string]json.RawMessage{
		"subreddit": mustJSON(j.req.Subreddit),
		"period":    mustJSON(j.req.Period),
		"cachedAt":  mustJSON(j.a.now().UTC()),
		"top_posts": in.TopPosts,
	}
}

// ParseStructured decodes a generated summary as a JSON array of items.
// Surrounding code fences are tolerated and non-object elements dropped. It
// reports false when no item survives.
func ParseStructured(text string) ([]model.SummaryItem, bool) {
	s := strings.TrimSpace(text)
	if rest, ok := strings.CutPrefix(s, "```json"); ok {
		s = rest
	} else if rest, ok := strings.CutPrefix(s, "```"); ok {
		s = rest
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(s), &elems); err != nil {
		return nil, false
	}
	items := make([]model.SummaryItem, 0, len(elems))
	for _, e := range elems {
		if !bytes.HasPrefix(bytes.TrimSpace(e), []byte("{")) {
			continue
		}
		var item model.SummaryItem
		if err := json.Unmarshal(e, &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, len(items) > 0
}

func hasContent(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && !bytes.Equal(t, []byte("null"))
}

func flush(w io.Writer) {
	if f, ok := w.(interface{ Flush() }); ok {
		f.Flush()
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal %T: %v", v, err))
	}
	return b
}
