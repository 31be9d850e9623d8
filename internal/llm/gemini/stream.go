package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"

	"google.golang.org/genai"

	"github.com/rcliao/reddit-digest/internal/llm"
)

type stream struct {
	mu sync.Mutex

	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()

	closed   bool
	finished bool
	pending  []string
}

func newStream(seq iter.Seq2[*genai.GenerateContentResponse, error]) *stream {
	next, stop := iter.Pull2(seq)
	return &stream{next: next, stop: stop}
}

func (s *stream) Recv(ctx context.Context) (llm.Chunk, error) {
	for {
		if err := ctx.Err(); err != nil {
			s.Close()
			return llm.Chunk{}, fmt.Errorf("gemini stream recv: %w", err)
		}
		if text, ok := s.dequeue(); ok {
			return llm.Chunk{Delta: text}, nil
		}

		resp, err := s.nextResponse(ctx)
		if err != nil {
			return llm.Chunk{}, err
		}
		s.enqueue(responseText(resp))
	}
}

func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed, s.finished = true, true
	stop := s.stop
	s.stop, s.next = nil, nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	return nil
}

func (s *stream) nextResponse(ctx context.Context) (*genai.GenerateContentResponse, error) {
	s.mu.Lock()
	if s.closed || s.finished || s.next == nil {
		s.mu.Unlock()
		return nil, io.EOF
	}
	next := s.next
	s.mu.Unlock()

	resp, err, ok := next()
	if !ok {
		s.markFinished()
		return nil, io.EOF
	}
	if err != nil {
		s.markFinished()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("gemini stream: %w", ctxErr)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("gemini stream canceled: %w", err)
		}
		return nil, fmt.Errorf("gemini stream next: %w", err)
	}
	if resp == nil {
		s.markFinished()
		return nil, fmt.Errorf("gemini stream: nil response")
	}
	return resp, nil
}

func (s *stream) markFinished() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
}

func (s *stream) dequeue() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return "", false
	}
	text := s.pending[0]
	s.pending = s.pending[1:]
	return text, true
}

func (s *stream) enqueue(texts []string) {
	if len(texts) == 0 {
		return
	}
	s.mu.Lock()
	s.pending = append(s.pending, texts...)
	s.mu.Unlock()
}

// responseText returns the non-empty, non-thought text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) []string {
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return nil
	}
	var out []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought || part.Text == "" {
			continue
		}
		out = append(out, part.Text)
	}
	return out
}

var _ llm.Stream = (*stream)(nil)
