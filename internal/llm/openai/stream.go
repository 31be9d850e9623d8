package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/openai/openai-go/v3/responses"

	"github.com/rcliao/reddit-digest/internal/llm"
)

type responseStream interface {
	Next() bool
	Current() responses.ResponseStreamEventUnion
	Err() error
	Close() error
}

type stream struct {
	mu       sync.Mutex
	inner    responseStream
	closed   bool
	finished bool
}

func newStream(inner responseStream) *stream {
	return &stream{inner: inner}
}

func (s *stream) Recv(ctx context.Context) (llm.Chunk, error) {
	for {
		if err := ctx.Err(); err != nil {
			s.Close()
			return llm.Chunk{}, fmt.Errorf("openai stream recv: %w", err)
		}
		event, err := s.next(ctx)
		if err != nil {
			return llm.Chunk{}, err
		}
		chunk, done, err := mapEvent(event)
		if err != nil {
			s.markFinished()
			return llm.Chunk{}, err
		}
		if done {
			s.markFinished()
			return llm.Chunk{}, io.EOF
		}
		if chunk.Delta == "" {
			continue
		}
		return chunk, nil
	}
}

func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed, s.finished = true, true
	inner := s.inner
	s.inner = nil
	s.mu.Unlock()

	if inner == nil {
		return nil
	}
	if err := inner.Close(); err != nil {
		return fmt.Errorf("openai stream close: %w", err)
	}
	return nil
}

func (s *stream) next(ctx context.Context) (responses.ResponseStreamEventUnion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.finished || s.inner == nil {
		return responses.ResponseStreamEventUnion{}, io.EOF
	}
	if !s.inner.Next() {
		s.finished = true
		err := s.inner.Err()
		switch {
		case err == nil:
			// The SSE stream ended without response.completed.
			return responses.ResponseStreamEventUnion{}, fmt.Errorf("openai stream: ended before completion")
		case ctx.Err() != nil:
			return responses.ResponseStreamEventUnion{}, fmt.Errorf("openai stream: %w", ctx.Err())
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return responses.ResponseStreamEventUnion{}, fmt.Errorf("openai stream canceled: %w", err)
		}
		return responses.ResponseStreamEventUnion{}, fmt.Errorf("openai stream next: %w", err)
	}
	return s.inner.Current(), nil
}

func (s *stream) markFinished() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
}

func mapEvent(event responses.ResponseStreamEventUnion) (llm.Chunk, bool, error) {
	switch strings.TrimSpace(event.Type) {
	case eventOutputTextDelta:
		if !event.JSON.Delta.Valid() {
			return llm.Chunk{}, false, fmt.Errorf("openai stream: %s without delta", event.Type)
		}
		return llm.Chunk{Delta: event.Delta}, false, nil
	case eventCompleted:
		return llm.Chunk{}, true, nil
	case eventFailed:
		status := strings.TrimSpace(string(event.Response.Status))
		if status == "" {
			status = "unknown"
		}
		return llm.Chunk{}, false, fmt.Errorf("openai response failed: status=%s", status)
	case eventError:
		msg := strings.TrimSpace(event.Message)
		if msg == "" {
			msg = "unknown error"
		}
		if code := strings.TrimSpace(event.Code); code != "" {
			return llm.Chunk{}, false, fmt.Errorf("openai stream error %s: %s", code, msg)
		}
		return llm.Chunk{}, false, fmt.Errorf("openai stream error: %s", msg)
	case "":
		return llm.Chunk{}, false, fmt.Errorf("openai stream: event without type")
	default:
		return llm.Chunk{}, false, nil
	}
}

var _ llm.Stream = (*stream)(nil)
