// Package completion wraps the local llama-server behind a small chat
// completion interface. The server speaks the OpenAI wire protocol, so the
// client is the stock openai SDK pointed at a local base URL.
package completion

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	config "buddy/app/configs"
	"buddy/app/pkg/logger"
)

// Message is one turn of model input.
type Message struct {
	Role    string // "system", "user" or "assistant"
	Content string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Service produces chat completions. Initialize must succeed before Complete
// is called; implementations make Initialize safe to call concurrently and
// repeatedly.
type Service interface {
	Initialize(ctx context.Context) error
	Complete(ctx context.Context, msgs []Message) (string, error)
	IsInitialized() bool
	IsLoading() bool
	Release()
}

// LocalService talks to an OpenAI-compatible server on localhost. The first
// Initialize call warms the model; concurrent callers share that in-flight
// warmup instead of issuing their own.
type LocalService struct {
	client openai.Client
	cfg    config.ModelConfig

	mu          sync.Mutex
	initialized bool
	loading     bool
	initDone    chan struct{}
	initErr     error
}

func NewLocalService(cfg config.ModelConfig) *LocalService {
	return &LocalService{
		client: openai.NewClient(
			option.WithBaseURL(cfg.BaseURL),
			option.WithAPIKey("local"),
		),
		cfg: cfg,
	}
}

func (s *LocalService) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	if s.loading {
		done := s.initDone
		s.mu.Unlock()
		select {
		case <-done:
			s.mu.Lock()
			err := s.initErr
			s.mu.Unlock()
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.loading = true
	s.initDone = make(chan struct{})
	s.mu.Unlock()

	err := s.warmup(ctx)

	s.mu.Lock()
	s.loading = false
	s.initErr = err
	s.initialized = err == nil
	close(s.initDone)
	s.mu.Unlock()
	return err
}

// warmup issues a tiny completion so the server loads model weights before
// the first real request.
func (s *LocalService) warmup(ctx context.Context) error {
	timeout := time.Duration(s.cfg.WarmupTimeoutSec) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.cfg.Name),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("hi"),
		},
		MaxTokens: openai.Int(1),
	})
	if err != nil {
		return fmt.Errorf("model warmup failed: %w", err)
	}
	logger.Info("Model %s ready at %s", s.cfg.Name, s.cfg.BaseURL)
	return nil
}

func (s *LocalService) Complete(ctx context.Context, msgs []Message) (string, error) {
	if !s.IsInitialized() {
		return "", fmt.Errorf("completion service not initialized")
	}

	timeout := time.Duration(s.cfg.CompleteTimeout) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(s.cfg.Name),
		Messages:    toOpenAIMessages(msgs),
		MaxTokens:   openai.Int(int64(s.cfg.MaxTokens)),
		Temperature: openai.Float(s.cfg.Temperature),
		TopP:        openai.Float(s.cfg.TopP),
	}
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (s *LocalService) IsInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *LocalService) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Release drops the initialized flag so the next Initialize re-warms the
// model. The server itself owns the weights; there is nothing to free here.
func (s *LocalService) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = false
	s.initErr = nil
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
