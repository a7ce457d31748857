package gemini

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/rbright/clonely/internal/live"
)

// FrameSource supplies the current screen as JPEG bytes.
type FrameSource interface {
	Frame(ctx context.Context) ([]byte, error)
}

type chatStream interface {
	SendMessageStream(ctx context.Context, parts ...genai.Part) iter.Seq2[*genai.GenerateContentResponse, error]
}

type newChatFunc func(ctx context.Context, model string, cfg *genai.GenerateContentConfig) (chatStream, error)

// ChatConfig selects the chat model and its instructions.
type ChatConfig struct {
	Model        string
	SystemPrompt string
	AttachScreen bool
}

// Chat streams answers from a multi-turn chat. History lives until Reset.
type Chat struct {
	cfg     ChatConfig
	logger  *slog.Logger
	frames  FrameSource
	newChat newChatFunc

	mu      sync.Mutex
	current chatStream
}

// NewChat wraps client. frames may be nil.
func NewChat(client *genai.Client, cfg ChatConfig, frames FrameSource, logger *slog.Logger) *Chat {
	if cfg.Model == "" {
		cfg.Model = DefaultChatModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Chat{cfg: cfg, logger: logger, frames: frames}
	if client != nil {
		c.newChat = func(ctx context.Context, model string, genCfg *genai.GenerateContentConfig) (chatStream, error) {
			return client.Chats.Create(ctx, model, genCfg, nil)
		}
	}
	return c
}

// Send streams a reply to prompt, calling onChunk for each text delta.
// It returns ctx.Err() when the request is cancelled mid-stream.
func (c *Chat) Send(ctx context.Context, prompt string, onChunk func(string)) error {
	stream, err := c.session(ctx)
	if err != nil {
		return err
	}

	parts := []genai.Part{{Text: prompt}}
	if c.cfg.AttachScreen && c.frames != nil {
		frame, err := c.frames.Frame(ctx)
		switch {
		case err != nil:
			c.logger.Warn("screen frame unavailable for chat", "error", err.Error())
		case len(frame) > 0:
			parts = append(parts, *genai.NewPartFromBytes(frame, imageMIMEType))
		}
	}

	for resp, err := range stream.SendMessageStream(ctx, parts...) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return fmt.Errorf("gemini chat stream: %w", err)
		}
		if resp == nil {
			continue
		}
		if text := resp.Text(); text != "" && onChunk != nil {
			onChunk(text)
		}
	}
	return ctx.Err()
}

// Reset drops the conversation history.
func (c *Chat) Reset() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}

func (c *Chat) session(ctx context.Context) (chatStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return c.current, nil
	}
	if c.newChat == nil {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY is not set", live.ErrNotConfigured)
	}

	genCfg := &genai.GenerateContentConfig{}
	if prompt := strings.TrimSpace(c.cfg.SystemPrompt); prompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(prompt, genai.RoleUser)
	}
	stream, err := c.newChat(ctx, c.cfg.Model, genCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini chat: %w", err)
	}
	c.current = stream
	return stream, nil
}
