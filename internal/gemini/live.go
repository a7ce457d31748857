// Package gemini implements the conversation leg and chat client on the Gemini API.
package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/rbright/clonely/internal/live"
)

const (
	DefaultLiveModel = "gemini-live-2.5-flash-preview"
	DefaultChatModel = "gemini-2.5-flash"

	audioMIMEType = "audio/pcm;rate=16000"
	imageMIMEType = "image/jpeg"
)

// NewClient builds a Gemini API client. An empty key yields live.ErrNotConfigured.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY is not set", live.ErrNotConfigured)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return client, nil
}

type liveSession interface {
	SendRealtimeInput(genai.LiveRealtimeInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

type connectFunc func(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (liveSession, error)

// LiveConfig selects the live model and its instructions.
type LiveConfig struct {
	Model        string
	SystemPrompt string
}

// LiveDialer opens conversation legs. It implements live.ConversationDialer.
type LiveDialer struct {
	cfg     LiveConfig
	logger  *slog.Logger
	connect connectFunc
}

// NewLiveDialer wraps client. A nil client produces a dialer that always
// fails with live.ErrNotConfigured.
func NewLiveDialer(client *genai.Client, cfg LiveConfig, logger *slog.Logger) *LiveDialer {
	if cfg.Model == "" {
		cfg.Model = DefaultLiveModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &LiveDialer{cfg: cfg, logger: logger}
	if client != nil {
		d.connect = func(ctx context.Context, model string, connectCfg *genai.LiveConnectConfig) (liveSession, error) {
			return client.Live.Connect(ctx, model, connectCfg)
		}
	}
	return d
}

// DialConversation connects and waits for the server's setup acknowledgment.
func (d *LiveDialer) DialConversation(ctx context.Context, onMessage func(live.Message)) (live.ConversationConn, error) {
	if d.connect == nil {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY is not set", live.ErrNotConfigured)
	}

	connectCfg := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityText},
	}
	if prompt := strings.TrimSpace(d.cfg.SystemPrompt); prompt != "" {
		connectCfg.SystemInstruction = genai.NewContentFromText(prompt, genai.RoleUser)
	}

	session, err := d.connect(ctx, d.cfg.Model, connectCfg)
	if err != nil {
		return nil, fmt.Errorf("connect gemini live: %w", err)
	}

	c := &conversation{
		session:   session,
		logger:    d.logger,
		onMessage: onMessage,
		opened:    make(chan struct{}),
		failed:    make(chan error, 1),
	}
	go c.receiveLoop()

	select {
	case <-c.opened:
		d.logger.Debug("gemini live session open", "model", d.cfg.Model)
		return c, nil
	case err := <-c.failed:
		_ = c.Close()
		return nil, fmt.Errorf("gemini live setup: %w", err)
	case <-ctx.Done():
		_ = c.Close()
		return nil, ctx.Err()
	}
}

type conversation struct {
	session   liveSession
	logger    *slog.Logger
	onMessage func(live.Message)
	opened    chan struct{}
	failed    chan error

	sendMu sync.Mutex

	mu            sync.Mutex
	closed        bool
	awaitingReply bool
}

func (c *conversation) SendAudio(pcm []byte) error {
	return c.send(genai.LiveRealtimeInput{Audio: &genai.Blob{Data: pcm, MIMEType: audioMIMEType}})
}

func (c *conversation) SendImage(jpegBase64 string) error {
	data, err := base64.StdEncoding.DecodeString(jpegBase64)
	if err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	return c.send(genai.LiveRealtimeInput{Video: &genai.Blob{Data: data, MIMEType: imageMIMEType}})
}

func (c *conversation) SendText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return c.send(genai.LiveRealtimeInput{Text: text})
}

// CanAcceptText is false once closed or while a reply to an ended audio turn is pending.
func (c *conversation) CanAcceptText() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && !c.awaitingReply
}

func (c *conversation) EndAudioTurn() error {
	if err := c.send(genai.LiveRealtimeInput{AudioStreamEnd: true}); err != nil {
		return err
	}
	c.mu.Lock()
	c.awaitingReply = true
	c.mu.Unlock()
	return nil
}

func (c *conversation) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.session.Close()
}

func (c *conversation) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// send serializes writes; the underlying websocket allows one writer.
func (c *conversation) send(input genai.LiveRealtimeInput) error {
	if c.isClosed() {
		return errors.New("conversation leg closed")
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.session.SendRealtimeInput(input); err != nil {
		return fmt.Errorf("send realtime input: %w", err)
	}
	return nil
}

func (c *conversation) receiveLoop() {
	open := false
	for {
		msg, err := c.session.Receive()
		if err != nil {
			if !open {
				c.failed <- err
				return
			}
			if !c.isClosed() {
				c.logger.Warn("gemini live receive failed", "error", err.Error())
			}
			return
		}
		if msg == nil {
			continue
		}
		if !open {
			if msg.SetupComplete == nil {
				continue
			}
			open = true
			close(c.opened)
			continue
		}
		if msg.GoAway != nil {
			c.logger.Warn("gemini live server going away")
		}

		out, ok := toMessage(msg)
		if !ok {
			continue
		}
		if out.TurnComplete {
			c.mu.Lock()
			c.awaitingReply = false
			c.mu.Unlock()
		}
		if c.onMessage != nil {
			c.onMessage(out)
		}
	}
}

// toMessage extracts the visible text and turn state from a server message.
func toMessage(msg *genai.LiveServerMessage) (live.Message, bool) {
	content := msg.ServerContent
	if content == nil {
		return live.Message{}, false
	}

	var text strings.Builder
	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part == nil || part.Thought {
				continue
			}
			text.WriteString(part.Text)
		}
	}

	out := live.Message{Text: text.String(), TurnComplete: content.TurnComplete}
	if out.Text == "" && !out.TurnComplete {
		return live.Message{}, false
	}
	return out, true
}
