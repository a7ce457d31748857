// Package live coordinates the conversation and transcription legs of a live session.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrNotConfigured is returned by legs that lack credentials.
var ErrNotConfigured = errors.New("live leg not configured")

// Chunk is a conversation text delta. Reset marks the first delta of a new turn.
type Chunk struct {
	Text  string
	Reset bool
}

// Callbacks receive session output. Calls from one leg arrive in order.
type Callbacks struct {
	OnConversationChunk func(Chunk)
	OnTranscript        func(string)
}

// Message is one inbound server message from the conversation leg.
type Message struct {
	Text         string
	TurnComplete bool
}

// ConversationConn is an open conversation leg.
type ConversationConn interface {
	SendAudio(pcm []byte) error
	SendImage(jpegBase64 string) error
	SendText(text string) error
	// CanAcceptText reports whether text input may be interleaved right now.
	CanAcceptText() bool
	// EndAudioTurn marks the end of the user's audio turn without closing.
	EndAudioTurn() error
	Close() error
}

// TranscriptionConn is an open transcription leg.
type TranscriptionConn interface {
	SendAudio(pcm []byte) error
	Close() error
}

// ConversationDialer opens a conversation leg. It returns once the transport
// acknowledged the session as open. onMessage is called sequentially.
type ConversationDialer interface {
	DialConversation(ctx context.Context, onMessage func(Message)) (ConversationConn, error)
}

// TranscriptionDialer opens a transcription leg. It returns once the stream is ready.
type TranscriptionDialer interface {
	DialTranscription(ctx context.Context, onTranscript func(string)) (TranscriptionConn, error)
}

// Service presents one start/stop/send surface over both legs.
type Service struct {
	logger        *slog.Logger
	conversation  ConversationDialer
	transcription TranscriptionDialer

	mu                sync.Mutex
	active            bool
	muted             bool
	attempt           uint64
	cancelStart       context.CancelFunc
	conv              ConversationConn
	asr               TranscriptionConn
	turnJustCompleted bool
	closePending      bool
}

// NewService builds a Service. muted sets the initial conversation mute flag.
func NewService(logger *slog.Logger, conversation ConversationDialer, transcription TranscriptionDialer, muted bool) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:        logger,
		conversation:  conversation,
		transcription: transcription,
		muted:         muted,
	}
}

// Start opens both legs concurrently. It is a no-op while already active.
// If either leg fails, both are closed and the error is returned.
func (s *Service) Start(ctx context.Context, cb Callbacks) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		s.logger.Info("live session already active; ignoring start")
		return nil
	}
	s.active = true
	s.attempt++
	attempt := s.attempt
	startCtx, cancel := context.WithCancel(ctx)
	s.cancelStart = cancel
	s.turnJustCompleted = true
	s.closePending = false
	s.mu.Unlock()
	defer cancel()

	var (
		conv ConversationConn
		asr  TranscriptionConn
	)
	group, groupCtx := errgroup.WithContext(startCtx)
	group.Go(func() error {
		c, err := s.conversation.DialConversation(groupCtx, s.conversationHandler(attempt, cb))
		if err != nil {
			return fmt.Errorf("open conversation leg: %w", err)
		}
		conv = c
		return nil
	})
	group.Go(func() error {
		c, err := s.transcription.DialTranscription(groupCtx, s.transcriptHandler(attempt, cb))
		if err != nil {
			return fmt.Errorf("open transcription leg: %w", err)
		}
		asr = c
		return nil
	})
	err := group.Wait()

	s.mu.Lock()
	current := s.attempt == attempt && s.active
	if err == nil && !current {
		err = context.Canceled
	}
	if err != nil {
		if s.attempt == attempt {
			s.active = false
			s.cancelStart = nil
		}
		s.mu.Unlock()
		s.closeLegs(conv, asr)
		return err
	}
	s.conv = conv
	s.asr = asr
	s.cancelStart = nil
	s.mu.Unlock()

	s.logger.Info("live session started")
	return nil
}

func (s *Service) conversationHandler(attempt uint64, cb Callbacks) func(Message) {
	return func(msg Message) {
		s.mu.Lock()
		if s.attempt != attempt || !s.active {
			s.mu.Unlock()
			return
		}
		chunks := make([]Chunk, 0, 1)
		if msg.Text != "" {
			chunks = append(chunks, Chunk{Text: msg.Text, Reset: s.turnJustCompleted})
			s.turnJustCompleted = false
		}
		var closing ConversationConn
		if msg.TurnComplete {
			s.turnJustCompleted = true
			if s.closePending {
				s.closePending = false
				closing = s.conv
				s.conv = nil
			}
		}
		s.mu.Unlock()

		if cb.OnConversationChunk != nil {
			for _, chunk := range chunks {
				cb.OnConversationChunk(chunk)
			}
		}
		if closing != nil {
			if err := closing.Close(); err != nil {
				s.logger.Warn("close conversation leg after turn", "error", err.Error())
			}
		}
	}
}

func (s *Service) transcriptHandler(attempt uint64, cb Callbacks) func(string) {
	return func(text string) {
		s.mu.Lock()
		current := s.attempt == attempt && s.active
		s.mu.Unlock()
		if current && cb.OnTranscript != nil && text != "" {
			cb.OnTranscript(text)
		}
	}
}

// Stop closes both legs. It is a no-op while inactive.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	if s.cancelStart != nil {
		s.cancelStart()
		s.cancelStart = nil
	}
	conv, asr := s.conv, s.asr
	s.conv, s.asr = nil, nil
	s.closePending = false
	s.mu.Unlock()

	s.closeLegs(conv, asr)
	s.logger.Info("live session stopped")
}

func (s *Service) closeLegs(conv ConversationConn, asr TranscriptionConn) {
	if conv != nil {
		if err := conv.Close(); err != nil {
			s.logger.Warn("close conversation leg", "error", err.Error())
		}
	}
	if asr != nil {
		if err := asr.Close(); err != nil {
			s.logger.Warn("close transcription leg", "error", err.Error())
		}
	}
}

// SendAudioChunk forwards 16 kHz mono s16le PCM. Transcription always
// receives it; the conversation leg only while unmuted.
func (s *Service) SendAudioChunk(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	conv, asr, muted := s.conv, s.asr, s.muted
	s.mu.Unlock()

	if asr != nil {
		if err := asr.SendAudio(pcm); err != nil {
			s.logger.Warn("send audio to transcription leg", "error", err.Error())
		}
	}
	if conv != nil && !muted {
		if err := conv.SendAudio(pcm); err != nil {
			s.logger.Warn("send audio to conversation leg", "error", err.Error())
		}
	}
}

// SendImageChunk forwards a base64 JPEG frame to the conversation leg.
func (s *Service) SendImageChunk(jpegBase64 string) {
	if jpegBase64 == "" {
		return
	}
	conv := s.activeConversation()
	if conv == nil {
		return
	}
	if err := conv.SendImage(jpegBase64); err != nil {
		s.logger.Warn("send image to conversation leg", "error", err.Error())
	}
}

// SendTextInput forwards text when the conversation leg can accept it.
func (s *Service) SendTextInput(text string) {
	conv := s.activeConversation()
	if conv == nil || !conv.CanAcceptText() {
		return
	}
	if err := conv.SendText(text); err != nil {
		s.logger.Warn("send text to conversation leg", "error", err.Error())
	}
}

// FinishTurn ends the user's audio turn. The conversation leg closes after
// the next turn-complete message; transcription is unaffected.
func (s *Service) FinishTurn() {
	s.mu.Lock()
	if !s.active || s.conv == nil {
		s.mu.Unlock()
		return
	}
	conv := s.conv
	s.closePending = true
	s.mu.Unlock()

	if err := conv.EndAudioTurn(); err != nil {
		s.logger.Warn("send end of audio turn", "error", err.Error())
	}
}

// ToggleGeminiAudio mutes or unmutes the conversation audio leg.
func (s *Service) ToggleGeminiAudio(mute bool) {
	s.mu.Lock()
	s.muted = mute
	s.mu.Unlock()
	s.logger.Info("conversation audio toggled", "muted", mute)
}

// Muted reports the conversation mute flag.
func (s *Service) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// IsActive reports whether a session is active or starting.
func (s *Service) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Service) activeConversation() ConversationConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil
	}
	return s.conv
}
