// Package deepgram implements the live transcription leg over Deepgram's streaming websocket.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rbright/clonely/internal/live"
)

const (
	defaultBaseURL = "https://api.deepgram.com/v1"
	defaultModel   = "nova-2"
	sampleRate     = 16000
	closeTimeout   = 2 * time.Second
	writeTimeout   = 5 * time.Second
	audioQueue     = 64
)

// Keyword is one boosted vocabulary hint.
type Keyword struct {
	Phrase string
	Boost  float32
}

// Config controls the Deepgram listen request.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Language    string
	SmartFormat bool
	Keywords    []Keyword
}

// Dialer opens transcription legs. It implements live.TranscriptionDialer.
type Dialer struct {
	cfg          Config
	logger       *slog.Logger
	dialer       *websocket.Dialer
	writeTimeout time.Duration
	closeTimeout time.Duration
}

func NewDialer(cfg Config, logger *slog.Logger) *Dialer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{
		cfg:          cfg,
		logger:       logger,
		dialer:       websocket.DefaultDialer,
		writeTimeout: writeTimeout,
		closeTimeout: closeTimeout,
	}
}

// DialTranscription connects and returns once the websocket handshake completed.
func (d *Dialer) DialTranscription(ctx context.Context, onTranscript func(string)) (live.TranscriptionConn, error) {
	if strings.TrimSpace(d.cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: DEEPGRAM_API_KEY is not set", live.ErrNotConfigured)
	}

	listenURL, err := buildListenURL(d.cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.cfg.APIKey)

	conn, resp, err := d.dialer.DialContext(ctx, listenURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect deepgram (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("connect deepgram: %w", err)
	}

	s := &stream{
		conn:         conn,
		logger:       d.logger,
		onTranscript: onTranscript,
		writeTimeout: d.writeTimeout,
		closeTimeout: d.closeTimeout,
		audio:        make(chan []byte, audioQueue),
		done:         make(chan struct{}),
	}
	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		s.wg.Wait()
		close(s.done)
		_ = conn.Close()
	}()

	d.logger.Debug("deepgram stream open", "model", d.cfg.Model)
	return s, nil
}

type stream struct {
	conn         *websocket.Conn
	logger       *slog.Logger
	onTranscript func(string)
	writeTimeout time.Duration
	closeTimeout time.Duration

	audio   chan []byte
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Int64

	sendMu     sync.RWMutex
	sendClosed bool
	closeOnce  sync.Once

	errMu sync.Mutex
	err   error
}

// SendAudio queues pcm without blocking. Chunks are dropped while the
// socket is behind.
func (s *stream) SendAudio(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	if err := s.firstErr(); err != nil {
		return err
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.sendClosed {
		return errors.New("transcription stream closed")
	}

	select {
	case s.audio <- append([]byte(nil), pcm...):
		if n := s.dropped.Swap(0); n > 0 {
			s.logger.Info("deepgram stream caught up", "dropped_chunks", n)
		}
	default:
		if s.dropped.Add(1) == 1 {
			s.logger.Warn("deepgram stream is behind; dropping audio")
		}
	}
	return nil
}

// Close asks Deepgram to flush, then tears down the socket.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()

		select {
		case <-s.done:
		case <-time.After(s.closeTimeout):
			_ = s.conn.Close()
			<-s.done
		}
	})
	return s.firstErr()
}

func (s *stream) writeLoop() {
	defer s.wg.Done()

	for chunk := range s.audio {
		if err := s.write(websocket.BinaryMessage, chunk); err != nil {
			s.setErr(fmt.Errorf("send audio: %w", err))
			s.drain()
			return
		}
	}

	if err := s.write(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
		s.setErr(fmt.Errorf("send close stream: %w", err))
	}
}

func (s *stream) write(kind int, payload []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(kind, payload)
}

// drain discards queued audio so senders never block on a dead socket.
func (s *stream) drain() {
	for range s.audio {
	}
}

func (s *stream) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("read deepgram event: %w", err))
			return
		}

		text, final, err := decodeResult(payload)
		if err != nil {
			s.setErr(err)
			s.logger.Warn("deepgram stream error", "error", err.Error())
			return
		}
		if !final || text == "" {
			continue
		}
		if s.onTranscript != nil {
			s.onTranscript(text)
		}
	}
}

func (s *stream) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) || errors.Is(err, net.ErrClosed) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
		s.logger.Debug("deepgram stream ended", "error", err.Error())
	}
}

func (s *stream) firstErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

type listenResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Description string `json:"description"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// decodeResult returns the transcript and whether it is final.
// Non-result messages decode to an empty transcript.
func decodeResult(payload []byte) (string, bool, error) {
	var resp listenResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return "", false, nil
	}

	if strings.EqualFold(resp.Type, "Error") {
		message := strings.TrimSpace(resp.Description)
		if message == "" {
			message = strings.TrimSpace(resp.Message)
		}
		if message == "" {
			message = "unknown error"
		}
		return "", false, fmt.Errorf("deepgram: %s", message)
	}
	if resp.Type != "" && !strings.EqualFold(resp.Type, "Results") {
		return "", false, nil
	}
	if len(resp.Channel.Alternatives) == 0 {
		return "", false, nil
	}

	text := strings.TrimSpace(resp.Channel.Alternatives[0].Transcript)
	return text, resp.IsFinal || resp.SpeechFinal, nil
}

func buildListenURL(cfg Config) (string, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid deepgram base url: %w", err)
	}

	query := listenURL.Query()
	query.Set("model", cfg.Model)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", strconv.Itoa(sampleRate))
	query.Set("channels", "1")
	query.Set("interim_results", "false")
	query.Set("smart_format", strconv.FormatBool(cfg.SmartFormat))
	if lang := strings.TrimSpace(cfg.Language); lang != "" {
		query.Set("language", lang)
	}
	for _, kw := range cfg.Keywords {
		phrase := strings.TrimSpace(kw.Phrase)
		if phrase == "" {
			continue
		}
		if kw.Boost != 0 {
			phrase += ":" + strconv.FormatFloat(float64(kw.Boost), 'f', -1, 32)
		}
		query.Add("keywords", phrase)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
