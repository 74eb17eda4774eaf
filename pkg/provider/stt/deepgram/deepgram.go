// Package deepgram implements stt.Provider on the Deepgram live transcription
// WebSocket API.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/mockprep/pkg/provider/stt"
)

const (
	// DefaultEndpoint is the Deepgram live transcription endpoint.
	DefaultEndpoint = "wss://api.deepgram.com/v1/listen"

	defaultModel      = "nova-3"
	defaultLanguage   = "en-US"
	defaultSampleRate = 16000

	// Deepgram drops idle streams after roughly ten seconds without data.
	defaultKeepAlive = 5 * time.Second

	closeGrace = 3 * time.Second
)

// Option configures a [Provider].
type Option func(*Provider)

// WithModel sets the Deepgram model (e.g. "nova-3", "nova-2").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the default recognition language.
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithSampleRate sets the default PCM sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithEndpoint overrides the WebSocket endpoint.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// WithKeepAlive sets the idle interval after which a KeepAlive message is
// sent. Zero disables keep-alives.
func WithKeepAlive(d time.Duration) Option {
	return func(p *Provider) { p.keepAlive = d }
}

// Provider implements stt.Provider.
type Provider struct {
	apiKey     string
	model      string
	language   string
	sampleRate int
	endpoint   string
	keepAlive  time.Duration
}

var _ stt.Provider = (*Provider)(nil)

// New creates a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		endpoint:   DefaultEndpoint,
		keepAlive:  defaultKeepAlive,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream dials Deepgram and returns a live session. The session ends when
// Close is called, the server hangs up or ctx is cancelled.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &session{
		conn:       conn,
		cancel:     cancel,
		keepAlive:  p.keepAlive,
		partials:   make(chan stt.Transcript, 64),
		finals:     make(chan stt.Transcript, 64),
		audio:      make(chan []byte, 256),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	go s.readLoop(sctx)
	go s.writeLoop(sctx)
	return s, nil
}

// buildURL constructs the streaming URL for cfg. nova-3 models take keyterm
// prompts; older models take weighted keywords.
func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}
	ch := cfg.Channels
	if ch == 0 {
		ch = 1
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("channels", strconv.Itoa(ch))
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("interim_results", "true")

	keyterms := strings.HasPrefix(p.model, "nova-3")
	for _, kw := range cfg.Keywords {
		if keyterms {
			q.Add("keyterm", kw.Keyword)
		} else {
			q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
		}
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// result is the subset of a Deepgram "Results" message that is consumed.
type result struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word           string  `json:"word"`
				PunctuatedWord string  `json:"punctuated_word"`
				Start          float64 `json:"start"`
				End            float64 `json:"end"`
				Confidence     float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// parseResult decodes a Results message. Other message types, malformed JSON
// and empty finals are reported as not ok.
func parseResult(data []byte) (stt.Transcript, bool) {
	var r result
	if err := json.Unmarshal(data, &r); err != nil {
		return stt.Transcript{}, false
	}
	if r.Type != "Results" || len(r.Channel.Alternatives) == 0 {
		return stt.Transcript{}, false
	}
	alt := r.Channel.Alternatives[0]
	if r.IsFinal && strings.TrimSpace(alt.Transcript) == "" {
		return stt.Transcript{}, false
	}

	var words []stt.WordDetail
	if len(alt.Words) > 0 {
		words = make([]stt.WordDetail, 0, len(alt.Words))
		for _, w := range alt.Words {
			text := w.PunctuatedWord
			if text == "" {
				text = w.Word
			}
			words = append(words, stt.WordDetail{
				Word:       text,
				Start:      seconds(w.Start),
				End:        seconds(w.End),
				Confidence: w.Confidence,
			})
		}
	}

	return stt.Transcript{
		Text:       alt.Transcript,
		IsFinal:    r.IsFinal,
		Confidence: alt.Confidence,
		Words:      words,
		Start:      seconds(r.Start),
		Duration:   seconds(r.Duration),
	}, true
}

type session struct {
	conn      *websocket.Conn
	cancel    context.CancelFunc
	keepAlive time.Duration

	partials chan stt.Transcript
	finals   chan stt.Transcript
	audio    chan []byte

	done       chan struct{}
	once       sync.Once
	readerDone chan struct{}
	writerDone chan struct{}
}

func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return stt.ErrSessionClosed
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return stt.ErrSessionClosed
	}
}

func (s *session) Partials() <-chan stt.Transcript { return s.partials }

func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// Close flushes queued audio, asks Deepgram to finish the stream and waits
// briefly for the last finals before tearing the connection down.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		<-s.writerDone
		select {
		case <-s.readerDone:
		case <-time.After(closeGrace):
		}
		s.cancel()
		<-s.readerDone
		_ = s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

func (s *session) writeLoop(ctx context.Context) {
	defer close(s.writerDone)

	var tick <-chan time.Time
	if s.keepAlive > 0 {
		t := time.NewTicker(s.keepAlive)
		defer t.Stop()
		tick = t.C
	}
	idle := true

	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
			idle = false
		case <-tick:
			if idle {
				if err := s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"KeepAlive"}`)); err != nil {
					return
				}
			}
			idle = true
		case <-s.done:
			for {
				select {
				case chunk := <-s.audio:
					if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
						return
					}
				default:
					_ = s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *session) readLoop(ctx context.Context) {
	defer close(s.readerDone)
	defer close(s.partials)
	defer close(s.finals)

	var seq uint64
	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		t, ok := parseResult(msg)
		if !ok {
			continue
		}
		seq++
		t.Seq = seq
		out := s.partials
		if t.IsFinal {
			out = s.finals
		}
		select {
		case out <- t:
		case <-ctx.Done():
			return
		}
	}
}
