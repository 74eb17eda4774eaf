package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/mockprep/pkg/provider/stt"
)

func TestNew(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}

	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel || p.language != defaultLanguage || p.sampleRate != defaultSampleRate {
		t.Errorf("defaults = %+v", p)
	}
	if p.endpoint != DefaultEndpoint || p.keepAlive != defaultKeepAlive {
		t.Errorf("endpoint/keepalive = %q/%v", p.endpoint, p.keepAlive)
	}
}

func TestBuildURL(t *testing.T) {
	t.Parallel()

	kws := stt.KeywordsFromStack("Go, PostgreSQL", 4)

	tests := []struct {
		name string
		opts []Option
		cfg  stt.StreamConfig
		want map[string][]string
		none []string
	}{
		{
			name: "defaults",
			cfg:  stt.StreamConfig{},
			want: map[string][]string{
				"model":           {"nova-3"},
				"language":        {"en-US"},
				"encoding":        {"linear16"},
				"sample_rate":     {"16000"},
				"channels":        {"1"},
				"interim_results": {"true"},
				"smart_format":    {"true"},
			},
			none: []string{"keyterm", "keywords"},
		},
		{
			name: "config overrides provider defaults",
			opts: []Option{WithLanguage("en-GB"), WithSampleRate(8000)},
			cfg:  stt.StreamConfig{Language: "de-DE", SampleRate: 48000, Channels: 2},
			want: map[string][]string{
				"language":    {"de-DE"},
				"sample_rate": {"48000"},
				"channels":    {"2"},
			},
		},
		{
			name: "provider defaults used when config empty",
			opts: []Option{WithLanguage("fr-FR"), WithSampleRate(8000)},
			want: map[string][]string{"language": {"fr-FR"}, "sample_rate": {"8000"}},
		},
		{
			name: "nova-3 uses keyterm",
			cfg:  stt.StreamConfig{Keywords: kws},
			want: map[string][]string{"keyterm": {"Go", "PostgreSQL"}},
			none: []string{"keywords"},
		},
		{
			name: "older models use weighted keywords",
			opts: []Option{WithModel("nova-2")},
			cfg:  stt.StreamConfig{Keywords: kws},
			want: map[string][]string{"model": {"nova-2"}, "keywords": {"Go:4", "PostgreSQL:4"}},
			none: []string{"keyterm"},
		},
		{
			name: "custom endpoint",
			opts: []Option{WithEndpoint("ws://localhost:9999/v1/listen")},
			want: map[string][]string{"model": {"nova-3"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := New("key", tt.opts...)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			raw, err := p.buildURL(tt.cfg)
			if err != nil {
				t.Fatalf("buildURL: %v", err)
			}
			u, err := url.Parse(raw)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			q := u.Query()
			for k, want := range tt.want {
				got := q[k]
				if strings.Join(got, ",") != strings.Join(want, ",") {
					t.Errorf("%s = %v, want %v", k, got, want)
				}
			}
			for _, k := range tt.none {
				if _, ok := q[k]; ok {
					t.Errorf("unexpected param %s = %v", k, q[k])
				}
			}
		})
	}
}

func TestParseResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantOK    bool
		wantText  string
		wantFinal bool
		wantWords int
	}{
		{
			name: "final with words",
			raw: `{"type":"Results","is_final":true,"start":1.5,"duration":2,
				"channel":{"alternatives":[{"transcript":"Goroutines are cheap.","confidence":0.94,
				"words":[{"word":"goroutines","punctuated_word":"Goroutines","start":1.5,"end":2.1,"confidence":0.9},
				{"word":"are","start":2.1,"end":2.3,"confidence":0.99}]}]}}`,
			wantOK:    true,
			wantText:  "Goroutines are cheap.",
			wantFinal: true,
			wantWords: 2,
		},
		{
			name:     "partial",
			raw:      `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"goroutines are"}]}}`,
			wantOK:   true,
			wantText: "goroutines are",
		},
		{
			name:   "partial empty kept",
			raw:    `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":""}]}}`,
			wantOK: true,
		},
		{name: "final empty dropped", raw: `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"  "}]}}`},
		{name: "metadata", raw: `{"type":"Metadata","request_id":"abc"}`},
		{name: "no alternatives", raw: `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`},
		{name: "invalid json", raw: `{invalid`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr, ok := parseResult([]byte(tt.raw))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if tr.Text != tt.wantText || tr.IsFinal != tt.wantFinal || len(tr.Words) != tt.wantWords {
				t.Errorf("transcript = %+v", tr)
			}
		})
	}

	tr, _ := parseResult([]byte(tests[0].raw))
	if tr.Words[0].Word != "Goroutines" || tr.Words[1].Word != "are" {
		t.Errorf("words = %+v", tr.Words)
	}
	if tr.Start != 1500*time.Millisecond || tr.Duration != 2*time.Second {
		t.Errorf("start/duration = %v/%v", tr.Start, tr.Duration)
	}
}

// fakeDeepgram answers every binary frame with one partial and one final and
// hangs up on CloseStream.
func fakeDeepgram(t *testing.T, gotAuth chan<- string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		for {
			typ, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageText {
				if strings.Contains(string(data), "CloseStream") {
					c.Close(websocket.StatusNormalClosure, "")
					return
				}
				continue
			}
			_ = c.Write(ctx, websocket.MessageText, []byte(
				`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"channels are"}]}}`))
			_ = c.Write(ctx, websocket.MessageText, []byte(
				`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"Channels are typed pipes."}]}}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSession_RoundTrip(t *testing.T) {
	t.Parallel()

	gotAuth := make(chan string, 1)
	srv := fakeDeepgram(t, gotAuth)

	p, err := New("secret", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")), WithKeepAlive(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := p.StartStream(ctx, stt.StreamConfig{})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if auth := <-gotAuth; auth != "Token secret" {
		t.Errorf("Authorization = %q", auth)
	}

	if err := sess.SendAudio(make([]byte, 320)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case tr := <-sess.Partials():
		if tr.Text != "channels are" || tr.IsFinal {
			t.Errorf("partial = %+v", tr)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for partial")
	}
	select {
	case tr := <-sess.Finals():
		if tr.Text != "Channels are typed pipes." || !tr.IsFinal {
			t.Errorf("final = %+v", tr)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for final")
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := sess.SendAudio([]byte{1}); err != stt.ErrSessionClosed {
		t.Errorf("SendAudio after Close = %v, want ErrSessionClosed", err)
	}
	if _, ok := <-sess.Finals(); ok {
		t.Error("finals channel still open after Close")
	}
}
