package answer

import "testing"

func TestTranscript(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		finals      []string
		interim     string
		wantFinal   string
		wantAnswer  string
		wantInterim string
	}{
		{name: "empty"},
		{name: "single final", finals: []string{"hello"}, wantFinal: "hello", wantAnswer: "hello"},
		{
			name:       "finals joined by one space",
			finals:     []string{"goroutines are", " cheap ", "and fast"},
			wantFinal:  "goroutines are cheap and fast",
			wantAnswer: "goroutines are cheap and fast",
		},
		{
			name:        "interim appended",
			finals:      []string{"channels"},
			interim:     "are typed",
			wantFinal:   "channels",
			wantInterim: "are typed",
			wantAnswer:  "channels are typed",
		},
		{
			name:        "interim only keeps separator",
			interim:     "partial",
			wantInterim: "partial",
			wantAnswer:  " partial",
		},
		{name: "blank finals ignored", finals: []string{"a", "  ", "b"}, wantFinal: "a b", wantAnswer: "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var tr Transcript
			for _, f := range tt.finals {
				tr.AddFinal(f)
			}
			if tt.interim != "" {
				tr.SetInterim(tt.interim)
			}
			if got := tr.Final(); got != tt.wantFinal {
				t.Errorf("Final() = %q, want %q", got, tt.wantFinal)
			}
			if got := tr.Interim(); got != tt.wantInterim {
				t.Errorf("Interim() = %q, want %q", got, tt.wantInterim)
			}
			if got := tr.Answer(); got != tt.wantAnswer {
				t.Errorf("Answer() = %q, want %q", got, tt.wantAnswer)
			}
		})
	}
}

func TestTranscript_FinalClearsInterim(t *testing.T) {
	t.Parallel()
	var tr Transcript
	tr.SetInterim("goroutine")
	tr.AddFinal("goroutines are lightweight")
	if tr.Interim() != "" {
		t.Errorf("Interim() = %q after final", tr.Interim())
	}
	tr.Reset()
	if tr.Answer() != "" {
		t.Errorf("Answer() = %q after Reset", tr.Answer())
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	want := map[State]string{
		Idle: "idle", Recording: "recording", Stopped: "stopped",
		Grading: "grading", Graded: "graded", Saving: "saving", Saved: "saved", State(42): "state(42)",
	}
	for s, name := range want {
		if s.String() != name {
			t.Errorf("%d.String() = %q, want %q", int(s), s.String(), name)
		}
	}
	b, _ := Graded.MarshalText()
	if string(b) != "graded" {
		t.Errorf("MarshalText = %q", b)
	}
}
