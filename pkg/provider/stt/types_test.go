package stt

import "testing"

func TestKeywordsFromStack(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		stack string
		want  []string
	}{
		{name: "empty", stack: "", want: nil},
		{name: "single", stack: "Go", want: []string{"Go"}},
		{name: "mixed separators", stack: "Go, PostgreSQL / Redis; Kafka|gRPC", want: []string{"Go", "PostgreSQL", "Redis", "Kafka", "gRPC"}},
		{name: "multi-word terms kept", stack: "Spring Boot, React Native", want: []string{"Spring Boot", "React Native"}},
		{name: "duplicates and blanks", stack: "go, Go ,, GO", want: []string{"go"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := KeywordsFromStack(tt.stack, 2)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i, kw := range got {
				if kw.Keyword != tt.want[i] || kw.Boost != 2 {
					t.Errorf("[%d] = %+v, want %q boost 2", i, kw, tt.want[i])
				}
			}
		})
	}
}
