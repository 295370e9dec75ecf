package security

import (
	"strings"
	"testing"
)

func TestPlain_StripsAllTags(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "タグなしはそのまま", input: "Go入門", want: "Go入門"},
		{name: "strongタグを除去", input: "<strong>Go</strong> Basics", want: "Go Basics"},
		{name: "scriptは中身ごと除去", input: "Title<script>alert(1)</script>", want: "Title"},
		{name: "実体参照を元に戻す", input: "Q&A and <b>more</b>", want: "Q&A and more"},
		{name: "前後の空白を除去", input: "  spaced  ", want: "spaced"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Plain(tt.input); got != tt.want {
				t.Errorf("Plain(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRich_KeepsFormattingTags(t *testing.T) {
	s := NewSanitizer()

	got := s.Rich("<p>段落</p><ul><li>項目</li></ul><strong>太字</strong>")
	for _, want := range []string{"<p>段落</p>", "<li>項目</li>", "<strong>太字</strong>"} {
		if !strings.Contains(got, want) {
			t.Errorf("Rich() = %q, expected to contain %q", got, want)
		}
	}
}

func TestRich_RemovesDangerousContent(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name       string
		input      string
		wantAbsent []string
	}{
		{name: "scriptタグ", input: `<p>ok</p><script>alert('x')</script>`, wantAbsent: []string{"<script", "alert"}},
		{name: "iframeタグ", input: `<iframe src="https://evil.example"></iframe>`, wantAbsent: []string{"<iframe", "evil.example"}},
		{name: "onイベント属性", input: `<p onclick="steal()">x</p>`, wantAbsent: []string{"onclick", "steal"}},
		{name: "javascriptスキーム", input: `<a href="javascript:alert(1)">x</a>`, wantAbsent: []string{"javascript:"}},
		{name: "httpリンクは除去", input: `<a href="http://example.com">x</a>`, wantAbsent: []string{"http://example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Rich(tt.input)
			for _, absent := range tt.wantAbsent {
				if strings.Contains(got, absent) {
					t.Errorf("Rich(%q) = %q, should not contain %q", tt.input, got, absent)
				}
			}
		})
	}
}

func TestRich_HTTPSLinkGetsNoReferrer(t *testing.T) {
	s := NewSanitizer()

	got := s.Rich(`<a href="https://go.dev">Go</a>`)
	for _, want := range []string{`href="https://go.dev"`, `target="_blank"`, "noreferrer"} {
		if !strings.Contains(got, want) {
			t.Errorf("Rich() = %q, expected to contain %q", got, want)
		}
	}
}

func TestPlainAll_DropsEmpty(t *testing.T) {
	got := PlainAll(NewSanitizer(), []string{" go ", "<b></b>", "web"})
	if len(got) != 2 || got[0] != "go" || got[1] != "web" {
		t.Errorf("PlainAll() = %v, want [go web]", got)
	}
}
