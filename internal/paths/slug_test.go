package paths

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeSlug(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "simple lowercase", input: "demo", want: "demo"},
		{name: "uppercase to lowercase", input: "Demo", want: "demo"},
		{name: "spaces to hyphens", input: "Demo App", want: "demo-app"},
		{name: "underscores to hyphens", input: "demo_app", want: "demo-app"},
		{name: "runs collapse", input: "demo   _-app", want: "demo-app"},
		{name: "removes invalid characters", input: "demo@app!", want: "demoapp"},
		{name: "trims hyphens", input: "-demo-", want: "demo"},
		{name: "starts with number", input: "2fa portal", want: "2fa-portal"},

		{name: "empty string", input: "", wantErr: true},
		{name: "blank", input: "   ", wantErr: true},
		{name: "only special characters", input: "@@@", wantErr: true},
		{name: "only hyphens", input: "---", wantErr: true},
		{name: "too long", input: strings.Repeat("a", 65), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeSlug(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NormalizeSlug(%q) expected error, got %q", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeSlug(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeSlug(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeSlug_Idempotent(t *testing.T) {
	for _, input := range []string{"Demo App", "demo_app", "mix123-ABC", "a  b  c"} {
		once, err := NormalizeSlug(input)
		if err != nil {
			t.Fatalf("NormalizeSlug(%q): %v", input, err)
		}
		twice, err := NormalizeSlug(once)
		if err != nil {
			t.Fatalf("NormalizeSlug(%q): %v", once, err)
		}
		if once != twice {
			t.Errorf("not idempotent: %q -> %q -> %q", input, once, twice)
		}
	}
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"a/b/c", []string{"a", "b", "c"}},
		{"/a/b/c/", []string{"a", "b", "c"}},
		{"a//c", []string{"a", "c"}},
		{"", nil},
		{"///", nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, SplitPath(tt.input)); diff != "" {
			t.Errorf("SplitPath(%q) mismatch (-want +got):\n%s", tt.input, diff)
		}
	}
}
