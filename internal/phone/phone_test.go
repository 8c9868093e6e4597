package phone

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"+55 (11) 99999-0000": "5511999990000",
		"11 99999 0000":       "11999990000",
		"wa:5511999990000":    "5511999990000",
		"":                    "",
	}
	for raw, want := range cases {
		if got := Normalize(raw); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestSuffix(t *testing.T) {
	if got := Suffix("5511999990000", 4); got != "0000" {
		t.Fatalf("unexpected suffix %q", got)
	}
	if got := Suffix("123", 4); got != "123" {
		t.Fatalf("unexpected suffix %q", got)
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		incoming  string
		want      bool
	}{
		{"exact", "5511999990000", "5511999990000", true},
		{"candidate carries country code", "5511999990000", "11999990000", true},
		{"incoming carries country code", "11999990000", "5511999990000", true},
		{"different area code same tail class", "5511999990000", "5521999990000", false},
		{"short accidental overlap", "5511999990000", "990000", false},
		{"empty incoming", "5511999990000", "", false},
		{"empty candidate", "", "11999990000", false},
	}
	for _, tt := range tests {
		if got := Match(tt.candidate, tt.incoming); got != tt.want {
			t.Errorf("%s: Match(%q, %q) = %v, want %v", tt.name, tt.candidate, tt.incoming, got, tt.want)
		}
	}
}

func TestFallbackName(t *testing.T) {
	if got := FallbackName("5511999990000"); got != "WhatsApp 0000" {
		t.Fatalf("unexpected fallback name %q", got)
	}
}
