package directory

import "testing"

func TestRemoveDiacritics(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Honza", "Honza"},
		{"Jiří", "Jiri"},
		{"café", "cafe"},
		{"Žluťoučký kůň", "Zlutoucky kun"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := RemoveDiacritics(tt.input)
			if result != tt.expected {
				t.Errorf("RemoveDiacritics(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		kind     IdentityKind
		input    string
		expected string
	}{
		{IdentityEmail, "Jane.Doe@Example.com", "jane.doe@example.com"},
		{IdentityEmail, "  jane@example.com ", "jane@example.com"},
		{IdentityName, "Jan Novák", "jan novak"},
		{IdentityName, "jan-novak", "jan novak"},
		{IdentityName, "  JAN   NOVÁK ", "jan novak"},
		{IdentityName, "", ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+tt.input, func(t *testing.T) {
			result := NormalizeKey(tt.kind, tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeKey(%s, %q) = %q, want %q", tt.kind, tt.input, result, tt.expected)
			}
		})
	}
}

func TestSameIdentity(t *testing.T) {
	if !SameIdentity(IdentityEmail, "A@x.io", "a@x.io") {
		t.Error("emails should match case-insensitively")
	}
	if SameIdentity(IdentityEmail, "", "") {
		t.Error("empty keys never match")
	}
	if !SameIdentity(IdentityName, "Jiří Dvořák", "jiri dvorak") {
		t.Error("names should match without diacritics")
	}
}

func TestParseIdentityKind(t *testing.T) {
	if k, err := ParseIdentityKind("name"); err != nil || k != IdentityName {
		t.Errorf("ParseIdentityKind(name) = %q, %v", k, err)
	}
	if _, err := ParseIdentityKind("phone"); err == nil {
		t.Error("expected error for unknown kind")
	}
}
