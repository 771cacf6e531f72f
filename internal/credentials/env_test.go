package credentials

import "testing"

func TestResolveEnvReference(t *testing.T) {
	t.Setenv("USAGEBAR_TEST_KEY", "secret-from-env")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "literal", input: "plain-key-1234", want: "plain-key-1234"},
		{name: "braces", input: "{env:USAGEBAR_TEST_KEY}", want: "secret-from-env"},
		{name: "braces upper prefix", input: "{ENV:USAGEBAR_TEST_KEY}", want: "secret-from-env"},
		{name: "dollar", input: "$env:USAGEBAR_TEST_KEY", want: "secret-from-env"},
		{name: "dollar mixed case", input: "$Env:USAGEBAR_TEST_KEY", want: "secret-from-env"},
		{name: "missing var", input: "{env:USAGEBAR_TEST_MISSING}", wantErr: true},
		{name: "unterminated braces is literal", input: "{env:USAGEBAR_TEST_KEY", want: "{env:USAGEBAR_TEST_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveEnvReference(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ResolveEnvReference(%q) error = nil, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveEnvReference(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ResolveEnvReference(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsEnvReference(t *testing.T) {
	if !IsEnvReference("{env:X}") || !IsEnvReference("$ENV:X") {
		t.Error("expected env references to be detected")
	}
	if IsEnvReference("sk-abc") {
		t.Error("plain key detected as env reference")
	}
}
