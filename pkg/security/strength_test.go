package security

import "testing"

func TestPINStrength_String(t *testing.T) {
	tests := []struct {
		strength PINStrength
		want     string
	}{
		{PINWeak, "Weak"},
		{PINFair, "Fair"},
		{PINGood, "Good"},
		{PINStrength(99), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.strength.String(); got != tt.want {
			t.Errorf("PINStrength(%d).String() = %q, want %q", tt.strength, got, tt.want)
		}
	}
}

func TestCheckPIN(t *testing.T) {
	tests := []struct {
		name string
		pin  string
		want PINStrength
	}{
		{"common", "1234", PINWeak},
		{"common 6", "123456", PINWeak},
		{"repeated digit", "88888", PINWeak},
		{"ascending", "3456", PINWeak},
		{"descending", "98765", PINWeak},
		{"repeated pair", "4545", PINWeak},
		{"repeated triple", "472472", PINWeak},
		{"year", "1987", PINWeak},
		{"plain 4", "3814", PINFair},
		{"plain 5", "38140", PINFair},
		{"plain 6", "381407", PINGood},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := CheckPIN(tt.pin)
			if r.Strength != tt.want {
				t.Errorf("CheckPIN(%q).Strength = %v, want %v (warnings %v)", tt.pin, r.Strength, tt.want, r.Warnings)
			}
			if tt.want != PINGood && len(r.Warnings) == 0 {
				t.Errorf("CheckPIN(%q) should explain its rating", tt.pin)
			}
			if tt.want == PINGood && len(r.Warnings) != 0 {
				t.Errorf("CheckPIN(%q) warnings = %v, want none", tt.pin, r.Warnings)
			}
		})
	}
}
