package auth

import "testing"

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid", "Str0ng!Pass", false},
		{"too short", "Sh0rt!", true},
		{"no upper", "weak1!pass", true},
		{"no lower", "WEAK1!PASS", true},
		{"no digit", "NoDigits!", true},
		{"no symbol", "NoSymbol1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePassword(%q) error = %v, wantErr %v", tt.password, err, tt.wantErr)
			}
		})
	}
}
