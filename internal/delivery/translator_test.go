package delivery

import (
	"testing"

	"github.com/vietddude/courier/internal/core/domain"
)

func TestTranslateNeedsAttention(t *testing.T) {
	tests := []struct {
		category       domain.ErrorCategory
		needsAttention bool
	}{
		{domain.CategoryTransient, false},
		{domain.CategoryNetwork, false},
		{domain.CategoryTimeout, false},
		{domain.CategoryRateLimit, false},
		{domain.CategoryAuthentication, true},
		{domain.CategoryConfiguration, true},
		{domain.CategoryPermanent, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			got := Translate(tt.category)
			if got.NeedsAttention != tt.needsAttention {
				t.Errorf("NeedsAttention = %v, want %v", got.NeedsAttention, tt.needsAttention)
			}
			if got.UserMessage == "" || got.OperatorMessage == "" {
				t.Error("translation has empty messages")
			}
		})
	}
}

func TestTranslateUnknownCategory(t *testing.T) {
	got := Translate(domain.ErrorCategory("mystery"))
	if got != translations[domain.CategoryTransient] {
		t.Errorf("Translate(unknown) = %+v, want transient fallback", got)
	}
}
