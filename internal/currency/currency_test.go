package currency

import "testing"

func TestInferPriority(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		taxCodes []string
		want     string
	}{
		{"eur beats later dollar", "Total 12,50 EUR paid with $ card", nil, "EUR"},
		{"gbp", "TOTAL GBP 8.00", nil, "GBP"},
		{"dollar symbol only", "Total $9.99", nil, "USD"},
		{"usd code", "Amount USD 4.00", nil, "USD"},
		{"tax fallback", "Total 12.50", []string{"SEK", "NOK"}, "SEK"},
		{"nothing", "Total 12.50", nil, Unknown},
		{"empty tax code ignored", "Total 12.50", []string{""}, Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Infer(tt.content, tt.taxCodes); got != tt.want {
				t.Fatalf("Infer(%q, %v) = %q, want %q", tt.content, tt.taxCodes, got, tt.want)
			}
		})
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{3.456, 3.46},
		{2.344, 2.34},
		{0.125, 0.13}, // half rounds away from zero
		{-0.125, -0.13},
		{10, 10},
	}
	for _, tt := range tests {
		if got := Round2(tt.in); got != tt.want {
			t.Errorf("Round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFromPhone(t *testing.T) {
	tests := []struct {
		waID string
		want string
	}{
		{"4915112345678", "EUR"},
		{"447911123456", "GBP"},
		{"14155551234", "USD"},
		{"353861234567", "EUR"},
		{"998901234567", "EUR"}, // unmapped defaults
		{"", "EUR"},
	}
	for _, tt := range tests {
		if got := FromPhone(tt.waID); got != tt.want {
			t.Errorf("FromPhone(%q) = %q, want %q", tt.waID, got, tt.want)
		}
	}
}
