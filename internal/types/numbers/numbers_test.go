package numbers

import (
	"testing"
)

func TestUiAmount(t *testing.T) {
	tests := []struct {
		raw      string
		decimals int32
		expected string
		hasError bool
	}{
		{"1500000", 6, "1.5", false},
		{"1", 6, "0.000001", false},
		{"0", 6, "0", false},
		{"1000000000000000000000000", 6, "1000000000000000000", false},
		{"not-a-number", 6, "", true},
	}

	for _, test := range tests {
		result, err := UiAmount(test.raw, test.decimals)
		if (err != nil) != test.hasError {
			t.Errorf("UiAmount(%s, %d) error = %v, wantErr %v", test.raw, test.decimals, err, test.hasError)
		}
		if result != test.expected {
			t.Errorf("UiAmount(%s, %d) = %v, want %v", test.raw, test.decimals, result, test.expected)
		}
	}
}

func TestRawAmount(t *testing.T) {
	tests := []struct {
		uiAmount string
		decimals int32
		expected string
		hasError bool
	}{
		{"1.5", 6, "1500000", false},
		{"0.0000019", 6, "1", false},
		{"100", 0, "100", false},
		{"", 6, "", true},
	}

	for _, test := range tests {
		result, err := RawAmount(test.uiAmount, test.decimals)
		if (err != nil) != test.hasError {
			t.Errorf("RawAmount(%s, %d) error = %v, wantErr %v", test.uiAmount, test.decimals, err, test.hasError)
		}
		if result != test.expected {
			t.Errorf("RawAmount(%s, %d) = %v, want %v", test.uiAmount, test.decimals, result, test.expected)
		}
	}
}

func TestSumBalances(t *testing.T) {
	total, err := SumBalances([]string{"100", "200", "9000000000000000000000"})
	if err != nil {
		t.Fatalf("SumBalances error = %v", err)
	}
	if total.String() != "9000000000000000000300" {
		t.Errorf("SumBalances = %v, want 9000000000000000000300", total)
	}

	if _, err := SumBalances([]string{"100", "bogus"}); err == nil {
		t.Errorf("SumBalances should reject non-numeric balances")
	}
}
