package grading

import "testing"

func TestExtractScores(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected int
		want     []any // float64 or nil
	}{
		{"plain array", "[85, 90]", 2, []any{85.0, 90.0}},
		{"prose prefix", "Вот оценки: [70, 80, 90]. Готово.", 3, []any{70.0, 80.0, 90.0}},
		{"clamping", "[150, -5]", 2, []any{100.0, 0.0}},
		{"decimals", "[72.5,10]", 2, []any{72.5, 10.0}},
		{"fewer than expected", "[50]", 3, []any{50.0, nil, nil}},
		{"more than expected", "[10, 20, 30]", 2, []any{10.0, 20.0}},
		{"first array wins", "[1, 2] and [3, 4]", 2, []any{1.0, 2.0}},
		{"invalid json", "[1,,2]", 2, nil},
		{"no array", "I cannot grade this", 2, nil},
		{"empty array", "[]", 2, nil},
		{"empty text", "", 1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractScores(tt.text, tt.expected)
			if tt.want == nil {
				if len(got) != 0 {
					t.Fatalf("ExtractScores(%q) = %v, want empty", tt.text, got)
				}
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ExtractScores(%q) len = %d, want %d", tt.text, len(got), len(tt.want))
			}
			for i, w := range tt.want {
				if w == nil {
					if got[i] != nil {
						t.Errorf("score[%d] = %v, want nil", i, *got[i])
					}
					continue
				}
				if got[i] == nil || *got[i] != w.(float64) {
					t.Errorf("score[%d] = %v, want %v", i, got[i], w)
				}
			}
		})
	}
}

func TestExtractScores_Range(t *testing.T) {
	for _, s := range ExtractScores("[-100, 0, 55.5, 100, 1000]", 5) {
		if s == nil {
			continue
		}
		if *s < 0 || *s > 100 {
			t.Errorf("score %v outside [0, 100]", *s)
		}
	}
}
