package model

// TestCase is one stdin/expected-stdout pair.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"output"`
}

// Problem is immutable once loaded.
type Problem struct {
	ID           int        `json:"id" validate:"gt=0"`
	Title        string     `json:"title" validate:"required"`
	Description  string     `json:"description"`
	Level        int        `json:"level,omitempty" validate:"gte=0"`
	Difficulty   string     `json:"difficulty,omitempty"`
	InputFormat  string     `json:"input_format,omitempty"`
	OutputFormat string     `json:"output_format,omitempty"`
	TestCases    []TestCase `json:"test_cases" validate:"min=1,dive"`
}
