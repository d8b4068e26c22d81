package validate_test

import (
	"testing"

	appErr "contestoj/pkg/errors"
	"contestoj/pkg/utils/validate"
)

type item struct {
	Name string `json:"name" validate:"required"`
}

type payload struct {
	ID    int    `json:"id" validate:"gt=0"`
	Mode  string `yaml:"mode" validate:"oneof=a b"`
	Items []item `json:"items" validate:"min=1,dive"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name  string
		in    payload
		field string
	}{
		{"valid", payload{ID: 1, Mode: "a", Items: []item{{Name: "x"}}}, ""},
		{"id", payload{ID: 0, Mode: "a", Items: []item{{Name: "x"}}}, "id"},
		{"yaml tag", payload{ID: 1, Mode: "c", Items: []item{{Name: "x"}}}, "mode"},
		{"empty list", payload{ID: 1, Mode: "b"}, "items"},
		{"nested", payload{ID: 1, Mode: "b", Items: []item{{}}}, "items[0].name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.in)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !appErr.Is(err, appErr.ValidationFailed) {
				t.Fatalf("expected ValidationFailed, got %v", err)
			}
			if got := appErr.GetError(err).Details["field"]; got != tt.field {
				t.Fatalf("field = %v, want %s", got, tt.field)
			}
		})
	}
}
