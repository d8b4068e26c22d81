package errors_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	. "contestoj/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{CompetitorNotFound, "Competitor not found"},
		{InvalidApprovalStatus, "Invalid judge approval status"},
		{DatabaseError, "Database operation failed"},
		{ErrorCode(99999), "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorCode_Retryable(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want bool
	}{
		{JudgeQueueFull, true},
		{DocumentConflict, true},
		{CacheError, true},
		{InvalidParams, false},
		{CompetitorNotFound, false},
		{EmptySubmission, false},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.Retryable(); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	err := New(CompetitorNotFound)

	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if err.Code != CompetitorNotFound {
		t.Errorf("Code = %v, want %v", err.Code, CompetitorNotFound)
	}
	if err.Error() != CompetitorNotFound.Message() {
		t.Errorf("Error() = %v, want %v", err.Error(), CompetitorNotFound.Message())
	}
	if err.Stack == "" {
		t.Error("expected stack to be captured")
	}
}

func TestNewf(t *testing.T) {
	err := Newf(ProblemNotFound, "problem %d not found", 7)

	want := "problem 7 not found"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("connection refused")
	err := Wrap(originalErr, CacheError)

	if err.Code != CacheError {
		t.Errorf("Code = %v, want %v", err.Code, CacheError)
	}
	if !errors.Is(err, originalErr) {
		t.Error("wrapped error should unwrap to the original")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Error() = %q, want it to mention the cause", err.Error())
	}
}

func TestWrap_Nil(t *testing.T) {
	if err := Wrap(nil, CacheError); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
	if err := Wrapf(nil, CacheError, "ignored"); err != nil {
		t.Errorf("Wrapf(nil) = %v, want nil", err)
	}
}

func TestWrap_RecodesCustomError(t *testing.T) {
	inner := Newf(DocumentConflict, "too many retries")
	err := Wrap(inner, ServiceUnavailable)

	if err != inner {
		t.Fatal("expected Wrap to reuse the existing *Error")
	}
	if err.Code != ServiceUnavailable {
		t.Errorf("Code = %v, want %v", err.Code, ServiceUnavailable)
	}
	if err.Error() != "too many retries" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, Success},
		{"custom", New(EmptySubmission), EmptySubmission},
		{"std", errors.New("boom"), InternalServerError},
		{"fmt wrapped", fmt.Errorf("outer: %w", New(LockFailed)), LockFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := Wrapf(New(DocumentCorrupt), DatabaseError, "load state")

	if !Is(err, DatabaseError) {
		t.Error("Is(DatabaseError) should be true")
	}
	if !Is(err, DocumentCorrupt) {
		t.Error("Is should find codes deeper in the chain")
	}
	if Is(err, NotFound) {
		t.Error("Is(NotFound) should be false")
	}
	if Is(nil, DatabaseError) {
		t.Error("Is(nil) should be false")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(New(JudgeQueueFull)) {
		t.Error("queue full should be retryable")
	}
	if IsRetryable(New(InvalidParams)) {
		t.Error("invalid params should not be retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
}

func TestWithDetail(t *testing.T) {
	err := New(ProblemNotFound).
		WithDetail("problem_id", 3).
		WithDetail("competitor", "alice")

	if err.Details["problem_id"] != 3 {
		t.Errorf("problem_id detail = %v", err.Details["problem_id"])
	}
	if err.Details["competitor"] != "alice" {
		t.Errorf("competitor detail = %v", err.Details["competitor"])
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError("title", "required")

	if err.Code != ValidationFailed {
		t.Errorf("Code = %v, want %v", err.Code, ValidationFailed)
	}
	if err.Details["field"] != "title" || err.Details["reason"] != "required" {
		t.Errorf("unexpected details: %v", err.Details)
	}
	if err.Error() != "title: required" {
		t.Errorf("Error() = %q", err.Error())
	}
}
