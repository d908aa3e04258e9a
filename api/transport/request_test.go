package transport

import (
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestCreatePollRequestStreamIDOptional(t *testing.T) {
	validate := validator.New()
	req := CreatePollRequest{
		Question:        "favorite feather?",
		Options:         []string{"red", "blue"},
		DurationSeconds: 60,
	}

	// Callers on the path-parameter route omit stream_id from the body.
	if err := validate.Struct(req); err != nil {
		t.Fatalf("body without stream_id rejected: %v", err)
	}

	req.StreamID = "not-a-uuid"
	if err := validate.Struct(req); err == nil {
		t.Fatal("malformed stream_id passed validation")
	}

	req.StreamID = "0b8f8e1e-7a32-4a8e-9a5c-2f6d3b1c9e44"
	if err := validate.Struct(req); err != nil {
		t.Fatalf("well-formed stream_id rejected: %v", err)
	}
}
