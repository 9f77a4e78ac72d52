package toolparams_test

import (
	"testing"

	"github.com/haasonsaas/lucy/internal/toolparams"
)

const recipientSchema = `{
	"type": "object",
	"required": ["recipient_email"],
	"properties": {
		"recipient_email": {"type": "string"}
	}
}`

func TestValidateNilSchemaAlwaysPasses(t *testing.T) {
	if err := toolparams.Validate(nil, map[string]any{"anything": 1}); err != nil {
		t.Errorf("expected nil schema to pass, got %v", err)
	}
}

func TestValidateAcceptsMatchingParams(t *testing.T) {
	err := toolparams.Validate([]byte(recipientSchema), map[string]any{"recipient_email": "a@b.com"})
	if err != nil {
		t.Errorf("expected valid params to pass, got %v", err)
	}
}

func TestValidateRejectsMissingRequiredField(t *testing.T) {
	err := toolparams.Validate([]byte(recipientSchema), map[string]any{"subject": "hi"})
	if err == nil {
		t.Error("expected missing required field to fail validation")
	}
}

func TestValidateRejectsWrongType(t *testing.T) {
	err := toolparams.Validate([]byte(recipientSchema), map[string]any{"recipient_email": 123})
	if err == nil {
		t.Error("expected wrong type to fail validation")
	}
}
