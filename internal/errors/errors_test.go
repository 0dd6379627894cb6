package errors

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
}

func TestBuildInheritsWrappedCategory(t *testing.T) {
	t.Parallel()

	inner := DecodeError(NewStd("bad base64")).Build()
	outer := New(fmt.Errorf("decode request: %w", inner)).Build()

	assert.Equal(t, CategoryImageDecode, outer.Category)
	assert.True(t, IsCategory(outer, CategoryImageDecode))
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain error", NewStd("boom"), KindInternal},
		{"validation", ValidationError("Missing 'image' in request"), KindValidation},
		{"decode", DecodeError(NewStd("x")).Build(), KindDecode},
		{"shape", ShapeError(NewStd("x")).Build(), KindShape},
		{"inference", InferenceError(NewStd("x")).Build(), KindInference},
		{"deadline", New(context.DeadlineExceeded).Category(CategoryTimeout).Build(), KindInference},
		{"startup", StartupError(NewStd("x")).Build(), KindStartup},
		{"label load", New(NewStd("x")).Category(CategoryLabelLoad).Build(), KindStartup},
		{"state", New(NewStd("x")).Category(CategoryState).Build(), KindInternal},
		{"wrapped", fmt.Errorf("ctx: %w", ShapeError(NewStd("x")).Build()), KindShape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestPublicMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ValidationError: Missing 'image' in request",
		PublicMessage(ValidationError("Missing 'image' in request")))
	assert.Equal(t, "DecodeError: invalid base64 payload",
		PublicMessage(DecodeError(NewStd("invalid base64 payload")).Build()))

	// internal details never leak
	msg := PublicMessage(New(NewStd("open /srv/models/x.tflite: no such file")).Category(CategoryState).Build())
	assert.Equal(t, "InternalError: internal server error", msg)
	assert.Empty(t, PublicMessage(nil))
}

func TestStartupErrorIsCritical(t *testing.T) {
	t.Parallel()

	ee := StartupError(NewStd("label count mismatch")).Context("slot", "health").Build()
	assert.Equal(t, PriorityCritical, ee.Priority)
	assert.Equal(t, "health", ee.GetContext()["slot"])
}

func TestContextIsCopied(t *testing.T) {
	t.Parallel()

	ee := New(NewStd("x")).Context("k", "v").Build()
	ctx := ee.GetContext()
	ctx["k"] = "changed"
	assert.Equal(t, "v", ee.GetContext()["k"])
}

func TestInvalidPriorityFallsBackToMedium(t *testing.T) {
	t.Parallel()

	ee := New(NewStd("x")).Priority("urgent").Build()
	assert.Equal(t, PriorityMedium, ee.Priority)
}

func TestRegexPrecompilation(t *testing.T) {
	t.Parallel()

	scrubbed := basicURLScrub("Error at https://api.example.com?api_key=secret123&token=abc")
	assert.Equal(t, "Error at https://api.example.com?[REDACTED]", scrubbed)

	scrubbed = basicURLScrub("Config error: api_key=secret123 is invalid")
	assert.Contains(t, scrubbed, "[API_KEY_REDACTED]")

	scrubbed = basicURLScrub("Auth failed with token=abc123 and auth=xyz789")
	assert.False(t, strings.Contains(scrubbed, "abc123") || strings.Contains(scrubbed, "xyz789"), scrubbed)
}

type recordingReporter struct {
	reported []*EnhancedError
}

func (r *recordingReporter) ReportError(ee *EnhancedError) { r.reported = append(r.reported, ee) }
func (r *recordingReporter) IsEnabled() bool               { return true }

func TestReporterReceivesBuiltErrors(t *testing.T) {
	rec := &recordingReporter{}
	SetTelemetryReporter(rec)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := InferenceError(NewStd("invoke failed")).Component("classifier").Build()

	require.Len(t, rec.reported, 1)
	assert.Same(t, ee, rec.reported[0])
	assert.Equal(t, "classifier", ee.GetComponent())
}

func TestModelContextRecordsFormatNotPath(t *testing.T) {
	t.Parallel()

	ee := New(NewStd("load failed")).
		Category(CategoryModelLoad).
		ModelContext("species", "/srv/leafnet/models/Species_Model.TFLITE").
		Build()

	ctx := ee.GetContext()
	assert.Equal(t, "species", ctx["slot"])
	assert.Equal(t, ".tflite", ctx["model_format"])
	for k, v := range ctx {
		s, ok := v.(string)
		if ok {
			assert.NotContains(t, s, "/srv/leafnet", "context %q leaks the model path", k)
		}
	}

	noExt := New(NewStd("load failed")).ModelContext("health", "models/leaf").Build()
	assert.Equal(t, "none", noExt.GetContext()["model_format"])

	noPath := New(NewStd("load failed")).ModelContext("health", "").Build()
	assert.NotContains(t, noPath.GetContext(), "model_format")
}
