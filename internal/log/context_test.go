// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestContextIDs(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		set  func(context.Context, string) context.Context
		get  func(context.Context) string
	}{
		{"camera nil ctx", nil, ContextWithCameraID, CameraIDFromContext},
		{"camera", context.Background(), ContextWithCameraID, CameraIDFromContext},
		{"recording", context.Background(), ContextWithRecordingID, RecordingIDFromContext},
		{"correlation", context.Background(), ContextWithCorrelationID, CorrelationIDFromContext},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := tt.set(tt.ctx, "id-123")
			assert.Equal(t, "id-123", tt.get(ctx))
		})
	}
	assert.Empty(t, CameraIDFromContext(context.Background()))
}

func TestWithContext_AddsFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := ContextWithCameraID(context.Background(), "cam-1")
	ctx = ContextWithRecordingID(ctx, "rec-9")
	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx = trace.ContextWithSpanContext(ctx, sc)

	l := WithContext(ctx, base)
	l.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "cam-1", entry[FieldCameraID])
	assert.Equal(t, "rec-9", entry[FieldRecordingID])
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", entry[FieldTraceID])
}

func TestWithContext_NoFieldsReturnsSameLogger(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	l := WithContext(context.Background(), base)
	l.Info().Msg("plain")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, hasCamera := entry[FieldCameraID]
	assert.False(t, hasCamera)
}
