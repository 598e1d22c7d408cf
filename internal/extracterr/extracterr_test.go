package extracterr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-extractor/internal/llm"
	"github.com/dvloznov/statement-extractor/internal/parsers"
	"github.com/dvloznov/statement-extractor/internal/pdftext"
	"github.com/dvloznov/statement-extractor/internal/sanitize"
	"github.com/dvloznov/statement-extractor/internal/validate"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		stage Stage
		want  Kind
	}{
		{name: "unreadable pdf", err: fmt.Errorf("ExtractPages: %w", pdftext.ErrUnreadable), stage: StageExtract, want: KindInvalidPDF},
		{name: "llm timeout", err: fmt.Errorf("Extract: chunk 1/2: %w", llm.ErrTimeout), stage: StageGenerative, want: KindLLMTimeout},
		{name: "deadline", err: context.DeadlineExceeded, stage: StageGenerative, want: KindLLMTimeout},
		{name: "connection", err: llm.ErrConnection, stage: StageGenerative, want: KindLLMConnection},
		{name: "service error", err: llm.ErrUnavailable, stage: StageGenerative, want: KindLLMUnavailable},
		{name: "disabled", err: llm.ErrDisabled, stage: StagePattern, want: KindLLMUnavailable},
		{name: "empty model output", err: llm.ErrEmptyResponse, stage: StageGenerative, want: KindJSONParsing},
		{name: "no json", err: sanitize.ErrNoJSON, stage: StageSanitize, want: KindJSONParsing},
		{name: "validator empty", err: validate.ErrNoTransactions, stage: StageValidate, want: KindNoTransactions},
		{name: "parser empty", err: parsers.ErrNoTransactions, stage: StagePattern, want: KindNoTransactions},
		{name: "invalid record", err: validate.ErrInvalidRecord, stage: StageValidate, want: KindValidationFailed},
		{name: "reconciliation", err: parsers.ErrReconciliation, stage: StagePattern, want: KindValidationFailed},
		{name: "unknown in extract", err: errors.New("eof"), stage: StageExtract, want: KindInvalidPDF},
		{name: "unknown in generative", err: errors.New("weird"), stage: StageGenerative, want: KindLLMUnavailable},
		{name: "unknown in validate", err: errors.New("weird"), stage: StageValidate, want: KindValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err, tt.stage, "HDFC Bank")
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, tt.stage, got.Stage)
			assert.ErrorIs(t, got, tt.err)
			assert.NotEmpty(t, got.UserMessage)
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	assert.Nil(t, Classify(nil, StageValidate, ""))
}

func TestClassify_KeepsExisting(t *testing.T) {
	orig := New(KindLLMTimeout, StageGenerative, "Federal Bank", llm.ErrTimeout)
	wrapped := fmt.Errorf("extract: %w", orig)

	got := Classify(wrapped, StageValidate, "")
	assert.Same(t, orig, got)
}

func TestMessage(t *testing.T) {
	assert.Equal(t,
		"No transactions could be found in the Federal Bank statement. Please verify the PDF contains transaction data.",
		Message(KindNoTransactions, "Federal Bank"))
	assert.Equal(t,
		"Processing the uploaded statement took too long. The PDF may be too large or complex.",
		Message(KindLLMTimeout, ""))

	for _, kind := range Kinds {
		msg := Message(kind, "HDFC Bank")
		assert.False(t, strings.Contains(msg, "unexpected"), "kind %s has no template", kind)
	}
}

func TestError_Error(t *testing.T) {
	e := New(KindJSONParsing, StageSanitize, "", sanitize.ErrNoJSON)
	assert.Equal(t, "json_parsing_error at sanitize stage: "+sanitize.ErrNoJSON.Error(), e.Error())
	assert.ErrorIs(t, e, sanitize.ErrNoJSON)
}
