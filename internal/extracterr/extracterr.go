// Package extracterr classifies failures from any extraction stage into the
// closed set of error kinds shown to users.
package extracterr

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/statement-extractor/internal/llm"
	"github.com/dvloznov/statement-extractor/internal/parsers"
	"github.com/dvloznov/statement-extractor/internal/pdftext"
	"github.com/dvloznov/statement-extractor/internal/sanitize"
	"github.com/dvloznov/statement-extractor/internal/validate"
)

// Kind is an error kind from the closed taxonomy.
type Kind string

const (
	KindInvalidPDF       Kind = "invalid_pdf_content"
	KindLLMUnavailable   Kind = "llm_service_unavailable"
	KindLLMConnection    Kind = "llm_connection_error"
	KindLLMTimeout       Kind = "llm_timeout"
	KindJSONParsing      Kind = "json_parsing_error"
	KindNoTransactions   Kind = "no_transactions_found"
	KindValidationFailed Kind = "validation_failed"
)

// Kinds lists every kind in the taxonomy.
var Kinds = []Kind{
	KindInvalidPDF, KindLLMUnavailable, KindLLMConnection, KindLLMTimeout,
	KindJSONParsing, KindNoTransactions, KindValidationFailed,
}

// Stage names the pipeline stage a failure was raised in.
type Stage string

const (
	StageExtract    Stage = "extract"
	StageDetect     Stage = "detect"
	StagePattern    Stage = "pattern"
	StageGenerative Stage = "generative"
	StageSanitize   Stage = "sanitize"
	StageValidate   Stage = "validate"
	StageCategorize Stage = "categorize"
	StageConfirm    Stage = "confirm"
)

// Error is a classified extraction failure. It is never mutated after
// construction.
type Error struct {
	Kind        Kind
	Detail      string
	UserMessage string
	Stage       Stage
	Bank        string
	err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at %s stage: %s", e.Kind, e.Stage, e.Detail)
}

func (e *Error) Unwrap() error { return e.err }

// New builds an Error of the given kind. bank is the display name used in
// the user message and may be empty.
func New(kind Kind, stage Stage, bank string, cause error) *Error {
	detail := string(kind)
	if cause != nil {
		detail = cause.Error()
	}
	return &Error{
		Kind:        kind,
		Detail:      detail,
		UserMessage: Message(kind, bank),
		Stage:       stage,
		Bank:        bank,
		err:         cause,
	}
}

// Classify maps err onto the taxonomy. An err that is already an *Error is
// returned unchanged. Unrecognised errors take the default kind of the stage
// they were raised in.
func Classify(err error, stage Stage, bank string) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	return New(kindOf(err, stage), stage, bank, err)
}

func kindOf(err error, stage Stage) Kind {
	switch {
	case errors.Is(err, pdftext.ErrUnreadable):
		return KindInvalidPDF
	case errors.Is(err, llm.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindLLMTimeout
	case errors.Is(err, llm.ErrConnection):
		return KindLLMConnection
	case errors.Is(err, llm.ErrUnavailable), errors.Is(err, llm.ErrDisabled):
		return KindLLMUnavailable
	case errors.Is(err, llm.ErrEmptyResponse), errors.Is(err, sanitize.ErrNoJSON):
		return KindJSONParsing
	case errors.Is(err, validate.ErrNoTransactions), errors.Is(err, parsers.ErrNoTransactions):
		return KindNoTransactions
	case errors.Is(err, validate.ErrInvalidRecord), errors.Is(err, parsers.ErrReconciliation):
		return KindValidationFailed
	}

	switch stage {
	case StageExtract, StageDetect:
		return KindInvalidPDF
	case StageGenerative:
		return KindLLMUnavailable
	case StageSanitize:
		return KindJSONParsing
	default:
		return KindValidationFailed
	}
}

// Message returns the user-facing message for kind. An empty bank reads as
// "uploaded".
func Message(kind Kind, bank string) string {
	if bank == "" {
		bank = "uploaded"
	}
	switch kind {
	case KindInvalidPDF:
		return "The PDF file appears to be empty or corrupted. Please upload a valid bank statement."
	case KindLLMUnavailable:
		return "The AI service is currently unavailable. Please ensure the LLM service is running and try again."
	case KindLLMConnection:
		return "Cannot connect to the AI service. Please check your connection and try again."
	case KindLLMTimeout:
		return fmt.Sprintf("Processing the %s statement took too long. The PDF may be too large or complex.", bank)
	case KindJSONParsing:
		return fmt.Sprintf("The AI service had trouble understanding the %s statement format. This PDF format may not be supported.", bank)
	case KindNoTransactions:
		return fmt.Sprintf("No transactions could be found in the %s statement. Please verify the PDF contains transaction data.", bank)
	case KindValidationFailed:
		return "The extracted transaction data failed validation. The PDF may contain invalid data."
	default:
		return "An unexpected error occurred while processing the PDF."
	}
}
