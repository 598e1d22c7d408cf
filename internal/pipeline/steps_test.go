package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-extractor/internal/categories"
	"github.com/dvloznov/statement-extractor/internal/detect"
	"github.com/dvloznov/statement-extractor/internal/domain"
	"github.com/dvloznov/statement-extractor/internal/extracterr"
	"github.com/dvloznov/statement-extractor/internal/normalize"
	"github.com/dvloznov/statement-extractor/internal/validate"
)

type recordingStep struct {
	stage extracterr.Stage
	err   error
	ran   *[]extracterr.Stage
}

func (s *recordingStep) Stage() extracterr.Stage { return s.stage }

func (s *recordingStep) Execute(ctx context.Context, state *PipelineState) error {
	*s.ran = append(*s.ran, s.stage)
	return s.err
}

func TestPipeline_StopsAtFirstFailure(t *testing.T) {
	var ran []extracterr.Stage
	boom := errors.New("boom")
	p := NewPipeline(nil,
		&recordingStep{stage: extracterr.StageExtract, ran: &ran},
		&recordingStep{stage: extracterr.StageDetect, err: boom, ran: &ran},
		&recordingStep{stage: extracterr.StagePattern, ran: &ran},
	)

	err := p.Execute(quietContext(), &PipelineState{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "pipeline step 2 failed")
	assert.Equal(t, []extracterr.Stage{extracterr.StageExtract, extracterr.StageDetect}, ran)
}

func TestPipeline_CancelledContext(t *testing.T) {
	var ran []extracterr.Stage
	p := NewPipeline(nil, &recordingStep{stage: extracterr.StageExtract, ran: &ran})

	ctx, cancel := context.WithCancel(quietContext())
	cancel()

	err := p.Execute(ctx, &PipelineState{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ran)
}

func TestPatternParseStep_FallbackReasons(t *testing.T) {
	tests := []struct {
		name    string
		profile domain.StatementProfile
		page    string
		want    string
	}{
		{
			name:    "parsed",
			profile: domain.StatementProfile{Bank: domain.BankFederal, AccountType: domain.AccountSavings},
			page:    federalStatement,
			want:    "",
		},
		{
			name:    "unknown bank",
			profile: domain.UnknownProfile(),
			page:    federalStatement,
			want:    FallbackUnknownBank,
		},
		{
			name:    "unsupported profile",
			profile: domain.StatementProfile{Bank: domain.BankFederal, AccountType: domain.AccountCreditCard},
			page:    federalStatement,
			want:    FallbackUnsupported,
		},
		{
			name:    "no rows",
			profile: domain.StatementProfile{Bank: domain.BankFederal, AccountType: domain.AccountSavings},
			page:    federalNoRows,
			want:    FallbackNoTransactions,
		},
		{
			name:    "totals disagree",
			profile: domain.StatementProfile{Bank: domain.BankFederal, AccountType: domain.AccountSavings},
			page:    strings.Replace(federalStatement, "Total Credits 60,000.00", "Total Credits 61,000.00", 1),
			want:    FallbackReconciliation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &PipelineState{Profile: tt.profile, Pages: []string{tt.page}}
			require.NoError(t, (&PatternParseStep{}).Execute(quietContext(), state))
			assert.Equal(t, tt.want, state.FallbackReason)
			if tt.want == "" {
				assert.Len(t, state.Candidates, 3)
			} else {
				assert.Empty(t, state.Candidates)
			}
		})
	}
}

func TestGenerativeStep_SkippedWithoutFallback(t *testing.T) {
	model := &MockLLM{}
	state := &PipelineState{}
	require.NoError(t, (&GenerativeStep{LLM: model, Enabled: true}).Execute(quietContext(), state))
	assert.Empty(t, model.Extracts())
	require.NoError(t, (&SanitizeStep{}).Execute(quietContext(), state))
	assert.Nil(t, state.Records)
}

func TestDetectBankStep_DetectionBeatsHint(t *testing.T) {
	state := &PipelineState{Pages: []string{federalStatement}, BankHint: "HDFC credit card"}
	step := &DetectBankStep{Detector: detect.NewDefaultDetector()}
	require.NoError(t, step.Execute(quietContext(), state))
	assert.Equal(t, domain.BankFederal, state.Profile.Bank)
	assert.False(t, state.Profile.Hinted)
}

func TestPipelineState_Names(t *testing.T) {
	state := &PipelineState{BankHint: "  Canara  ", AccountTypeHint: "Current"}
	assert.Equal(t, "Canara", state.BankName())
	assert.Equal(t, "Current", state.AccountTypeName())

	state.Profile = domain.StatementProfile{Bank: domain.BankHDFC, AccountType: domain.AccountCreditCard}
	assert.Equal(t, "HDFC Bank", state.BankName())
	assert.Equal(t, "Credit Card", state.AccountTypeName())
}

func TestDetectBankStep_SetsPeriod(t *testing.T) {
	state := &PipelineState{Pages: []string{federalStatement}}
	step := &DetectBankStep{Detector: detect.NewDefaultDetector()}
	require.NoError(t, step.Execute(quietContext(), state))
	assert.Equal(t, day(2024, 4, 1), state.Period.Start)
	assert.Equal(t, day(2024, 4, 30), state.Period.End)
}

func TestValidateStep_YearlessModelDates(t *testing.T) {
	state := &PipelineState{
		FallbackReason: FallbackUnknownBank,
		Period:         normalize.Period{Start: day(2024, 4, 1), End: day(2024, 4, 30)},
		Records: []domain.RawRecord{
			{"date": "01 Apr", "description": "UPI/DR/1/TEA", "amount": "20.00", "type": "debit"},
			{"date": "05 Apr", "description": "NEFT/CR/SALARY", "amount": "900.00", "type": "credit"},
		},
	}
	step := &ValidateStep{Validator: validate.New(nil)}
	require.NoError(t, step.Execute(quietContext(), state))
	require.Len(t, state.Candidates, 2)
	assert.Empty(t, state.Rejected)
	assert.Equal(t, day(2024, 4, 1), state.Candidates[0].Date)
	assert.Equal(t, day(2024, 4, 5), state.Candidates[1].Date)
}

func TestCategorizeStep_FallbackFollowsDirection(t *testing.T) {
	tests := []struct {
		name   string
		dir    domain.Direction
		answer string
		err    error
		want   string
	}{
		{name: "debit answered", dir: domain.DirectionDebit, answer: "Food", want: "Food"},
		{name: "debit failed", dir: domain.DirectionDebit, answer: "Other", err: errors.New("model unavailable"), want: categories.Other},
		{name: "debit given income", dir: domain.DirectionDebit, answer: "Paycheck", want: categories.Other},
		{name: "credit answered", dir: domain.DirectionCredit, answer: "Bonus", want: "Bonus"},
		{name: "credit failed", dir: domain.DirectionCredit, answer: "Other", err: errors.New("model unavailable"), want: categories.Uncategorized},
		{name: "credit given expense", dir: domain.DirectionCredit, answer: "Other", want: categories.Uncategorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &MockLLM{CategorizeFunc: func(context.Context, string, decimal.Decimal, []string) (string, error) {
				return tt.answer, tt.err
			}}
			state := &PipelineState{Candidates: []domain.TransactionCandidate{
				{Date: day(2024, 4, 1), Description: "MISC ENTRY", Amount: dec("10"), Direction: tt.dir, Category: categories.Uncategorized},
			}}
			step := &CategorizeStep{Categorizer: model, Categories: categories.Default(), Enabled: true}
			require.NoError(t, step.Execute(quietContext(), state))
			assert.Equal(t, tt.want, state.Candidates[0].Category)
		})
	}
}
