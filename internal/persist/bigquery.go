package persist

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/dvloznov/statement-extractor/internal/domain"
)

const (
	DefaultDataset    = "finance"
	transactionsTable = "statement_transactions"
	currencyINR       = "INR"
)

// TransactionRow is one row of the statement_transactions table.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	UploadID      string `bigquery:"upload_id"`      // REQUIRED

	Bank        string              `bigquery:"bank"`         // REQUIRED
	AccountType string              `bigquery:"account_type"` // REQUIRED
	AccountName bigquery.NullString `bigquery:"account_name"` // NULLABLE

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED

	Amount       *big.Rat `bigquery:"amount"`        // REQUIRED NUMERIC
	Currency     string   `bigquery:"currency"`      // REQUIRED
	BalanceAfter *big.Rat `bigquery:"balance_after"` // NULLABLE NUMERIC

	Direction   string              `bigquery:"direction"`   // REQUIRED
	Description string              `bigquery:"description"` // REQUIRED
	Category    bigquery.NullString `bigquery:"category"`    // NULLABLE
	Source      string              `bigquery:"source"`      // REQUIRED

	LineNo    int64     `bigquery:"line_no"`    // REQUIRED, order within the upload
	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

// NewTransactionRows converts a handoff into rows, one per candidate, in
// candidate order.
func NewTransactionRows(h Handoff) []*TransactionRow {
	created := h.ConfirmedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	rows := make([]*TransactionRow, 0, len(h.Candidates))
	for i, c := range h.Candidates {
		r := &TransactionRow{
			TransactionID:   uuid.New().String(),
			UploadID:        h.UploadID,
			Bank:            string(h.Profile.Bank),
			AccountType:     string(h.Profile.AccountType),
			AccountName:     nullString(h.AccountName),
			TransactionDate: c.Date,
			Amount:          decimalToRat(c.Amount),
			Currency:        currencyINR,
			Direction:       string(c.Direction),
			Description:     c.Description,
			Category:        nullString(c.Category),
			Source:          string(c.Source),
			LineNo:          int64(i + 1),
			CreatedTS:       created,
		}
		if c.Balance.Valid {
			r.BalanceAfter = decimalToRat(c.Balance.Decimal)
		}
		rows = append(rows, r)
	}
	return rows
}

// Candidate converts a stored row back into a candidate.
func (r *TransactionRow) Candidate() (domain.TransactionCandidate, error) {
	amount, err := ratToDecimal(r.Amount)
	if err != nil {
		return domain.TransactionCandidate{}, fmt.Errorf("Candidate: amount: %w", err)
	}
	c := domain.TransactionCandidate{
		Date:        r.TransactionDate,
		Description: r.Description,
		Amount:      amount,
		Direction:   domain.Direction(r.Direction),
		Source:      domain.SourceStage(r.Source),
		Category:    r.Category.StringVal,
	}
	if r.BalanceAfter != nil {
		bal, err := ratToDecimal(r.BalanceAfter)
		if err != nil {
			return domain.TransactionCandidate{}, fmt.Errorf("Candidate: balance: %w", err)
		}
		c.Balance = decimal.NewNullDecimal(bal)
	}
	return c, nil
}

// BigQuerySink inserts confirmed transactions into BigQuery.
type BigQuerySink struct {
	client  *bigquery.Client
	project string
	dataset string
}

// Ensure BigQuerySink implements Sink.
var _ Sink = (*BigQuerySink)(nil)

// NewBigQuerySink creates a sink writing to project.dataset.
func NewBigQuerySink(ctx context.Context, project, dataset string, opts ...option.ClientOption) (*BigQuerySink, error) {
	if project == "" {
		return nil, fmt.Errorf("NewBigQuerySink: project is required")
	}
	if dataset == "" {
		dataset = DefaultDataset
	}
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewBigQuerySink: creating client: %w", err)
	}
	return &BigQuerySink{client: client, project: project, dataset: dataset}, nil
}

// Close closes the BigQuery client connection.
func (s *BigQuerySink) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Save implements Sink.
func (s *BigQuerySink) Save(ctx context.Context, h Handoff) error {
	rows := NewTransactionRows(h)
	if len(rows) == 0 {
		return nil
	}

	table := s.client.DatasetInProject(s.project, s.dataset).Table(transactionsTable)
	if err := table.Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("BigQuerySink.Save: inserting %d rows: %w", len(rows), err)
	}
	return nil
}

// ListByUpload reads back the rows saved for one upload in line order.
func (s *BigQuerySink) ListByUpload(ctx context.Context, uploadID string) ([]*TransactionRow, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT
			transaction_id,
			upload_id,
			bank,
			account_type,
			account_name,
			transaction_date,
			amount,
			currency,
			balance_after,
			direction,
			description,
			category,
			source,
			line_no,
			created_ts
		FROM `+"`%s.%s.%s`"+`
		WHERE upload_id = @upload_id
		ORDER BY line_no
	`, s.project, s.dataset, transactionsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "upload_id", Value: uploadID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListByUpload: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListByUpload: iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func decimalToRat(d decimal.Decimal) *big.Rat {
	r, ok := new(big.Rat).SetString(d.String())
	if !ok {
		return new(big.Rat)
	}
	return r
}

func ratToDecimal(r *big.Rat) (decimal.Decimal, error) {
	if r == nil {
		return decimal.Zero, fmt.Errorf("missing value")
	}
	return decimal.NewFromString(r.FloatString(2))
}
