package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dvloznov/statement-extractor/internal/app"
	"github.com/dvloznov/statement-extractor/internal/config"
	"github.com/dvloznov/statement-extractor/internal/detect"
	"github.com/dvloznov/statement-extractor/internal/extracterr"
	"github.com/dvloznov/statement-extractor/internal/gcs"
	"github.com/dvloznov/statement-extractor/internal/logger"
	"github.com/dvloznov/statement-extractor/internal/pdftext"
	"github.com/dvloznov/statement-extractor/internal/pipeline"
)

// newRootCommand creates the root CLI command with all subcommands registered.
func newRootCommand() *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract transactions from bank statement PDFs",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level to stderr")

	newLogger := func(cmd *cobra.Command) zerolog.Logger {
		level := "warn"
		if verbose {
			level = "debug"
		}
		return logger.NewFromConfig(level, "console", cmd.ErrOrStderr())
	}

	rootCmd.AddCommand(
		newExtractCommand(newLogger),
		newDetectCommand(),
		newPagesCommand(),
	)
	return rootCmd
}

func newExtractCommand(newLogger func(*cobra.Command) zerolog.Logger) *cobra.Command {
	var (
		bank        string
		accountType string
		accountName string
		confirm     bool
		noLLM       bool
	)

	cmd := &cobra.Command{
		Use:     "extract <file.pdf|gs://bucket/object>",
		Aliases: []string{"run"},
		Short:   "Run the extraction pipeline and print the transactions as JSON",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(cmd)
			ctx := logger.WithContext(cmd.Context(), log)

			cfg, err := config.Load(log)
			if err != nil {
				return err
			}
			if noLLM {
				cfg.EnableLLMParsing = false
				cfg.EnableLLMCategorization = false
			}

			data, err := readDocument(ctx, args[0], cfg.MaxUploadBytes)
			if err != nil {
				return err
			}

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			batch, err := a.Service.Extract(ctx, pipeline.ExtractRequest{
				Document:        data,
				BankHint:        bank,
				AccountTypeHint: accountType,
				AccountName:     accountName,
			})
			if err != nil {
				var xerr *extracterr.Error
				if errors.As(err, &xerr) {
					return fmt.Errorf("%s: %s", xerr.Kind, xerr.UserMessage)
				}
				return err
			}

			if confirm {
				handoff, err := a.Service.Confirm(ctx, batch.UploadID, nil)
				if err != nil {
					return fmt.Errorf("confirming: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "saved %d transactions to the %s sink\n", len(handoff.Candidates), cfg.PersistSink)
			}

			return writeJSON(cmd.OutOrStdout(), batch)
		},
	}

	cmd.Flags().StringVar(&bank, "bank", "", "bank hint used when the statement is not recognized")
	cmd.Flags().StringVar(&accountType, "account-type", "", "account type hint (savings, credit_card)")
	cmd.Flags().StringVar(&accountName, "account-name", "", "account name stamped on saved transactions")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "confirm the result and hand it to the configured sink")
	cmd.Flags().BoolVar(&noLLM, "no-llm", false, "disable the generative fallback and categorization")

	return cmd
}

func newDetectCommand() *cobra.Command {
	var textInput bool

	cmd := &cobra.Command{
		Use:   "detect <file>",
		Short: "Show the detected bank profile and the marker score of every profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pages, err := readPages(cmd.Context(), args[0], textInput)
			if err != nil {
				return err
			}

			d := detect.NewDefaultDetector()
			out := cmd.OutOrStdout()
			profile := d.Detect(pages)
			fmt.Fprintf(out, "bank=%s account_type=%s confidence=%.2f\n", profile.Bank, profile.AccountType, profile.Confidence)
			if len(pages) > 0 {
				for _, s := range d.Scores(pages[0]) {
					fmt.Fprintf(out, "  %-8s %-12s %d/%d\n", s.Bank, s.AccountType, s.Matched, s.Total)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&textInput, "text", false, "treat the input as plain text, one page per form feed")
	return cmd
}

func newPagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pages <file.pdf|gs://bucket/object>",
		Short: "Print the text of every page as the extractor sees it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pages, err := readPages(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, page := range pages {
				fmt.Fprintf(out, "--- page %d ---\n%s\n", i+1, page)
			}
			if !pdftext.Readable(pages) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: fewer than %d readable characters\n", pdftext.MinTextChars)
			}
			return nil
		},
	}
}

// readDocument loads a local file or a gs:// object.
func readDocument(ctx context.Context, src string, maxBytes int64) ([]byte, error) {
	if !strings.HasPrefix(src, "gs://") {
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", src, err)
		}
		return data, nil
	}

	fetcher, err := gcs.NewStorageFetcher(ctx, maxBytes)
	if err != nil {
		return nil, err
	}
	defer fetcher.Close()
	return fetcher.Fetch(ctx, src)
}

func readPages(ctx context.Context, src string, textInput bool) ([]string, error) {
	data, err := readDocument(ctx, src, 0)
	if err != nil {
		return nil, err
	}
	if textInput {
		return strings.Split(string(data), "\f"), nil
	}
	pages, err := pdftext.ExtractPages(data)
	if err != nil {
		return nil, fmt.Errorf("extracting text from %s: %w", src, err)
	}
	return pages, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
