package llm

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ExtractPrompt builds the instruction for one chunk of statement text. The
// output depends only on its arguments.
func ExtractPrompt(chunk, bank, accountType string, part, total int) string {
	if bank == "" {
		bank = "bank"
	}
	var b strings.Builder
	b.WriteString("You are a financial statement parser.\n\n")
	fmt.Fprintf(&b, "Task:\n- Extract ALL transactions from this %s %s statement text", bank, accountTypeLabel(accountType))
	if total > 1 {
		fmt.Fprintf(&b, " (part %d of %d)", part, total)
	}
	b.WriteString(".\n\n")

	b.WriteString("Output a JSON array of objects. Each object must have these fields:\n" +
		"- \"date\": string, ISO format \"YYYY-MM-DD\"\n" +
		"- \"description\": string, the transaction narration\n" +
		"- \"amount\": number, unsigned and positive, no currency symbol, no thousands separators\n" +
		"- \"type\": \"credit\" for money in, \"debit\" for money out\n\n")

	b.WriteString("Rules:\n" +
		"- Skip opening balance, closing balance and brought-forward lines.\n" +
		"- If there are no transactions, output [].\n\n" +
		"Return ONLY valid raw JSON.\n" +
		"Do NOT add explanations or any text outside the array.\n" +
		"Do NOT wrap the response in code fences.\n" +
		"Output must begin with \"[\" and end with \"]\".\n\n")

	b.WriteString("Statement text:\n")
	b.WriteString(chunk)
	b.WriteString("\n\nJSON:\n")
	return b.String()
}

func accountTypeLabel(accountType string) string {
	if strings.TrimSpace(accountType) == "" {
		return "account"
	}
	return strings.ToLower(accountType)
}

// CategorizePrompt asks for exactly one label from allowed.
func CategorizePrompt(description string, amount decimal.Decimal, allowed []string) string {
	var b strings.Builder
	b.WriteString("Categorize this transaction. Return only the category name, nothing else.\n\n")
	fmt.Fprintf(&b, "Categories: %s\n\n", strings.Join(allowed, ", "))
	fmt.Fprintf(&b, "Transaction: %s\n", description)
	fmt.Fprintf(&b, "Amount: ₹%s\n\n", amount.StringFixed(2))
	b.WriteString("Category:\n")
	return b.String()
}
