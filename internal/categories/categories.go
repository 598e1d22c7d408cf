// Package categories holds the closed set of transaction categories and the
// keyword rules that suggest one for a description.
//
// A Config is built once at start-up and passed to its consumers; it is
// immutable and safe for concurrent use.
package categories

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cloudflare/ahocorasick"
	"gopkg.in/yaml.v3"

	"github.com/dvloznov/statement-extractor/internal/domain"
)

const (
	// Uncategorized is returned by Lookup when no rule matches.
	Uncategorized = "Uncategorized"
	// Other is the catch-all category for answers outside the closed set.
	Other = "Other"
)

// ErrUnknownCategory is returned when a rule names a category that is not in
// the configured lists.
var ErrUnknownCategory = errors.New("unknown category")

var defaultExpense = []string{
	"Food", "Gifts", "Health/medical", "Home", "Transportation", "Personal",
	"Pets", "Family", "Travel", "Debt", "Other", "Rent", "Credit Card",
	"Alcohol", "Consumables", "Investments",
}

var defaultIncome = []string{"Savings", "Paycheck", "Bonus", "Interest", "Splitwise", "RSU"}

// Rule maps a description keyword to a category. Keywords match
// case-insensitively anywhere in the description; earlier rules win.
type Rule struct {
	Keyword  string `yaml:"keyword"`
	Category string `yaml:"category"`
}

var defaultRules = []Rule{
	{"SALARY", "Paycheck"},
	{"PAYROLL", "Paycheck"},
	{"BONUS", "Bonus"},
	{"INTEREST", "Interest"},
	{"INT.PD", "Interest"},
	{"SPLITWISE", "Splitwise"},
	{"RSU VEST", "RSU"},
	{"SWIGGY", "Food"},
	{"ZOMATO", "Food"},
	{"RESTAURANT", "Food"},
	{"CAFE", "Food"},
	{"PETROL", "Transportation"},
	{"FUEL", "Transportation"},
	{"UBER", "Transportation"},
	{"OLA CABS", "Transportation"},
	{"IRCTC", "Travel"},
	{"MAKEMYTRIP", "Travel"},
	{"INDIGO", "Travel"},
	{"HOTEL", "Travel"},
	{"HOUSE RENT", "Rent"},
	{"RENTAL", "Rent"},
	{"CREDIT CARD PAYMENT", "Credit Card"},
	{"CC PAYMENT", "Credit Card"},
	{" EMI", "Debt"},
	{"LOAN", "Debt"},
	{"ZERODHA", "Investments"},
	{"GROWW", "Investments"},
	{"MUTUAL FUND", "Investments"},
	{"BIGBASKET", "Consumables"},
	{"DMART", "Consumables"},
	{"GROCER", "Consumables"},
	{"PHARMACY", "Health/medical"},
	{"APOLLO", "Health/medical"},
	{"HOSPITAL", "Health/medical"},
	{"VETERINARY", "Pets"},
	{"PET SHOP", "Pets"},
	{"LIQUOR", "Alcohol"},
	{"WINE", "Alcohol"},
	{"AMAZON", "Personal"},
	{"FLIPKART", "Personal"},
	{"MYNTRA", "Personal"},
	{"ELECTRICITY", "Home"},
	{"BROADBAND", "Home"},
}

type compiledRule struct {
	category  string
	direction domain.Direction
}

// Config is the immutable category configuration.
type Config struct {
	expense  []string
	income   []string
	known    map[string]domain.Direction
	rules    []compiledRule
	patterns []string
	matcher  *ahocorasick.Matcher
}

// File is the on-disk YAML form of a Config.
type File struct {
	Expense []string `yaml:"expense"`
	Income  []string `yaml:"income"`
	Rules   []Rule   `yaml:"rules"`
}

// Default returns the built-in configuration.
func Default() *Config {
	c, err := New(defaultExpense, defaultIncome, defaultRules)
	if err != nil {
		panic(fmt.Sprintf("categories: invalid built-in configuration: %v", err))
	}
	return c
}

// New builds a Config. Every rule must name a category from one of the lists;
// the rule then applies only to transactions of that list's direction.
func New(expense, income []string, rules []Rule) (*Config, error) {
	c := &Config{
		expense: append([]string(nil), expense...),
		income:  append([]string(nil), income...),
		known:   make(map[string]domain.Direction, len(expense)+len(income)),
	}
	for _, name := range c.expense {
		c.known[name] = domain.DirectionDebit
	}
	for _, name := range c.income {
		if _, dup := c.known[name]; dup {
			return nil, fmt.Errorf("New: category %q is both income and expense", name)
		}
		c.known[name] = domain.DirectionCredit
	}

	byPattern := make(map[string]bool, len(rules))
	for _, r := range rules {
		// Surrounding spaces are kept so " EMI" does not match "PREMIUM".
		kw := strings.ToUpper(r.Keyword)
		if strings.TrimSpace(kw) == "" {
			continue
		}
		dir, ok := c.known[r.Category]
		if !ok {
			return nil, fmt.Errorf("New: rule %q: %w: %q", r.Keyword, ErrUnknownCategory, r.Category)
		}
		if byPattern[kw] {
			continue
		}
		byPattern[kw] = true
		c.patterns = append(c.patterns, kw)
		c.rules = append(c.rules, compiledRule{category: r.Category, direction: dir})
	}
	if len(c.patterns) > 0 {
		c.matcher = ahocorasick.NewStringMatcher(c.patterns)
	}
	return c, nil
}

// LoadFile reads a YAML category configuration. Missing lists fall back to
// the built-in ones.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadFile: reading %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("LoadFile: parsing %s: %w", path, err)
	}
	if len(f.Expense) == 0 {
		f.Expense = defaultExpense
	}
	if len(f.Income) == 0 {
		f.Income = defaultIncome
	}
	if len(f.Rules) == 0 {
		f.Rules = defaultRules
	}
	return New(f.Expense, f.Income, f.Rules)
}

// Lookup suggests a category for a description. Only rules whose category
// matches the direction are considered; the earliest declared rule wins.
func (c *Config) Lookup(description string, dir domain.Direction) string {
	if c.matcher == nil {
		return Uncategorized
	}
	hits := c.matcher.MatchThreadSafe([]byte(strings.ToUpper(description)))
	best := -1
	for _, idx := range hits {
		if idx < 0 || idx >= len(c.rules) {
			continue
		}
		if dir.Valid() && c.rules[idx].direction != dir {
			continue
		}
		if best == -1 || idx < best {
			best = idx
		}
	}
	if best == -1 {
		return Uncategorized
	}
	return c.rules[best].category
}

// Known reports whether category is one of the configured categories.
func (c *Config) Known(category string) bool {
	_, ok := c.known[category]
	return ok
}

// KnownFor reports whether category is configured for transactions of dir.
// An invalid direction accepts a category from either list.
func (c *Config) KnownFor(category string, dir domain.Direction) bool {
	d, ok := c.known[category]
	if !ok {
		return false
	}
	return !dir.Valid() || d == dir
}

// Fallback is the category given to a transaction of dir when nothing better
// is known: Other when it is configured for dir, else Uncategorized.
func (c *Config) Fallback(dir domain.Direction) string {
	if c.KnownFor(Other, dir) {
		return Other
	}
	return Uncategorized
}

// Allowed returns the categories valid for a direction. An invalid direction
// returns every category.
func (c *Config) Allowed(dir domain.Direction) []string {
	switch dir {
	case domain.DirectionDebit:
		return append([]string(nil), c.expense...)
	case domain.DirectionCredit:
		return append([]string(nil), c.income...)
	default:
		return append(append([]string(nil), c.expense...), c.income...)
	}
}
