package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// options — параметры прогона. Total в режиме duration ограничивает
// число сценариев, только если задан явно.
type options struct {
	BaseURL        string
	Total          int
	totalExplicit  bool
	Duration       time.Duration
	Workers        int
	Timeout        time.Duration
	Scenario       scenarioKind
	CancelPercent  int
	ProductID      string
	UnitPrice      decimal.Decimal
	Quantity       int
	CouponCode     string
	CustomerPrefix string
	ReportPath     string
}

func parseOptions(args []string, stderr io.Writer) (options, error) {
	var (
		opts      options
		scenario  string
		unitPrice string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.BaseURL, "base-url", "http://localhost:8080", "storefront HTTP API base URL")
	fs.IntVar(&opts.Total, "total", 400, "scenarios to run; with -duration acts as an upper bound when set")
	fs.DurationVar(&opts.Duration, "duration", 0, "run for a fixed time instead of a fixed count (e.g. 5m)")
	fs.IntVar(&opts.Workers, "concurrency", 40, "scenarios executed in parallel")
	fs.DurationVar(&opts.Timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&scenario, "mode", string(scenarioCheckout), "scenario: browse | checkout | checkout-cancel")
	fs.IntVar(&opts.CancelPercent, "cancel-rate", 100, "share of checkout-cancel scenarios that cancel, percent")
	fs.StringVar(&opts.ProductID, "product", "ecobag", "product id to buy")
	fs.StringVar(&unitPrice, "unit-price", "25.00", "unit price the client has seen")
	fs.IntVar(&opts.Quantity, "qty", 1, "quantity per checkout")
	fs.StringVar(&opts.CouponCode, "coupon", "", "coupon code; every scenario uses its own customer")
	fs.StringVar(&opts.CustomerPrefix, "customer-tag", "load", "customer id prefix")
	fs.StringVar(&opts.ReportPath, "output", "", "write the JSON report to this file")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	fs.Visit(func(f *flag.Flag) {
		opts.totalExplicit = opts.totalExplicit || f.Name == "total"
	})

	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	opts.ProductID = strings.TrimSpace(opts.ProductID)
	opts.CustomerPrefix = strings.TrimSpace(opts.CustomerPrefix)

	var problems []error
	kind, err := parseScenario(scenario)
	if err != nil {
		problems = append(problems, err)
	}
	opts.Scenario = kind

	price, err := decimal.NewFromString(strings.TrimSpace(unitPrice))
	switch {
	case err != nil:
		problems = append(problems, fmt.Errorf("unit-price must be a decimal number: %w", err))
	case !price.IsPositive():
		problems = append(problems, errors.New("unit-price must be > 0"))
	}
	opts.UnitPrice = price

	problems = append(problems, opts.validate()...)
	return opts, errors.Join(problems...)
}

func (o options) validate() []error {
	var problems []error
	check := func(failed bool, msg string) {
		if failed {
			problems = append(problems, errors.New(msg))
		}
	}

	check(o.BaseURL == "", "base-url is required")
	check(o.Duration < 0, "duration must be >= 0")
	check(o.Duration == 0 && o.Total <= 0, "total must be > 0 when duration is not set")
	check(o.Duration > 0 && o.totalExplicit && o.Total <= 0, "total must be > 0 when set together with duration")
	check(o.Workers <= 0, "concurrency must be > 0")
	check(o.Timeout <= 0, "timeout must be > 0")
	check(o.Quantity <= 0, "qty must be > 0")
	check(o.CancelPercent < 0 || o.CancelPercent > 100, "cancel-rate must be between 0 and 100")
	check(o.ProductID == "", "product is required")
	check(o.CustomerPrefix == "", "customer-tag is required")
	return problems
}

// bounded сообщает, ограничено ли число сценариев.
func (o options) bounded() bool {
	return o.Duration <= 0 || o.totalExplicit
}

func (o options) target() string {
	switch {
	case o.Duration <= 0:
		return fmt.Sprintf("count:%d", o.Total)
	case o.totalExplicit:
		return fmt.Sprintf("duration:%s,max-total:%d", o.Duration, o.Total)
	default:
		return fmt.Sprintf("duration:%s", o.Duration)
	}
}
