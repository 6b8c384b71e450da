package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"github.com/blogle/dojo-sub001/internal/cli"
	"github.com/blogle/dojo-sub001/internal/core"
	"github.com/blogle/dojo-sub001/internal/log"
	"github.com/blogle/dojo-sub001/internal/services"
)

var commands = []subcommands.Command{
	&rebuildCmd{},
	&auditCmd{},
	&balanceCmd{},
	&rtaCmd{},
	&budgetCmd{},
	&addAccountCmd{},
	&reconcileCmd{},
}

// openLedger connects to the configured database and, when events are
// enabled, to the broker so that rebuilds and mutations reach the running
// API and auditor.
func openLedger() (*services.Ledger, func()) {
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentCLI)
	cfg := cli.LoadAndValidateConfig(logger)
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	client := cli.InitAMQP(logger, cfg)
	return cli.NewLedger(cfg, repo, client), func() {
		if client != nil {
			client.Close()
		}
		repo.Close()
	}
}

// parseMonth reads YYYY-MM, defaulting to the current month.
func parseMonth(s string) (core.Date, error) {
	if s == "" {
		return core.DateOf(time.Now()).MonthStart(), nil
	}
	d, err := core.ParseDate(s + "-01")
	if err != nil {
		return core.Date{}, fmt.Errorf("invalid month %q, want YYYY-MM", s)
	}
	return d, nil
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, err)
	return subcommands.ExitFailure
}

type rebuildCmd struct{}

func (*rebuildCmd) Name() string     { return "rebuild" }
func (*rebuildCmd) Synopsis() string { return "recompute every balance and envelope cache from active versions" }
func (*rebuildCmd) Usage() string {
	return `dojo-admin rebuild

  Replaces the cached account balances and the monthly envelope state with
  values derived from the active transaction and allocation versions.
  Running it twice yields the same caches.
`
}
func (*rebuildCmd) SetFlags(*flag.FlagSet) {}

func (*rebuildCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ledger, closeFn := openLedger()
	defer closeFn()

	stats, err := services.NewAuditor(ledger).Repair(ctx)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("rebuilt %d accounts and %d monthly state rows in %s\n",
		stats.Accounts, stats.MonthlyStateRows, stats.Duration.Round(time.Millisecond))
	return subcommands.ExitSuccess
}

type auditCmd struct {
	repair bool
}

func (*auditCmd) Name() string     { return "audit" }
func (*auditCmd) Synopsis() string { return "compare the caches with a fresh derivation" }
func (*auditCmd) Usage() string {
	return `dojo-admin audit [-repair]

  Reports accounts and category months whose cached figures disagree with
  the active versions, and concepts with more than one active version.
  Exits non-zero when drift is found and not repaired.
`
}

func (c *auditCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.repair, "repair", false, "Rebuild the caches when drift is found.")
}

func (c *auditCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ledger, closeFn := openLedger()
	defer closeFn()

	auditor := services.NewAuditor(ledger)
	report, err := auditor.AuditAll(ctx)
	if err != nil {
		return fail(err)
	}

	fmt.Printf("checked %d accounts and %d monthly states in %s\n",
		report.CheckedAccounts, report.CheckedStates, report.Duration.Round(time.Millisecond))
	if report.Clean() {
		fmt.Println("no drift")
		return subcommands.ExitSuccess
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, d := range report.Accounts {
		fmt.Fprintf(w, "account\t%s\tcached %d\tcomputed %d\n", d.AccountID, d.Cached, d.Computed)
	}
	for _, d := range report.States {
		fmt.Fprintf(w, "envelope\t%s %s\tcached %d\tcomputed %d\n",
			d.Computed.CategoryID, d.Computed.Month, d.Cached.AvailableMinor, d.Computed.AvailableMinor)
	}
	for concept, n := range report.DuplicateActive {
		fmt.Fprintf(w, "concept\t%s\t%d active versions\t\n", concept, n)
	}
	w.Flush()

	if !c.repair {
		return subcommands.ExitFailure
	}
	if _, err := auditor.Repair(ctx); err != nil {
		return fail(err)
	}
	fmt.Println("caches rebuilt")
	return subcommands.ExitSuccess
}

type balanceCmd struct {
	asOf string
}

func (*balanceCmd) Name() string     { return "balance" }
func (*balanceCmd) Synopsis() string { return "print the balance of an account" }
func (*balanceCmd) Usage() string {
	return `dojo-admin balance [-as-of <RFC3339>] <account_id>

  Prints the current cached balance, or the balance as the ledger recorded
  it at the given instant.
`
}

func (c *balanceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.asOf, "as-of", "", "System time to read the balance at (RFC3339).")
}

func (c *balanceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "balance takes exactly one account id")
		return subcommands.ExitUsageError
	}
	accountID := f.Arg(0)

	ledger, closeFn := openLedger()
	defer closeFn()

	var (
		balance int64
		err     error
	)
	if c.asOf == "" {
		balance, err = ledger.AccountBalance(ctx, accountID)
	} else {
		var at time.Time
		if at, err = time.Parse(time.RFC3339, c.asOf); err != nil {
			return fail(fmt.Errorf("invalid -as-of: %w", err))
		}
		balance, err = ledger.AccountBalanceAsOf(ctx, accountID, at)
	}
	if err != nil {
		return fail(err)
	}
	fmt.Printf("%s\t%s\n", accountID, core.FormatMinor(balance, core.DefaultCurrency))
	return subcommands.ExitSuccess
}

type rtaCmd struct {
	month string
}

func (*rtaCmd) Name() string     { return "rta" }
func (*rtaCmd) Synopsis() string { return "print Ready to Assign for a month" }
func (*rtaCmd) Usage() string {
	return `dojo-admin rta [-m <YYYY-MM>]
`
}

func (c *rtaCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.month, "m", "", "Month to report (defaults to the current month).")
}

func (c *rtaCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	month, err := parseMonth(c.month)
	if err != nil {
		return fail(err)
	}
	ledger, closeFn := openLedger()
	defer closeFn()

	rta, err := ledger.ReadyToAssign(ctx, month)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("%s\t%s\n", month.Format("2006-01"), core.FormatMinor(rta, core.DefaultCurrency))
	return subcommands.ExitSuccess
}

type budgetCmd struct {
	month string
}

func (*budgetCmd) Name() string     { return "budget" }
func (*budgetCmd) Synopsis() string { return "print the envelope view of a month" }
func (*budgetCmd) Usage() string {
	return `dojo-admin budget [-m <YYYY-MM>]

  Lists every active envelope category with its allocated, activity and
  available figures, followed by Ready to Assign.
`
}

func (c *budgetCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.month, "m", "", "Month to report (defaults to the current month).")
}

func (c *budgetCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	month, err := parseMonth(c.month)
	if err != nil {
		return fail(err)
	}
	ledger, closeFn := openLedger()
	defer closeFn()

	summary, err := ledger.BudgetMonth(ctx, month)
	if err != nil {
		return fail(err)
	}

	amount := func(minor int64) string { return core.FormatMinor(minor, core.DefaultCurrency) }
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "category\tallocated\tactivity\tavailable\t")
	for _, row := range summary.Categories {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", row.Category.Name,
			amount(row.State.AllocatedMinor), amount(row.State.ActivityMinor), amount(row.State.AvailableMinor))
	}
	fmt.Fprintf(w, "total\t%s\t%s\t%s\t\n",
		amount(summary.AllocatedMinor), amount(summary.ActivityMinor), amount(summary.AvailableMinor))
	w.Flush()
	fmt.Printf("\nReady to Assign %s: %s\n", month.Format("2006-01"), amount(summary.ReadyToAssignMinor))
	if summary.UnderfundedMinor > 0 {
		fmt.Printf("Underfunded goals: %s\n", amount(summary.UnderfundedMinor))
	}
	return subcommands.ExitSuccess
}

type addAccountCmd struct {
	name     string
	typ      string
	class    string
	role     string
	currency string
	opening  string
	openedOn string
}

func (*addAccountCmd) Name() string     { return "add-account" }
func (*addAccountCmd) Synopsis() string { return "open an account, optionally with an opening balance" }
func (*addAccountCmd) Usage() string {
	return `dojo-admin add-account -name <name> [-type asset|liability] [-class <class>]
    [-role on_budget|tracking] [-opening <amount>] [-opened-on <YYYY-MM-DD>] <account_id>

  Credit accounts get their payment envelope. The opening balance is a
  decimal amount in the account currency, e.g. 1234.56 or -80,00.
`
}

func (c *addAccountCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "Display name of the account.")
	f.StringVar(&c.typ, "type", string(core.Asset), "Account type (asset, liability).")
	f.StringVar(&c.class, "class", string(core.ClassCash), "Account class (cash, credit, investment, loan, accessible, tangible).")
	f.StringVar(&c.role, "role", string(core.OnBudget), "Account role (on_budget, tracking).")
	f.StringVar(&c.currency, "currency", core.DefaultCurrency, "ISO 4217 currency code.")
	f.StringVar(&c.opening, "opening", "", "Opening balance.")
	f.StringVar(&c.openedOn, "opened-on", "", "Opening date (defaults to today).")
}

func (c *addAccountCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "add-account takes exactly one account id")
		return subcommands.ExitUsageError
	}

	payload := core.AccountPayload{
		AccountID: f.Arg(0),
		Name:      c.name,
		Type:      core.AccountType(strings.ToLower(c.typ)),
		Class:     core.AccountClass(strings.ToLower(c.class)),
		Role:      core.AccountRole(strings.ToLower(c.role)),
		Currency:  strings.ToUpper(c.currency),
	}
	if c.opening != "" {
		minor, err := core.ParseMinor(c.opening, payload.Currency)
		if err != nil {
			return fail(fmt.Errorf("invalid -opening %q: %w", c.opening, err))
		}
		payload.OpeningBalanceMinor = minor
	}
	if c.openedOn != "" {
		d, err := core.ParseDate(c.openedOn)
		if err != nil {
			return fail(fmt.Errorf("invalid -opened-on %q: %w", c.openedOn, err))
		}
		payload.OpenedOn = d
	}

	ledger, closeFn := openLedger()
	defer closeFn()

	account, err := ledger.CreateAccount(ctx, payload)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("opened %s (%s, %s) with balance %s\n", account.ID, account.Class, account.Role,
		core.FormatMinor(account.BalanceMinor, account.Currency))
	return subcommands.ExitSuccess
}

type reconcileCmd struct {
	statement string
	pending   string
	date      string
	worksheet bool
}

func (*reconcileCmd) Name() string     { return "reconcile" }
func (*reconcileCmd) Synopsis() string { return "check an account against a bank statement" }
func (*reconcileCmd) Usage() string {
	return `dojo-admin reconcile -statement <amount> [-pending <amount>] [-date <YYYY-MM-DD>] <account_id>
dojo-admin reconcile -worksheet <account_id>

  Records a checkpoint comparing the cleared balance with the statement and
  prints the difference. With -worksheet, lists the transactions entered or
  edited since the last checkpoint, and every pending one, without
  recording anything.
`
}

func (c *reconcileCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.statement, "statement", "", "Statement ending balance.")
	f.StringVar(&c.pending, "pending", "", "Pending total shown on the statement.")
	f.StringVar(&c.date, "date", "", "Statement date (defaults to today).")
	f.BoolVar(&c.worksheet, "worksheet", false, "Print the worksheet instead of reconciling.")
}

func (c *reconcileCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "reconcile takes exactly one account id")
		return subcommands.ExitUsageError
	}
	accountID := f.Arg(0)

	ledger, closeFn := openLedger()
	defer closeFn()

	if c.worksheet {
		return printWorksheet(ctx, ledger, accountID)
	}
	if c.statement == "" {
		fmt.Fprintln(os.Stderr, "reconcile needs -statement")
		return subcommands.ExitUsageError
	}

	account, err := ledger.Store().GetAccount(ctx, accountID)
	if err != nil {
		return fail(err)
	}
	payload := core.ReconciliationPayload{StatementDate: core.DateOf(time.Now())}
	if payload.StatementBalanceMinor, err = core.ParseMinor(c.statement, account.Currency); err != nil {
		return fail(fmt.Errorf("invalid -statement %q: %w", c.statement, err))
	}
	if c.pending != "" {
		if payload.StatementPendingTotalMinor, err = core.ParseMinor(c.pending, account.Currency); err != nil {
			return fail(fmt.Errorf("invalid -pending %q: %w", c.pending, err))
		}
	}
	if c.date != "" {
		if payload.StatementDate, err = core.ParseDate(c.date); err != nil {
			return fail(fmt.Errorf("invalid -date %q: %w", c.date, err))
		}
	}

	rec, err := ledger.Reconcile(ctx, accountID, payload)
	if err != nil {
		return fail(err)
	}
	amount := func(minor int64) string { return core.FormatMinor(minor, account.Currency) }
	fmt.Printf("reconciled %s on %s: cleared %s, statement %s, difference %s\n", accountID, rec.StatementDate,
		amount(rec.ClearedBalanceMinor), amount(rec.StatementBalanceMinor), amount(rec.DifferenceMinor()))
	if rec.DifferenceMinor() != 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func printWorksheet(ctx context.Context, ledger *services.Ledger, accountID string) subcommands.ExitStatus {
	ws, err := ledger.ReconciliationWorksheet(ctx, accountID)
	if err != nil {
		return fail(err)
	}
	account, err := ledger.Store().GetAccount(ctx, accountID)
	if err != nil {
		return fail(err)
	}
	amount := func(minor int64) string { return core.FormatMinor(minor, account.Currency) }

	if ws.Latest != nil {
		fmt.Printf("last reconciled %s against statement of %s\n",
			ws.Latest.CreatedAt.Format(time.RFC3339), ws.Latest.StatementDate)
	} else {
		fmt.Println("never reconciled")
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, v := range ws.Transactions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", v.TransactionDate, v.Status, v.CategoryID, amount(v.AmountMinor), v.Memo)
	}
	w.Flush()
	fmt.Printf("cleared %s, pending %s\n", amount(ws.ClearedBalanceMinor), amount(ws.PendingBalanceMinor))
	return subcommands.ExitSuccess
}
