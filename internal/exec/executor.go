// Package exec orchestrates a report run: compile the query once, fan out
// over accounts, interpret the raw records, and drive the writer lifecycle.
package exec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"reportql/internal/domain"
	"reportql/internal/fetch"
	"reportql/internal/interp"
	"reportql/internal/rql"
	"reportql/internal/schema"
)

// FailPolicy decides what an account-level failure does to the rest of the
// run.
type FailPolicy int

const (
	// ContinueOnError records the failure, skips the account, and keeps
	// going. The run error reports every failed account at the end.
	ContinueOnError FailPolicy = iota
	// AbortOnError cancels the whole run on the first failure.
	AbortOnError
)

// constantSuffix marks scripts whose result does not depend on the account,
// so one fetch covers all accounts.
const constantSuffix = "_constant"

// Options tune one run. The zero value is not useful; start from
// DefaultOptions.
type Options struct {
	// SkipConstants skips scripts carrying the constant suffix entirely.
	SkipConstants bool
	// Parallel fans accounts out over goroutines. Order of accounts in
	// the output is then unspecified, but rows never interleave.
	Parallel bool
	// ParallelThreshold bounds in-flight accounts when Parallel is set.
	ParallelThreshold int
	// DumpPlan logs the compiled plan before fetching.
	DumpPlan   bool
	FailPolicy FailPolicy
}

// DefaultOptions matches the common batch run: parallel, keep going on
// account failures.
func DefaultOptions() Options {
	return Options{
		Parallel:          true,
		ParallelThreshold: 8,
		FailPolicy:        ContinueOnError,
	}
}

// Executor runs compiled reports against a reporting client.
type Executor struct {
	compiler *rql.Compiler
	client   fetch.Client
	interp   *interp.Interpreter
	logger   *slog.Logger
	opts     Options
}

func New(reg *schema.Registry, client fetch.Client, logger *slog.Logger, opts Options) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ParallelThreshold <= 0 {
		opts.ParallelThreshold = DefaultOptions().ParallelThreshold
	}
	return &Executor{
		compiler: rql.NewCompiler(reg),
		client:   client,
		interp:   interp.New(reg),
		logger:   logger,
		opts:     opts,
	}
}

// accountFailure pairs a failed account with its cause.
type accountFailure struct {
	account string
	err     error
}

func (f accountFailure) Error() string {
	return fmt.Sprintf("account %s: %v", f.account, f.err)
}

func (f accountFailure) Unwrap() error { return f.err }

// Execute compiles queryText once and runs it for every account, writing
// rows through writer. The writer sees a strict lifecycle: one BeginScript,
// then per account BeginCustomer, AddRow..., EndCustomer with no
// interleaving across accounts, then one EndScript.
func (e *Executor) Execute(ctx context.Context, scriptName, queryText string, accountIDs []string, params map[string]string, writer domain.RowWriter) error {
	logger := e.logger.With("run_id", shortRunID(), "script", scriptName)

	if strings.HasSuffix(scriptName, constantSuffix) {
		if e.opts.SkipConstants {
			logger.Info("skipping constant script")
			return nil
		}
		// Constant result, one account is enough.
		if len(accountIDs) > 1 {
			accountIDs = accountIDs[:1]
		}
	}

	plan, err := e.compiler.Compile(queryText, params)
	if err != nil {
		return fmt.Errorf("compile %s: %w", scriptName, err)
	}
	if e.opts.DumpPlan {
		logger.Info("compiled plan",
			"resource", plan.Resource,
			"columns", strings.Join(plan.ColumnNames, ","),
			"query", plan.QueryText)
	}

	if err := writer.BeginScript(scriptName, plan); err != nil {
		return fmt.Errorf("begin script %s: %w", scriptName, err)
	}
	logger.Info("run started", "accounts", len(accountIDs))

	var failures []error
	if e.opts.Parallel && len(accountIDs) > 1 {
		failures, err = e.runParallel(ctx, logger, plan, accountIDs, writer)
	} else {
		failures, err = e.runSequential(ctx, logger, plan, accountIDs, writer)
	}

	endErr := writer.EndScript()
	if err != nil {
		return err
	}
	if endErr != nil {
		return fmt.Errorf("end script %s: %w", scriptName, endErr)
	}
	if len(failures) > 0 {
		logger.Warn("run finished with failures", "failed_accounts", len(failures))
		return errors.Join(failures...)
	}
	logger.Info("run finished")
	return nil
}

// runSequential streams each account's records straight into the writer,
// preserving the given account order.
func (e *Executor) runSequential(ctx context.Context, logger *slog.Logger, plan *domain.QueryPlan, accountIDs []string, writer domain.RowWriter) ([]error, error) {
	var failures []error
	for _, account := range accountIDs {
		if err := ctx.Err(); err != nil {
			return failures, err
		}
		rows, err := e.streamAccount(ctx, plan, account, writer)
		if err != nil {
			if e.opts.FailPolicy == AbortOnError {
				return failures, accountFailure{account: account, err: err}
			}
			logger.Warn("account failed", "account", account, "error", err)
			failures = append(failures, accountFailure{account: account, err: err})
			continue
		}
		logger.Debug("account done", "account", account, "rows", rows)
	}
	return failures, nil
}

// streamAccount runs one account inside its writer bracket. EndCustomer is
// always called once BeginCustomer succeeded.
func (e *Executor) streamAccount(ctx context.Context, plan *domain.QueryPlan, account string, writer domain.RowWriter) (int, error) {
	stream, err := e.client.Query(ctx, plan.QueryText, account)
	if err != nil {
		return 0, err
	}
	defer stream.Close() //nolint:errcheck

	if err := writer.BeginCustomer(account); err != nil {
		return 0, err
	}
	rows := 0
	streamErr := func() error {
		for {
			rec, err := stream.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			cells, err := e.interp.Interpret(plan, rec)
			if err != nil {
				return err
			}
			if err := writer.AddRow(cells); err != nil {
				return err
			}
			rows++
		}
	}()
	if endErr := writer.EndCustomer(); streamErr == nil {
		streamErr = endErr
	}
	return rows, streamErr
}

// runParallel interprets accounts concurrently but replays each account's
// writer bracket under a lock, so writers never see interleaved accounts.
func (e *Executor) runParallel(ctx context.Context, logger *slog.Logger, plan *domain.QueryPlan, accountIDs []string, writer domain.RowWriter) ([]error, error) {
	var (
		writeMu sync.Mutex
		failMu  sync.Mutex
		fails   []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.ParallelThreshold)
	for _, account := range accountIDs {
		g.Go(func() error {
			rows, err := e.fetchAccount(gctx, plan, account)
			if err == nil {
				err = writeAccount(writer, &writeMu, account, rows)
			}
			if err != nil {
				if e.opts.FailPolicy == AbortOnError {
					return accountFailure{account: account, err: err}
				}
				logger.Warn("account failed", "account", account, "error", err)
				failMu.Lock()
				fails = append(fails, accountFailure{account: account, err: err})
				failMu.Unlock()
				return nil
			}
			logger.Debug("account done", "account", account, "rows", len(rows))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fails, err
	}
	return fails, nil
}

// fetchAccount materializes and interprets one account's result.
func (e *Executor) fetchAccount(ctx context.Context, plan *domain.QueryPlan, account string) ([]domain.Row, error) {
	records, err := e.client.QueryOnce(ctx, plan.QueryText, account)
	if err != nil {
		return nil, err
	}
	rows := make([]domain.Row, 0, len(records))
	for _, rec := range records {
		cells, err := e.interp.Interpret(plan, rec)
		if err != nil {
			return nil, err
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// writeAccount replays one materialized account through the writer while
// holding the writer lock.
func writeAccount(writer domain.RowWriter, mu *sync.Mutex, account string, rows []domain.Row) error {
	mu.Lock()
	defer mu.Unlock()

	if err := writer.BeginCustomer(account); err != nil {
		return err
	}
	var addErr error
	for _, cells := range rows {
		if addErr = writer.AddRow(cells); addErr != nil {
			break
		}
	}
	if endErr := writer.EndCustomer(); addErr == nil {
		addErr = endErr
	}
	return addErr
}

func shortRunID() string {
	return uuid.NewString()[:8]
}

// Script pairs a script name with its query text.
type Script struct {
	Name string
	Text string
}

// ExecuteAll runs scripts strictly in order, one writer per script, so peak
// resource use stays bounded by a single script's fan-out. Under
// ContinueOnError a failed script does not stop later scripts.
func (e *Executor) ExecuteAll(ctx context.Context, scripts []Script, accountIDs []string, params map[string]string, newWriter func(Script) (domain.RowWriter, error)) error {
	var failures []error
	for _, script := range scripts {
		if err := ctx.Err(); err != nil {
			return err
		}
		writer, err := newWriter(script)
		if err != nil {
			return fmt.Errorf("writer for %s: %w", script.Name, err)
		}
		if err := e.Execute(ctx, script.Name, script.Text, accountIDs, params, writer); err != nil {
			if e.opts.FailPolicy == AbortOnError {
				return err
			}
			failures = append(failures, fmt.Errorf("script %s: %w", script.Name, err))
		}
	}
	return errors.Join(failures...)
}
