package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/hybrid/internal/modules/deuteron"
	"github.com/aristath/hybrid/internal/modules/kernel"
	"github.com/aristath/hybrid/internal/modules/optimization"
	"github.com/aristath/hybrid/internal/modules/quantum"
	"github.com/aristath/hybrid/internal/modules/vqe"
	"github.com/aristath/hybrid/pkg/logger"
)

type globalFlags struct {
	logLevel string
	shots    int
	seed     uint64
}

type deuteronFlags struct {
	algorithm      string
	maxEvaluations int
	gradient       string
	problems       []string
	history        bool
	timeout        time.Duration
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "vqe",
		Short:         "Run variational quantum eigensolver problems on the statevector backend",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().IntVar(&g.shots, "shots", 0, "shots per measurement, 0 for exact expectation values")
	root.PersistentFlags().Uint64Var(&g.seed, "seed", 42, "seed for shot sampling")

	root.AddCommand(newDeuteronCmd(g), newOptimizersCmd(), newProblemsCmd())
	return root
}

func (g *globalFlags) logger(cmd *cobra.Command) zerolog.Logger {
	return logger.New(logger.Config{
		Level:  g.logLevel,
		Pretty: true,
		Output: cmd.ErrOrStderr(),
	})
}

func newDeuteronCmd(g *globalFlags) *cobra.Command {
	f := &deuteronFlags{}

	cmd := &cobra.Command{
		Use:   "deuteron",
		Short: "Minimize the deuteron Hamiltonian with each ansatz concurrently",
		Long: `Runs the deuteron problems concurrently, one driver per problem, and
prints the minimum energy each one found next to the exact ground state.
Problem options (such as the evaluation budget of deuteron-mixed) apply
unless overridden by flags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeuteron(cmd, g, f)
		},
	}
	cmd.Flags().StringVar(&f.algorithm, "algorithm", "", "optimizer override (see 'vqe optimizers')")
	cmd.Flags().IntVar(&f.maxEvaluations, "max-evaluations", 0, "evaluation budget override")
	cmd.Flags().StringVar(&f.gradient, "gradient-strategy", "", "gradient strategy override (forward, central, parameter-shift)")
	cmd.Flags().StringSliceVar(&f.problems, "problem", deuteron.ProblemNames(), "problems to run")
	cmd.Flags().BoolVar(&f.history, "history", true, "print the evaluation history of deuteron-mixed")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 2*time.Minute, "abort runs after this long")
	return cmd
}

type problemOutcome struct {
	problem deuteron.Problem
	driver  *vqe.Driver
	result  *vqe.Result
}

func runDeuteron(cmd *cobra.Command, g *globalFlags, f *deuteronFlags) error {
	log := g.logger(cmd)

	backend, err := quantum.NewSimulator(quantum.Config{Shots: g.shots, Seed: g.seed}, log)
	if err != nil {
		return err
	}

	overrides := optimization.Options{}
	if f.algorithm != "" {
		overrides[optimization.KeyAlgorithm] = f.algorithm
	}
	if f.maxEvaluations > 0 {
		overrides[optimization.KeyMaxEvaluations] = f.maxEvaluations
	}
	if f.gradient != "" {
		overrides[optimization.KeyGradientStrategy] = f.gradient
	}

	outcomes := make([]*problemOutcome, len(f.problems))
	for i, name := range f.problems {
		p, err := deuteron.Lookup(name)
		if err != nil {
			return err
		}
		driver, err := vqe.New(p.Kernel, p.Observable, backend,
			vqe.WithOptions(p.Options.Merge(overrides)),
			vqe.WithID(p.Name),
			vqe.WithLogger(log),
		)
		if err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
		outcomes[i] = &problemOutcome{problem: p, driver: driver}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	group, gctx := errgroup.WithContext(ctx)
	for _, o := range outcomes {
		group.Go(func() error {
			var (
				res *vqe.Result
				err error
			)
			if o.problem.Kernel.Shape == kernel.ShapeVector {
				// Vector problems go through the async handle
				handle := o.driver.ExecuteAsync(gctx, o.problem.Initial)
				res, err = handle.Get()
			} else {
				res, err = o.driver.Execute(gctx, o.problem.Initial)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", o.problem.Name, err)
			}
			o.result = res
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROBLEM\tOPTIMIZER\tENERGY\tERROR\tPARAMS\tEVALUATIONS\tSTATUS")
	for _, o := range outcomes {
		r := o.result
		fmt.Fprintf(tw, "%s\t%s\t%.6f\t%.2e\t%s\t%d\t%s\n",
			o.problem.Name,
			o.driver.Optimizer().Name(),
			r.Energy,
			r.Energy-deuteron.GroundStateEnergy,
			r.Params,
			r.Evaluations,
			r.Status,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nexact ground state: %.6f\n", deuteron.GroundStateEnergy)

	if !f.history {
		return nil
	}
	for _, o := range outcomes {
		if o.problem.Name != deuteron.ProblemMixed {
			continue
		}
		fmt.Fprintf(out, "\n%s history:\n", o.problem.Name)
		tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SEQ\tPARAMS\tENERGY")
		for _, rec := range o.driver.History() {
			fmt.Fprintf(tw, "%d\t%s\t%.6f\n", rec.Sequence, rec.Params, rec.Energy)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func newOptimizersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "optimizers",
		Short: "List the registered optimizers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tGRADIENT\tDEFAULT")
			for _, info := range optimization.Available() {
				fmt.Fprintf(tw, "%s\t%t\t%t\n", info.Name, info.RequiresGradient, info.Default)
			}
			return tw.Flush()
		},
	}
}

func newProblemsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "problems",
		Short: "List the built-in problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tKERNEL\tARITY\tINITIAL\tOPTIONS")
			for _, name := range deuteron.ProblemNames() {
				p, err := deuteron.Lookup(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", p.Name, p.Kernel.Name, p.Kernel.Arity, p.Initial, p.Options.Describe())
			}
			return tw.Flush()
		},
	}
}
