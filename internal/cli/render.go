package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/polyglot/internal/ir"
	"github.com/roach88/polyglot/internal/render"
	"github.com/roach88/polyglot/internal/strategy"
	"github.com/roach88/polyglot/internal/typeinfo"
)

// RenderOptions holds flags for the render command.
type RenderOptions struct {
	*RootOptions
	Target      string
	File        string
	Name        string
	Mode        string
	Parallel    bool
	Unsafe      bool
	Dialect     string
	IntWidth    int
	StrictTypes bool
	SchemaPath  string
	EmitIR      bool
	Output      string
}

// RenderedTarget is one backend's output in the JSON envelope.
type RenderedTarget struct {
	Target   string   `json:"target"`
	Code     string   `json:"code"`
	Notes    []string `json:"notes,omitempty"`
	Degraded bool     `json:"degraded"`
	Warnings []string `json:"warnings,omitempty"`
	IR       any      `json:"ir,omitempty"`
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "render [expression]",
		Short: "Render an expression as source code for one or all targets",
		Long: `Render parses the expression, infers types, selects an execution
strategy against the target's capabilities, and prints the generated
source. With --target all, every registered backend renders
concurrently and the outputs print in target-name order.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Target, "target", "t", "", "target backend, or 'all' (required)")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read the expression from a file")
	cmd.Flags().StringVarP(&opts.Name, "name", "n", "", "generated function name")
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "strategy mode (auto|loops|broadcast)")
	cmd.Flags().BoolVar(&opts.Parallel, "parallel", false, "request a parallel form")
	cmd.Flags().BoolVar(&opts.Unsafe, "unsafe", false, "allow target-specific hot-loop hints")
	cmd.Flags().StringVar(&opts.Dialect, "dialect", "", "SQL dialect (sqlite|postgres)")
	cmd.Flags().IntVar(&opts.IntWidth, "int-width", 64, "integer width (32|64)")
	cmd.Flags().BoolVar(&opts.StrictTypes, "strict-types", false, "make type ambiguity fatal")
	cmd.Flags().StringVar(&opts.SchemaPath, "schema", "", "CUE collection schema file")
	cmd.Flags().BoolVar(&opts.EmitIR, "emit-ir", false, "include canonical IR in the output")
	cmd.Flags().StringVarP(&opts.Output, "out", "o", "", "write generated code to a file (single target only)")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

func runRender(opts *RenderOptions, args []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(opts.Verbose)
	defer logger.Sync()

	src, err := readExpression(args, opts.File)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, err.Error())
	}
	if opts.Mode != "" {
		if _, err := strategy.ParseMode(opts.Mode); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInput, err.Error())
		}
	}
	if _, err := render.ParseDialect(opts.Dialect); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, err.Error())
	}

	n, info, err := compile(src, opts.SchemaPath, opts.IntWidth, opts.StrictTypes, logger)
	if err != nil {
		exitCode, errCode := classify(err)
		return formatter.Fail(exitCode, errCode, err.Error())
	}

	req := render.Request{
		FuncName:    opts.Name,
		Mode:        strategy.Mode(opts.Mode),
		Parallel:    opts.Parallel,
		Unsafe:      opts.Unsafe,
		IntWidth:    opts.IntWidth,
		Dialect:     render.Dialect(opts.Dialect),
		StrictTypes: opts.StrictTypes,
	}

	targets := []string{opts.Target}
	if opts.Target == "all" {
		targets = render.Targets()
	} else if _, ok := render.Lookup(opts.Target); !ok {
		return formatter.Fail(ExitCommandError, ErrCodeInput,
			fmt.Sprintf("unknown target %q (have %v)", opts.Target, render.Targets()))
	}
	if opts.Output != "" && len(targets) > 1 {
		return formatter.Fail(ExitCommandError, ErrCodeInput, "--out needs a single target")
	}

	rendered, err := renderTargets(targets, n, info, req, logger)
	if err != nil {
		exitCode, errCode := classify(err)
		return formatter.Fail(exitCode, errCode, err.Error())
	}

	if opts.EmitIR {
		raw, err := ir.EncodeCanonical(n)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error())
		}
		for i := range rendered {
			rendered[i].IR = string(raw)
		}
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(rendered[0].Code), 0o644); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFail, err.Error())
		}
		logger.Info("wrote artifact", zap.String("path", opts.Output))
	}

	if opts.Format == "json" {
		if len(rendered) == 1 && opts.Target != "all" {
			return formatter.SuccessJSON(rendered[0])
		}
		return formatter.SuccessJSON(rendered)
	}

	for i, rt := range rendered {
		if len(rendered) > 1 {
			if i > 0 {
				fmt.Fprintln(formatter.Writer)
			}
			fmt.Fprintf(formatter.Writer, "== %s ==\n", rt.Target)
		}
		fmt.Fprint(formatter.Writer, rt.Code)
		if !strings.HasSuffix(rt.Code, "\n") {
			fmt.Fprintln(formatter.Writer)
		}
		for _, w := range rt.Warnings {
			fmt.Fprintf(formatter.Writer, "warning: %s\n", w)
		}
		if rt.IR != nil {
			fmt.Fprintf(formatter.Writer, "ir: %s\n", rt.IR)
		}
	}
	return nil
}

// renderTargets fans out across backends. Outputs come back in
// target-name order no matter which goroutine finishes first.
func renderTargets(targets []string, n ir.Node, info *typeinfo.Info, req render.Request, logger *zap.Logger) ([]RenderedTarget, error) {
	sorted := append([]string{}, targets...)
	sort.Strings(sorted)

	out := make([]RenderedTarget, len(sorted))
	var g errgroup.Group
	for i, target := range sorted {
		i, target := i, target
		g.Go(func() error {
			art, err := render.Render(target, n, info, req)
			if err != nil {
				return fmt.Errorf("%s: %w", target, err)
			}
			logger.Debug("rendered",
				zap.String("target", target),
				zap.Bool("degraded", art.Degraded),
				zap.Strings("notes", art.Notes))
			out[i] = RenderedTarget{
				Target:   target,
				Code:     art.Code,
				Notes:    art.Notes,
				Degraded: art.Degraded,
				Warnings: art.Warnings,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
