package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/polyglot/internal/eval"
	"github.com/roach88/polyglot/internal/parser"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	File string
	Data string
}

// EvalResult is the JSON payload for one evaluation.
type EvalResult struct {
	Kind  string          `json:"kind"`
	Int   *int64          `json:"int,omitempty"`
	Bool  *bool           `json:"bool,omitempty"`
	List  []int64         `json:"list,omitempty"`
	Set   []int64         `json:"set,omitempty"`
	Dict  map[int64]int64 `json:"dict,omitempty"`
	Order []int64         `json:"order,omitempty"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval [expression]",
		Short: "Evaluate an expression with the sequential reference semantics",
		Long: `Eval runs the expression directly, in clause order, with truncating
integer division and last-write-wins dict insertion. Collection data
comes from a YAML file via --data.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read the expression from a file")
	cmd.Flags().StringVarP(&opts.Data, "data", "d", "", "YAML file with collection records")

	return cmd
}

func runEval(opts *EvalOptions, args []string, cmd *cobra.Command) error {
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

	var data eval.Data
	if opts.Data != "" {
		data, err = eval.LoadData(opts.Data)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInput, err.Error())
		}
		logger.Debug("data loaded", zap.String("path", opts.Data), zap.Int("collections", len(data)))
	}

	n, err := parser.Parse(src)
	if err != nil {
		exitCode, errCode := classify(err)
		return formatter.Fail(exitCode, errCode, err.Error())
	}

	res, err := eval.Evaluate(n, data)
	if err != nil {
		if eval.IsEvalError(err) {
			return formatter.Fail(ExitFailure, ErrCodeEval, err.Error())
		}
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error())
	}

	if opts.Format == "json" {
		return formatter.SuccessJSON(toEvalResult(res))
	}
	fmt.Fprintln(formatter.Writer, formatResult(res))
	return nil
}

func toEvalResult(res *eval.Result) EvalResult {
	out := EvalResult{Kind: string(res.Kind)}
	switch res.Kind {
	case eval.KindInt:
		out.Int = &res.Int
	case eval.KindBool:
		out.Bool = &res.Bool
	case eval.KindList:
		out.List = res.List
	case eval.KindSet:
		out.Set = sortedSet(res.Set)
	case eval.KindDict:
		out.Dict = res.Dict
		out.Order = res.Keys
	}
	return out
}

// formatResult prints a result the way the source notation would:
// lists in iteration order, sets sorted, dicts in insertion order.
func formatResult(res *eval.Result) string {
	switch res.Kind {
	case eval.KindInt:
		return fmt.Sprintf("%d", res.Int)
	case eval.KindBool:
		if res.Bool {
			return "True"
		}
		return "False"
	case eval.KindList:
		return "[" + joinInts(res.List) + "]"
	case eval.KindSet:
		return "{" + joinInts(sortedSet(res.Set)) + "}"
	case eval.KindDict:
		parts := make([]string, 0, len(res.Keys))
		for _, k := range res.Keys {
			parts = append(parts, fmt.Sprintf("%d: %d", k, res.Dict[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return ""
	}
}

func sortedSet(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func joinInts(vals []int64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ", ")
}
