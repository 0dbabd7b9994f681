package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/polyglot/internal/ir"
	"github.com/roach88/polyglot/internal/parser"
)

// ParseOptions holds flags for the parse command.
type ParseOptions struct {
	*RootOptions
	File string
}

// NewParseCommand creates the parse command.
func NewParseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ParseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "parse [expression]",
		Short: "Parse an expression and print its canonical IR JSON",
		Long: `Parse checks the expression against the restricted grammar and prints
the canonical JSON form, byte-identical across runs for equivalent
input.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read the expression from a file")

	return cmd
}

func runParse(opts *ParseOptions, args []string, cmd *cobra.Command) error {
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

	n, err := parser.Parse(src)
	if err != nil {
		exitCode, errCode := classify(err)
		return formatter.Fail(exitCode, errCode, err.Error())
	}

	raw, err := ir.EncodeCanonical(n)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error())
	}

	if opts.Format == "json" {
		return formatter.SuccessJSON(json.RawMessage(raw))
	}
	fmt.Fprintln(formatter.Writer, string(raw))
	return nil
}
