package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/polyglot/internal/render"
)

// TargetInfo describes one backend's capability row.
type TargetInfo struct {
	Name               string   `json:"name"`
	Broadcast          bool     `json:"broadcast"`
	ParallelOps        []string `json:"parallel_ops,omitempty"`
	ParallelContainers bool     `json:"parallel_containers"`
}

// NewTargetsCommand creates the targets command.
func NewTargetsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "targets",
		Short:         "List registered targets and their capabilities",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTargets(rootOpts, cmd)
		},
	}
	return cmd
}

func runTargets(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	infos := make([]TargetInfo, 0)
	for _, name := range render.Targets() {
		b, _ := render.Lookup(name)
		caps := b.Capabilities()
		ops := make([]string, 0, len(caps.ParallelOps))
		for op, ok := range caps.ParallelOps {
			if ok {
				ops = append(ops, string(op))
			}
		}
		sort.Strings(ops)
		infos = append(infos, TargetInfo{
			Name:               name,
			Broadcast:          caps.Broadcast,
			ParallelOps:        ops,
			ParallelContainers: caps.ParallelContainers,
		})
	}

	if opts.Format == "json" {
		return formatter.SuccessJSON(infos)
	}

	for _, info := range infos {
		fmt.Fprintf(formatter.Writer, "%-8s broadcast=%-5v parallel_ops=[%s] parallel_containers=%v\n",
			info.Name, info.Broadcast, strings.Join(info.ParallelOps, " "), info.ParallelContainers)
	}
	return nil
}
