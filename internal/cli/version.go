package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, span := tracer.Start(cmd.Context(), "version")
			defer span.End()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "piiscan %s\n", resolvedVersion())
			fmt.Fprintf(out, "Commit: %s\n", Commit)
			fmt.Fprintf(out, "Built:  %s\n", BuildDate)
			fmt.Fprintf(out, "Go:     %s\n", runtime.Version())
			return nil
		},
	}
}
