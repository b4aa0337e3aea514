package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gonkalabs/piiscan/internal/sanitize"
)

type scanOpts struct {
	enable   []string
	disable  []string
	local    bool
	textOnly bool
	maxChars int
}

func newScanCmd(a *app) *cobra.Command {
	var o scanOpts
	cmd := &cobra.Command{
		Use:   "scan [file]",
		Short: "Detect and redact PII in a file or stdin",
		Long: `Scan reads text from the given file (or stdin when omitted or "-") and
prints the detection report as JSON.

Categories are toggled with setting keys or their short forms, e.g.
  piiscan scan notes.txt --enable ssn,credit_card --disable name`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, span := tracer.Start(cmd.Context(), "scan")
			defer span.End()

			text, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			if o.maxChars <= 0 {
				o.maxChars = a.cfg.MaxInputChars
			}
			if n := len([]rune(text)); n > o.maxChars {
				return fmt.Errorf("input has %d characters, limit is %d", n, o.maxChars)
			}

			settings, err := scanSettings(o.enable, o.disable)
			if err != nil {
				return err
			}

			full, local, err := engines(a.cfg)
			if err != nil {
				return err
			}
			eng := full
			if o.local {
				eng = local
			}
			rep := eng.Detect(ctx, text, settings)

			out := cmd.OutOrStdout()
			if o.textOnly {
				_, err = fmt.Fprintln(out, rep.Sanitized)
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}
	cmd.Flags().StringSliceVar(&o.enable, "enable", nil, "setting keys to turn on")
	cmd.Flags().StringSliceVar(&o.disable, "disable", nil, "setting keys to turn off")
	cmd.Flags().BoolVar(&o.local, "local", false, "skip the NER and LLM extractors")
	cmd.Flags().BoolVar(&o.textOnly, "text", false, "print only the sanitized text")
	cmd.Flags().IntVar(&o.maxChars, "max-chars", 0, "input limit in characters (default max_input_chars)")
	return cmd
}

func readInput(stdin io.Reader, args []string) (string, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return string(data), nil
}

// scanSettings applies enable then disable on top of the defaults.
func scanSettings(enable, disable []string) (sanitize.Settings, error) {
	flags := make(map[string]bool, len(enable)+len(disable))
	for _, k := range enable {
		flags[k] = true
	}
	for _, k := range disable {
		flags[k] = false
	}
	return sanitize.DefaultSettings().Apply(flags)
}
