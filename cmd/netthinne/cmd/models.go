package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/netthinne/internal/models"
)

func newModelsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List model and label files and whether they are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status := models.Status(a.cfg.ModelsDir)
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintf(tw, "Models directory: %s\n\n", a.cfg.ModelsDir)
			_, _ = fmt.Fprintln(tw, "NAME\tTYPE\tREQUIRED\tINSTALLED\tPATH")
			missing := 0
			for _, s := range status {
				if s.Required && !s.Available {
					missing++
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					s.Name, s.Type, yesNo(s.Required), yesNo(s.Available), s.Path)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if missing > 0 {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\n%d required file(s) missing\n", missing)
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "print the status as JSON")
	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
