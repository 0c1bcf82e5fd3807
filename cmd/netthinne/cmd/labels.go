package cmd

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/netthinne/internal/labels"
)

func newLabelsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "labels [detector|classifier]",
		Short: "Print the class labels used by a model",
		Long: `Print one "index<TAB>label" line per class.

The detector uses the built-in COCO labels. Classifier labels are read from the
models directory; Norwegian names fall back to dictionary translation when no
Norwegian label file is installed.

Examples:
  netthinne labels
  netthinne labels classifier --lang no`,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"detector", "classifier"},
		RunE: func(cmd *cobra.Command, args []string) error {
			langFlag, _ := cmd.Flags().GetString("lang")
			lang, err := labels.ParseLanguage(langFlag)
			if err != nil {
				return err
			}

			model := "detector"
			if len(args) == 1 {
				model = args[0]
			}

			var (
				n       int
				resolve func(int) labels.Pair
			)
			if model == "detector" {
				set := labels.Set{DetectorEN: labels.COCO(labels.English), DetectorNO: labels.COCO(labels.Norwegian)}
				n, resolve = set.DetectorEN.Len(), set.Detector
			} else {
				set, err := labels.LoadSet(a.cfg.ModelsDir)
				if err != nil {
					return err
				}
				if set.ClassifierEN.Len() == 0 {
					return fmt.Errorf("no classifier labels found in %s", a.cfg.ModelsDir)
				}
				n, resolve = set.ClassifierEN.Len(), set.Classifier
			}

			w := bufio.NewWriter(cmd.OutOrStdout())
			for i := range n {
				p := resolve(i)
				label := p.EN
				if lang == labels.Norwegian {
					label = p.NO
				}
				_, _ = fmt.Fprintf(w, "%d\t%s\n", i, label)
			}
			return w.Flush()
		},
	}
	cmd.Flags().String("lang", "en", "label language: en or no")
	return cmd
}
