package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/libstat/errors"
	"github.com/teranos/libstat/stat"
)

// ClassifyCmd runs every classifier over a message
var ClassifyCmd = &cobra.Command{
	Use:   "classify <file|->",
	Short: "Classify a message",
	Long: `Tokenize a message and run every configured classifier over it.
Classifiers that have not yet seen enough learns produce no result.`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func runClassify(cmd *cobra.Command, args []string) error {
	text, err := readMessage(args[0])
	if err != nil {
		return err
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		printHints(err)
		return err
	}
	defer s.close()

	task := stat.NewTask(text)
	if err := s.sc.Classify(cmd.Context(), task); err != nil {
		return errors.Wrap(err, "classify")
	}
	if len(task.Results) == 0 {
		pterm.Info.Println("No classifier produced a result")
		return nil
	}

	data := pterm.TableData{{"Classifier", "Symbol", "Class", "Probability", "Tokens"}}
	for _, r := range task.Results {
		data = append(data, []string{
			r.Classifier,
			r.Symbol,
			className(r.Spam),
			fmt.Sprintf("%.4f", r.Probability),
			fmt.Sprintf("%d", r.Tokens),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
