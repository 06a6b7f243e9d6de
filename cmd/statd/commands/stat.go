package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// StatCmd prints per-statfile statistics
var StatCmd = &cobra.Command{
	Use:   "stat",
	Short: "Show per-statfile statistics",
	Long:  "Show learns and stored tokens for every statfile that loaded, in id order",
	Args:  cobra.NoArgs,
	RunE:  runStat,
}

func runStat(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		printHints(err)
		return err
	}
	defer s.close()

	stats, err := s.sc.Stats(cmd.Context())
	if err != nil {
		return err
	}

	data := pterm.TableData{{"ID", "Symbol", "Classifier", "Backend", "Class", "Learns", "Tokens"}}
	for _, st := range stats {
		data = append(data, []string{
			fmt.Sprintf("%d", st.ID),
			st.Symbol,
			st.Classifier,
			st.Backend,
			className(st.Spam),
			fmt.Sprintf("%d", st.Learns),
			fmt.Sprintf("%d", st.Tokens),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
