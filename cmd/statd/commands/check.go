package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// CheckCmd bootstraps the configuration and reports what loaded
var CheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Bootstrap the configuration and report loaded statfiles",
	Long: `Load the configuration, resolve every classifier, tokenizer, backend
and cache by name and open every statfile.

An unknown provider name fails the check. A statfile whose backend cannot
be opened is reported and skipped, the same way a running process would.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		pterm.Error.Println("Bootstrap failed")
		printHints(err)
		return err
	}
	defer s.close()

	configured := 0
	for _, def := range s.cfg.Classifiers {
		configured += len(def.Statfiles)
	}
	loaded := len(s.sc.Statfiles())

	for _, cl := range s.sc.Classifiers() {
		pterm.Info.Printf("Classifier %s: %d statfiles\n", cl.Name(), len(cl.StatfileIDs()))
	}
	if loaded < configured {
		pterm.Warning.Printf("%d of %d statfiles loaded, see log for failures\n", loaded, configured)
		return nil
	}
	pterm.Success.Printf("%d classifiers, %d statfiles loaded\n", len(s.sc.Classifiers()), loaded)
	return nil
}
