package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/libstat/errors"
	"github.com/teranos/libstat/stat"
)

// LearnCmd trains a message into the spam or ham class
var LearnCmd = &cobra.Command{
	Use:   "learn (--spam | --ham) <file|->",
	Short: "Learn a message as spam or ham",
	Long: `Tokenize a message and add it to every classifier, or only to the one
named with --classifier. A message already learned with the same class is
reported and left alone.

Examples:
  statd learn --spam message.eml
  cat message.eml | statd learn --ham -
  statd learn --spam --classifier bayes_user message.eml`,
	Args: cobra.ExactArgs(1),
	RunE: runLearn,
}

var (
	learnSpam       bool
	learnHam        bool
	learnClassifier string
)

func init() {
	LearnCmd.Flags().BoolVar(&learnSpam, "spam", false, "Learn as spam")
	LearnCmd.Flags().BoolVar(&learnHam, "ham", false, "Learn as ham")
	LearnCmd.Flags().StringVar(&learnClassifier, "classifier", "", "Only learn into this classifier")
	LearnCmd.MarkFlagsMutuallyExclusive("spam", "ham")
	LearnCmd.MarkFlagsOneRequired("spam", "ham")
}

func runLearn(cmd *cobra.Command, args []string) error {
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
	err = s.sc.Learn(cmd.Context(), task, learnSpam, learnClassifier)
	switch {
	case errors.Is(err, errors.ErrAlreadyLearned):
		pterm.Warning.Println("Message already learned as " + className(learnSpam))
		return nil
	case err != nil:
		return errors.Wrap(err, "learn")
	}

	pterm.Success.Printf("Learned %d tokens as %s\n", len(task.Tokens()), className(learnSpam))
	return nil
}

func className(spam bool) string {
	if spam {
		return "spam"
	}
	return "ham"
}
