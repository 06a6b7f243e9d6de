// Package commands implements the statd subcommands
package commands

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/pterm/pterm"

	"github.com/teranos/libstat/builtin"
	"github.com/teranos/libstat/config"
	"github.com/teranos/libstat/errors"
	"github.com/teranos/libstat/logger"
	"github.com/teranos/libstat/loop"
	"github.com/teranos/libstat/stat"
)

// ConfigPath is the --config flag shared by every subcommand
var ConfigPath string

// session is a bootstrapped context plus the runtime it schedules on
type session struct {
	cfg *config.Config
	rt  *loop.Loop
	sc  *stat.Context
}

// openSession loads the configuration and bootstraps a stat context with the
// bundled providers. The caller must call close.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load(ConfigPath)
	if err != nil {
		return nil, err
	}

	reg, err := builtin.NewRegistry(logger.Logger)
	if err != nil {
		return nil, err
	}

	rt := loop.New(ctx)
	sc, err := stat.Init(reg, cfg, rt, logger.Logger.Named("stat"))
	if err != nil {
		_ = rt.Stop()
		return nil, err
	}
	return &session{cfg: cfg, rt: rt, sc: sc}, nil
}

func (s *session) close() {
	s.sc.Close()
	if err := s.rt.Stop(); err != nil {
		logger.Warnw("Runtime stopped with error", logger.FieldError, err)
	}
}

// printHints shows operator hints attached to err, if any
func printHints(err error) {
	for _, h := range errors.GetAllHints(err) {
		pterm.Info.Println(h)
	}
}

// readMessage reads the message named by arg, or stdin for "-"
func readMessage(arg string) (string, error) {
	var r io.Reader = os.Stdin
	if arg != "-" {
		f, err := os.Open(arg)
		if err != nil {
			return "", errors.Wrapf(err, "open %s", arg)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Wrapf(err, "read %s", arg)
	}
	return strings.TrimSpace(string(data)), nil
}
