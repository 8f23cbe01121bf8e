// Command riskctl trains the failure-risk model and scores equipment from the
// command line.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/cmms-risk/internal/app"
	"github.com/ukydev/cmms-risk/internal/config"
	"github.com/ukydev/cmms-risk/internal/notify"
)

// runtime is what every subcommand receives through Execute's args.
type runtime struct {
	cfg  *config.Config
	log  *logrus.Logger
	out  io.Writer
	now  func() time.Time
	open func(ctx context.Context) (*app.App, error)
	// dialMQTT returns a connected publisher and its disconnect func.
	dialMQTT func(cfg notify.Config) (notify.Publisher, func(), error)
}

func runtimeFrom(args []interface{}) *runtime {
	for _, a := range args {
		if rt, ok := a.(*runtime); ok {
			return rt
		}
	}
	panic("riskctl: runtime not passed to command")
}

func dialMQTT(cfg notify.Config) (notify.Publisher, func(), error) {
	client, err := notify.Connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	return client, func() { client.Disconnect(250) }, nil
}

func newCommander(fs *flag.FlagSet) *subcommands.Commander {
	cmdr := subcommands.NewCommander(fs, "riskctl")
	cmdr.Register(cmdr.HelpCommand(), "help")
	cmdr.Register(cmdr.FlagsCommand(), "help")
	cmdr.Register(cmdr.CommandsCommand(), "help")
	cmdr.Register(&trainCommand{}, "model")
	cmdr.Register(&predictCommand{}, "model")
	cmdr.Register(&reportCommand{}, "model")
	cmdr.Register(&demoCommand{}, "")
	return cmdr
}

func main() {
	log := logrus.StandardLogger()
	log.SetOutput(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	if err := cfg.ConfigureLogger(log); err != nil {
		log.WithError(err).Fatal("Invalid log settings")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt := &runtime{
		cfg:      cfg,
		log:      log,
		out:      os.Stdout,
		now:      func() time.Time { return time.Now().UTC() },
		open:     func(ctx context.Context) (*app.App, error) { return app.Open(ctx, cfg, log) },
		dialMQTT: dialMQTT,
	}

	cmdr := newCommander(flag.CommandLine)
	flag.Parse()
	os.Exit(int(cmdr.Execute(ctx, rt)))
}
