package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"signalrunner/cmd/reconciler"
	"signalrunner/cmd/runner"
	"signalrunner/cmd/snapshots"
	"signalrunner/src/database"
	"signalrunner/src/repository"
	"signalrunner/src/security"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Signalrunner CMD"
	app.Usage = "The signalrunner command line interface"

	app.Commands = []cli.Command{
		runnerCMD,
		reconcilerCMD,
		snapshotsCMD,
		hashTokenCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	runnerCMD = cli.Command{
		Name:        "runner",
		Usage:       "run the full signal runner service",
		Action:      runnerAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run evaluation, reconciliation, snapshots and the HTTP API in one process`,
	}
	reconcilerCMD = cli.Command{
		Name:        "reconciler",
		Usage:       "run the reconciliation loop standalone",
		Action:      reconcilerAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Resolve non-terminal orders against exchange history`,
	}
	snapshotsCMD = cli.Command{
		Name:        "snapshots",
		Usage:       "refresh market snapshots once",
		Action:      snapshotsAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Fetch klines and recompute indicators for every watchlist symbol`,
	}
	hashTokenCMD = cli.Command{
		Name:        "hashtoken",
		Usage:       "hash an API token for API_TOKEN_HASH",
		Action:      hashTokenAction,
		ArgsUsage:   "<token>",
		Flags:       []cli.Flag{},
		Description: `Print the bcrypt hash of a bearer token`,
	}
)

func runnerAction(_ *cli.Context) error {

	logrus.Info("Starting runner CMD")
	logrus.WithField("cmd", "runner")

	svc := &runner.Runner{}
	err := svc.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func reconcilerAction(_ *cli.Context) error {

	logrus.Info("Starting reconciler CMD")
	logrus.WithField("cmd", "reconciler")

	svc := &reconciler.Reconciler{}
	err := svc.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

// snapshotsAction runs one indicator refresh over the whole watchlist.
func snapshotsAction(_ *cli.Context) error {

	logrus.Info("Starting snapshots CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	producer := snapshots.NewProducer(
		repository.NewWatchlistRepository(),
		repository.NewSnapshotRepository(),
	)

	err := producer.Start(context.Background())
	if err != nil {
		logrus.WithError(err).Error("Starting snapshots cmd")
		return err
	}

	return nil
}

func hashTokenAction(c *cli.Context) error {
	token := c.Args().First()
	if token == "" {
		return errors.New("usage: hashtoken <token>")
	}

	hashed, err := security.HashToken(token)
	if err != nil {
		return err
	}

	fmt.Println(hashed)
	return nil
}
