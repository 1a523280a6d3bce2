package main

import (
	"context"
	"crypto/rand"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OdyseeTeam/lattice-wallet/blockchain"
	"github.com/OdyseeTeam/lattice-wallet/builder"
	"github.com/OdyseeTeam/lattice-wallet/config"
	"github.com/OdyseeTeam/lattice-wallet/ledger"
	"github.com/OdyseeTeam/lattice-wallet/protocol"
	"github.com/OdyseeTeam/lattice-wallet/replica"
	"github.com/OdyseeTeam/lattice-wallet/server"
	"github.com/OdyseeTeam/lattice-wallet/storage"
	"github.com/OdyseeTeam/lattice-wallet/synchronizer"
	"github.com/OdyseeTeam/lattice-wallet/wallet"

	"github.com/cockroachdb/errors"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "wallet.json", "path to the JSON config file")
	nodeURL := flag.String("node", "", "node websocket url, overrides the config")
	dataDir := flag.String("data", "", "block journal directory, overrides the config")
	exportPath := flag.String("export", "", "write a balance CSV once every account caught up, then exit")
	exportTimeout := flag.Duration("export-timeout", time.Minute, "how long -export waits for accounts to catch up")
	memProfile := flag.Bool("profile", false, "write a memory profile on exit")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	if *memProfile {
		defer profile.Start(profile.MemProfile).Stop()
	}

	conf, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("%+v", err)
	}
	if *nodeURL != "" {
		conf.NodeURL = *nodeURL
	}
	if *dataDir != "" {
		conf.DataDir = *dataDir
	}
	if *debug {
		conf.LogLevel = "debug"
	}
	setupLogging(conf)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, conf, *exportPath, *exportTimeout)
	if err != nil && !errors.Is(err, context.Canceled) {
		logrus.Errorf("%+v", err)
		return
	}
	logrus.Printf("done")
}

func setupLogging(conf config.Config) {
	level, err := logrus.ParseLevel(conf.LogLevel)
	if err != nil {
		logrus.Warnf("unknown log level %q, using info", conf.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if conf.LogJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func loadWallet(conf config.Config) (*wallet.Wallet, error) {
	if conf.Seed != "" {
		seed, err := conf.SeedBytes()
		if err != nil {
			return nil, err
		}
		return wallet.FromSeed(seed), nil
	}
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, errors.WithStack(err)
	}
	logrus.Warnf("no seed configured, using a throwaway wallet")
	return wallet.FromSeed(seed), nil
}

func run(ctx context.Context, conf config.Config, exportPath string, exportTimeout time.Duration) error {
	db, err := storage.Open(conf.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	cache := ledger.NewCache().WithJournal(ledger.NewJournal(db))
	warmed, err := cache.Warm()
	if err != nil {
		return errors.Wrap(err, "warming block cache")
	}
	if warmed > 0 {
		logrus.Infof("loaded %d journaled blocks", warmed)
	}

	w, err := loadWallet(conf)
	if err != nil {
		return err
	}
	reps, err := conf.RepresentativeAccounts()
	if err != nil {
		return err
	}
	if len(reps) == 0 {
		logrus.Warnf("no default representatives configured, new accounts cannot open")
	}

	channel := protocol.NewWebsocketChannel(protocol.WebsocketConfig{URL: conf.NodeURL})
	engine, err := replica.New(conf.Replica(), channel, cache, replica.NewMemoryRepository(), w, builder.New(w, reps), replica.SystemClock{})
	if err != nil {
		return err
	}
	for _, index := range conf.Accounts {
		a := engine.Track(w.Account(index), index)
		logrus.Infof("tracking %s (key %d)", a.Address, index)
	}
	engine.OnChange(func(a *replica.Account) {
		balance := a.Balance()
		logrus.Debugf("%s head %d confirmed %d balance %s", a.Address, a.HeadHeight, a.ConfirmedHeight,
			blockchain.FormatAmount(&balance, blockchain.Decimals))
	})

	loop := synchronizer.New(engine, channel, conf.TickInterval.Duration)
	go channel.Run(ctx)

	if conf.StatusAddr != "" {
		server.Start(ctx, conf.StatusAddr, func(ctx context.Context) ([]server.AccountStatus, error) {
			var statuses []server.AccountStatus
			err := loop.Do(ctx, func() error {
				for _, a := range engine.Accounts() {
					statuses = append(statuses, server.Status(a))
				}
				return nil
			})
			return statuses, err
		})
		logrus.Infof("status on %s/accounts", conf.StatusAddr)
	}

	if exportPath == "" {
		return loop.Run(ctx)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go loop.Run(loopCtx)
	return exportBalances(loopCtx, loop, engine, exportPath, exportTimeout)
}
