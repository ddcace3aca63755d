package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/uhyunpark/clobrelay/params"
	"github.com/uhyunpark/clobrelay/pkg/api"
	"github.com/uhyunpark/clobrelay/pkg/clob"
	"github.com/uhyunpark/clobrelay/pkg/crypto"
	"github.com/uhyunpark/clobrelay/pkg/gamma"
	"github.com/uhyunpark/clobrelay/pkg/storage"
	"github.com/uhyunpark/clobrelay/pkg/trading"
	"github.com/uhyunpark/clobrelay/pkg/upstream"
	"github.com/uhyunpark/clobrelay/pkg/util"
)

var Version = "dev"

func main() {
	app := &cli.App{
		Name:    "clobrelay",
		Usage:   "REST relay for the Polymarket CLOB",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file to load (default: .env in the working directory)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "override LOG_LEVEL (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "listen address, overrides API_ADDR/PORT",
					},
				},
				Action: cmdServe,
			},
			{
				Name:   "derive-key",
				Usage:  "create or derive L2 API credentials for the configured wallet",
				Action: cmdDeriveKey,
			},
			{
				Name:  "sign-order",
				Usage: "build and sign an order without posting it",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "token", Usage: "CLOB token id", Required: true},
					&cli.StringFlag{Name: "side", Value: "UP", Usage: "UP or DOWN"},
					&cli.StringFlag{Name: "price", Usage: "price in cents (0-100)", Required: true},
					&cli.StringFlag{Name: "quantity", Usage: "number of outcome tokens", Required: true},
					&cli.StringFlag{Name: "tick-size", Value: "0.01", Usage: "market tick size"},
					&cli.BoolFlag{Name: "neg-risk", Usage: "sign for the neg-risk exchange"},
				},
				Action: cmdSignOrder,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) params.Config {
	cfg := params.LoadFromEnv(c.String("env-file"))
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	return cfg
}

func newLogger(cfg params.Config) (*zap.Logger, error) {
	if cfg.Logging.File != "" {
		return util.NewLoggerWithFile(cfg.Logging.File, cfg.Logging.Level)
	}
	return util.NewLogger(cfg.Logging.Level)
}

func cmdServe(c *cli.Context) error {
	cfg := loadConfig(c)
	if addr := c.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return errors.Wrap(err, "logger")
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	clobHTTP := upstream.New(cfg.Upstream.ClobHost, cfg.Upstream.HTTPTimeout)
	gammaHTTP := upstream.New(cfg.Upstream.GammaHost, cfg.Upstream.HTTPTimeout)

	backend := trading.NewClobBackend(clobHTTP, cfg.Upstream.ChainID)
	store := trading.NewCredentialStore(trading.Credentials{
		PrivateKey:    cfg.Wallet.PrivateKey,
		FunderAddress: cfg.Wallet.FunderAddress,
		SignatureType: cfg.Wallet.SignatureType,
	})
	clock := util.RealClock{}
	sessions := trading.NewSessionInitializer(backend, clock, cfg.Timing.CredentialDelay, cfg.Timing.SessionDelay, sugar)
	submitter := trading.NewSubmitter(clock, cfg.Timing.SubmitDelay, sugar)
	workflow := trading.NewWorkflow(store, sessions, submitter, sugar)

	var journal storage.Journal
	if cfg.Storage.JournalPath != "" {
		pj, err := storage.NewPebbleJournal(cfg.Storage.JournalPath)
		if err != nil {
			return errors.Wrap(err, "open journal")
		}
		defer pj.Close()
		journal = pj
		sugar.Infow("journal_opened", "path", cfg.Storage.JournalPath)
	}

	srv := api.NewServer(api.Deps{
		Workflow:    workflow,
		Store:       store,
		Times:       backend,
		Markets:     gamma.New(gammaHTTP, cfg.Upstream.MarketSlugPrefix),
		Journal:     journal,
		Clock:       clock,
		Logger:      sugar,
		DevMode:     cfg.IsDevelopment(),
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	sugar.Infow("server_starting",
		"addr", cfg.Server.Addr,
		"env", cfg.Server.Env,
		"clob_host", cfg.Upstream.ClobHost,
		"chain_id", cfg.Upstream.ChainID,
		"default_funder", store.DefaultFunder(),
	)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx, cfg.Server.Addr); err != nil {
		sugar.Errorw("server_failed", "err", err)
		return err
	}
	sugar.Infow("server_stopped")
	return nil
}

func cmdDeriveKey(c *cli.Context) error {
	cfg := loadConfig(c)
	if cfg.Wallet.PrivateKey == "" {
		return errors.New("PRIVATE_KEY is not set")
	}

	id, err := crypto.FromPrivateKey(cfg.Wallet.PrivateKey)
	if err != nil {
		return errors.Wrap(err, "load private key")
	}

	hc := upstream.New(cfg.Upstream.ClobHost, cfg.Upstream.HTTPTimeout)
	client := clob.New(hc, cfg.Upstream.ChainID, id)

	ctx, cancel := context.WithTimeout(c.Context, 2*cfg.Upstream.HTTPTimeout)
	defer cancel()

	creds, err := client.CreateOrDeriveAPIKey(ctx)
	if err != nil {
		return errors.Wrap(err, "derive api key")
	}

	// The secret stays out of the terminal.
	fmt.Printf("Address:    %s\n", id.Address().Hex())
	fmt.Printf("API key:    %s\n", creds.APIKey)
	fmt.Printf("Passphrase: %s\n", creds.Passphrase)
	return nil
}

func cmdSignOrder(c *cli.Context) error {
	cfg := loadConfig(c)
	if cfg.Wallet.PrivateKey == "" {
		return errors.New("PRIVATE_KEY is not set")
	}
	if cfg.Wallet.FunderAddress == "" {
		return errors.New("FUNDER_ADDRESS is not set")
	}

	var side trading.Side
	switch strings.ToUpper(c.String("side")) {
	case string(trading.Up):
		side = trading.Up
	case string(trading.Down):
		side = trading.Down
	default:
		return errors.Errorf("side must be UP or DOWN, got %q", c.String("side"))
	}

	cents, err := decimal.NewFromString(c.String("price"))
	if err != nil || cents.IsNegative() || cents.GreaterThan(decimal.NewFromInt(100)) {
		return errors.Errorf("price must be a number of cents between 0 and 100, got %q", c.String("price"))
	}
	size, err := decimal.NewFromString(c.String("quantity"))
	if err != nil || !size.IsPositive() {
		return errors.Errorf("quantity must be a positive number, got %q", c.String("quantity"))
	}

	id, err := crypto.FromPrivateKey(cfg.Wallet.PrivateKey)
	if err != nil {
		return errors.Wrap(err, "load private key")
	}

	hc := upstream.New(cfg.Upstream.ClobHost, cfg.Upstream.HTTPTimeout)
	client, err := clob.New(hc, cfg.Upstream.ChainID, id).
		WithCredentials(clob.Credentials{}, clob.SignatureType(cfg.Wallet.SignatureType), cfg.Wallet.FunderAddress)
	if err != nil {
		return errors.Wrap(err, "configure client")
	}

	order, err := client.CreateOrder(clob.OrderArgs{
		TokenID: c.String("token"),
		Price:   cents.Div(decimal.NewFromInt(100)),
		Size:    size,
		Side:    side.BackendSide(),
	}, clob.OrderOptions{
		TickSize: c.String("tick-size"),
		NegRisk:  c.Bool("neg-risk"),
	})
	if err != nil {
		return errors.Wrap(err, "sign order")
	}

	out, err := json.MarshalIndent(order, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
