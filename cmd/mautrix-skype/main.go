// Copyright 2024-2026 Aiku AI

// Command mautrix-skype is a Matrix-Skype puppeting bridge. It relays
// messages, edits, deletions, files and typing notifications between the
// two networks, one puppeted Skype account per linked user.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
	"maunium.net/go/mautrix/appservice"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/mautrix-skype/pkg/connector"
	"github.com/aiku/mautrix-skype/pkg/mxbridge"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

type bridgeConfig struct {
	Homeserver struct {
		Address string `yaml:"address"`
		Domain  string `yaml:"domain"`
	} `yaml:"homeserver"`
	Appservice struct {
		ID              string `yaml:"id"`
		Hostname        string `yaml:"hostname"`
		Port            uint16 `yaml:"port"`
		ASToken         string `yaml:"as_token"`
		HSToken         string `yaml:"hs_token"`
		SenderLocalpart string `yaml:"sender_localpart"`
	} `yaml:"appservice"`
	Bridge  mxbridge.Config  `yaml:"bridge"`
	Skype   connector.Config `yaml:"skype"`
	Logging struct {
		MinLevel string `yaml:"min_level"`
	} `yaml:"logging"`
}

func loadConfig(path string) (*bridgeConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg bridgeConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Skype.PostProcess(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func makeLogger(minLevel string) (zerolog.Logger, error) {
	level := zerolog.DebugLevel
	if minLevel != "" {
		var err error
		level, err = zerolog.ParseLevel(minLevel)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", minLevel, err)
		}
	}
	writer := zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.TimeFormat = time.StampMilli
	})
	return zerolog.New(writer).With().Timestamp().Logger().Level(level), nil
}

func makeAppservice(cfg *bridgeConfig, log zerolog.Logger) (*appservice.AppService, error) {
	reg := appservice.CreateRegistration()
	reg.ID = cfg.Appservice.ID
	reg.AppToken = cfg.Appservice.ASToken
	reg.ServerToken = cfg.Appservice.HSToken
	reg.SenderLocalpart = cfg.Appservice.SenderLocalpart
	if reg.ID == "" {
		reg.ID = "skype"
	}
	if reg.SenderLocalpart == "" {
		reg.SenderLocalpart = "skypebridge"
	}
	prefix := cfg.Bridge.GhostPrefix
	if prefix == "" {
		prefix = "_skype_"
	}
	reg.Namespaces.UserIDs.Register(regexp.MustCompile(fmt.Sprintf(
		"^@%s.+:%s$", regexp.QuoteMeta(prefix), regexp.QuoteMeta(cfg.Homeserver.Domain),
	)), true)

	as := appservice.Create()
	as.Registration = reg
	as.HomeserverDomain = cfg.Homeserver.Domain
	as.Host = appservice.HostConfig{
		Hostname: cfg.Appservice.Hostname,
		Port:     cfg.Appservice.Port,
	}
	as.Log = log.With().Str("component", "appservice").Logger()
	if err := as.SetHomeserverURL(cfg.Homeserver.Address); err != nil {
		return nil, fmt.Errorf("invalid homeserver address: %w", err)
	}
	return as, nil
}

func runAdminAPI(addr string, promReg *prometheus.Registry, sc *connector.SkypeConnector, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/admin/accounts", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sc.AccountStates())
	})
	mux.HandleFunc("/admin/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"tag":        Tag,
			"commit":     Commit,
			"build_time": BuildTime,
		})
	})
	log.Info().Str("address", addr).Msg("Admin API listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Err(err).Msg("Admin API server exited")
	}
}

func main() {
	configPath := flag.String("c", "config.yaml", "path to the config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := makeLogger(cfg.Logging.MinLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log.Info().Str("tag", Tag).Str("commit", Commit).Msg("Starting mautrix-skype")

	as, err := makeAppservice(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up appservice")
	}
	if cfg.Bridge.HomeserverDomain == "" {
		cfg.Bridge.HomeserverDomain = cfg.Homeserver.Domain
	}

	bridge := mxbridge.NewBridge(as, cfg.Bridge, log)
	store := mxbridge.NewMemStore()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	sc := connector.NewSkypeConnector(bridge, store, log, promReg)
	*sc.Config() = cfg.Skype
	bridge.SetRoomInfoResolver(sc.CreateRoom)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ep := appservice.NewEventProcessor(as)
	bridge.AttachEventProcessor(ep, sc)
	go ep.Start(ctx)
	go as.Start()
	defer as.Stop()

	for _, acct := range cfg.Skype.Accounts {
		if acct.Owner != "" {
			bridge.RegisterAccount(acct.ID, id.UserID(acct.Owner))
		}
	}
	if err := sc.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start connector")
	}

	addr := cfg.Skype.AdminAPIAddr
	if addr == "" {
		addr = ":29321"
	}
	go runAdminAPI(addr, promReg, sc, log)

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	sc.Stop()
	ep.Stop()
}
