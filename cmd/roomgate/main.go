// roomgate relays room sensor uplinks into a hosted key-value tree and
// serves the tree back to devices and operator consoles.
//
// Usage:
//
//	roomgate                 run the relay
//	roomgate hash-password   read a secret on stdin, print its Argon2id hash
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nerrad567/roomgate/internal/api"
	"github.com/nerrad567/roomgate/internal/auth"
	"github.com/nerrad567/roomgate/internal/gateway"
	"github.com/nerrad567/roomgate/internal/infrastructure/config"
	"github.com/nerrad567/roomgate/internal/infrastructure/database"
	"github.com/nerrad567/roomgate/internal/infrastructure/logging"
	"github.com/nerrad567/roomgate/internal/infrastructure/mqtt"
	"github.com/nerrad567/roomgate/internal/store"
	"github.com/nerrad567/roomgate/internal/store/firebase"
	"github.com/nerrad567/roomgate/internal/store/memory"
	"github.com/nerrad567/roomgate/internal/store/sqlite"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// defaultConfigPath is read when ROOMGATE_CONFIG is unset. It may be absent.
	defaultConfigPath = "configs/config.yaml"

	// configEnv names an explicit config file, which must exist.
	configEnv = "ROOMGATE_CONFIG"

	hashPasswordCmd = "hash-password"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == hashPasswordCmd {
		if err := runHashPassword(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It blocks until ctx is cancelled, then shuts down in reverse start order.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting roomgate",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath, optional := getConfigPath()
	cfg, err := config.Load(configPath, optional)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"store_driver", cfg.Store.Driver,
		"log_level", cfg.Logging.Level,
	)
	warnUnsetSecrets(log, cfg)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing store", "error", closeErr)
		}
	}()
	log.Info("store ready", "driver", cfg.Store.Driver)

	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	gwOpts := []gateway.Option{gateway.WithLogger(log), gateway.WithNotifier(hub)}

	mqttClient := connectMQTT(log, cfg.MQTT)
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		//nolint:gosec // qos validated to 0..2 by config
		notifier := gateway.NewBrokerNotifier(mqttClient, mqttClient.Topics(), byte(cfg.MQTT.QoS))
		gwOpts = append(gwOpts, gateway.WithNotifier(notifier))
	}

	gw := gateway.New(st.Store, gateway.Config{
		Secrets: gateway.Secrets{
			Write: cfg.Security.WriteToken,
			Read:  cfg.Security.ReadToken,
			Admin: cfg.Security.AdminPassword,
		},
		SessionSecret: cfg.Security.JWT.Secret,
		OpenDownlink:  cfg.Security.OpenDownlink,
		Maintenance:   cfg.Maintenance,
		StoreTimeout:  cfg.StoreTimeout(),
	}, gwOpts...)
	if cfg.Maintenance {
		log.Warn("maintenance mode engaged: write routes answer 503")
	}

	deps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Gateway:  gw,
		Hub:      hub,
		Store:    st.health,
		Version:  version,
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}

	srv, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	log.Info("roomgate started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	<-ctx.Done()
	log.Info("shutdown signal received")

	if err := srv.Close(); err != nil {
		log.Error("error closing API server", "error", err)
	}
	gw.Wait()

	log.Info("roomgate stopped")
	return nil
}

// getConfigPath returns the config file path and whether it may be missing.
func getConfigPath() (string, bool) {
	if path := os.Getenv(configEnv); path != "" {
		return path, false
	}
	return defaultConfigPath, true
}

// openedStore is a store.Store plus its lifecycle hooks.
type openedStore struct {
	store.Store
	health api.HealthChecker
	close  func() error
}

// Close releases driver resources.
func (s openedStore) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// openStore builds the configured store driver.
func openStore(ctx context.Context, cfg *config.Config) (openedStore, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverFirebase:
		client, err := firebase.New(firebase.Config{
			URL:     cfg.Store.URL,
			Secret:  cfg.Store.Secret,
			Timeout: cfg.StoreTimeout(),
		})
		if err != nil {
			return openedStore{}, err
		}
		return openedStore{Store: client, health: client}, nil

	case config.StoreDriverSQLite:
		db, err := sqlite.Open(ctx, database.Config{
			Path:        cfg.Store.SQLite.Path,
			WALMode:     cfg.Store.SQLite.WALMode,
			BusyTimeout: cfg.Store.SQLite.BusyTimeout,
		})
		if err != nil {
			return openedStore{}, err
		}
		return openedStore{Store: db, health: db, close: db.Close}, nil

	case config.StoreDriverMemory:
		return openedStore{Store: memory.New()}, nil

	default:
		return openedStore{}, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// connectMQTT connects to the broker when enabled. A failed connection is
// logged and the relay runs without broker fan-out.
func connectMQTT(log *logging.Logger, cfg config.MQTTConfig) *mqtt.Client {
	if !cfg.Enabled {
		return nil
	}
	client, err := mqtt.Connect(cfg)
	if err != nil {
		log.Warn("MQTT unavailable, continuing without broker events",
			"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
			"error", err,
		)
		return nil
	}
	client.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)
	return client
}

// warnUnsetSecrets logs each route class that will reject every request.
func warnUnsetSecrets(log *logging.Logger, cfg *config.Config) {
	if cfg.Security.WriteToken == "" {
		log.Warn("write token not configured: all uplinks will be rejected")
	}
	if cfg.Security.ReadToken == "" && !cfg.Security.OpenDownlink {
		log.Warn("read token not configured: all downlinks will be rejected")
	}
	if cfg.Security.AdminPassword == "" {
		log.Warn("admin password not configured: all commands will be rejected")
	}
}

// runHashPassword reads one line from in and prints its Argon2id hash.
func runHashPassword(in io.Reader, out io.Writer) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading password: %w", err)
	}
	hash, err := auth.HashPassword(strings.TrimRight(line, "\r\n"))
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}
