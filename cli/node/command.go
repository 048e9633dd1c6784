package node

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-sockaddr"
	rungroup "github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vespo92/rhizome/pkg/admin"
	"github.com/vespo92/rhizome/pkg/backoff"
	"github.com/vespo92/rhizome/pkg/config"
	"github.com/vespo92/rhizome/pkg/gossip"
	"github.com/vespo92/rhizome/pkg/log"
	"github.com/vespo92/rhizome/pkg/rhizome"
	"github.com/vespo92/rhizome/pkg/statesync"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "start a node",
		Long: `Start a node.

The node gossips with its peers to disseminate messages and replicate
the cluster state store. Use '--cluster.join' to configure the existing
members to join.

Examples:
  # Start a node.
  rhizome node

  # Start a node, listening for gossip packets on :8000 and admin
  # connections on :8001.
  rhizome node --cluster.bind-addr :8000 --admin.bind-addr :8001

  # Start a node and join an existing cluster.
  rhizome node --cluster.join node-1@10.26.104.14:7470
`,
	}

	var conf Config
	conf.Default()

	var configPath string
	cmd.Flags().StringVar(
		&configPath,
		"config.path",
		"",
		`
YAML config file path.`,
	)

	var configExpandEnv bool
	cmd.Flags().BoolVar(
		&configExpandEnv,
		"config.expand-env",
		false,
		`
Whether to expand environment variables in the config file.

This will replaces references to ${VAR} or $VAR with the corresponding
environment variable. The replacement is case-sensitive.

References to undefined variables will be replaced with an empty string. A
default value can be given using form ${VAR:default}.`,
	)

	// Register flags and set default values.
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if configPath != "" {
			if err := config.Load(&conf, configPath, configExpandEnv); err != nil {
				fmt.Printf("load config: %s\n", err.Error())
				os.Exit(1)
			}
		}

		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		logger, err := log.NewLogger(conf.Log.Level, conf.Log.Subsystems)
		if err != nil {
			fmt.Printf("failed to setup logger: %s\n", err.Error())
			os.Exit(1)
		}

		if conf.Node.ID == "" {
			conf.Node.ID = uuid.New().String()
		}

		if conf.Cluster.AdvertiseAddr == "" {
			advertiseAddr, err := advertiseAddrFromBindAddr(conf.Cluster.BindAddr)
			if err != nil {
				logger.Error("invalid configuration", zap.Error(err))
				os.Exit(1)
			}
			conf.Cluster.AdvertiseAddr = advertiseAddr
		}

		if err := run(&conf, logger); err != nil {
			logger.Error("failed to run node", zap.Error(err))
			os.Exit(1)
		}
	}

	return cmd
}

func run(conf *Config, logger log.Logger) error {
	logger.Info(
		"starting node",
		zap.String("node-id", conf.Node.ID),
		zap.String("advertise-addr", conf.Cluster.AdvertiseAddr),
	)

	registry := prometheus.NewRegistry()

	transport, err := gossip.NewUDPTransport(
		conf.Cluster.BindAddr, conf.Node.Gossip.MaxPacketSize, logger,
	)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}

	var signer gossip.Signer
	if conf.Cluster.AuthKey != "" {
		signer = gossip.NewHMACSigner([]byte(conf.Cluster.AuthKey))
	} else {
		signer = gossip.NewInsecureSigner()
	}

	node := rhizome.NewNode(conf.Node, transport, signer, nil, logger)
	node.Engine().Metrics().Register(registry)
	node.Store().Metrics().Register(registry)

	if err := joinCluster(
		context.Background(), conf, transport, node.Engine(), logger,
	); err != nil {
		return err
	}

	adminLn, err := net.Listen("tcp", conf.Admin.BindAddr)
	if err != nil {
		return fmt.Errorf("admin listen: %s: %w", conf.Admin.BindAddr, err)
	}
	adminServer := admin.NewServer(registry, logger)
	adminServer.AddStatus("/gossip", gossip.NewStatus(node.Engine()))
	adminServer.AddStatus("/sync", statesync.NewStatus(node.Store()))

	var group rungroup.Group

	// Termination handler.
	signalCtx, signalCancel := context.WithCancel(context.Background())
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	group.Add(func() error {
		select {
		case sig := <-signalCh:
			logger.Info(
				"received shutdown signal",
				zap.String("signal", sig.String()),
			)
			return nil
		case <-signalCtx.Done():
			return nil
		}
	}, func(error) {
		signalCancel()
	})

	// Node.
	group.Add(func() error {
		node.Start()
		<-signalCtx.Done()
		return nil
	}, func(error) {
		if err := node.Stop(); err != nil {
			logger.Warn("failed to stop node", zap.Error(err))
		}

		logger.Info("node shut down")
	})

	// Admin server.
	group.Add(func() error {
		if err := adminServer.Serve(adminLn); err != nil {
			return fmt.Errorf("admin server serve: %w", err)
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), time.Second*15,
		)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to gracefully shutdown admin server", zap.Error(err))
		}

		logger.Info("admin server shut down")
	})

	if err := group.Run(); err != nil {
		return err
	}

	logger.Info("shutdown complete")

	return nil
}

// joinCluster registers the configured members as gossip peers.
//
// Member addresses may not resolve when the node first starts, such as
// when the cluster is being provisioned, so retries each unresolved
// member 5 times (with backoff).
func joinCluster(
	ctx context.Context,
	conf *Config,
	transport *gossip.UDPTransport,
	engine *gossip.Engine,
	logger log.Logger,
) error {
	pending := make(map[string]string)
	for _, member := range conf.Cluster.Join {
		id, addr, err := splitMember(member)
		if err != nil {
			return err
		}
		if id == conf.Node.ID {
			continue
		}
		pending[id] = addr
	}

	backoff := backoff.New(5, time.Second, time.Minute)
	for len(pending) > 0 {
		if !backoff.Wait(ctx) {
			return fmt.Errorf("join: %d members unreachable", len(pending))
		}

		for id, addr := range pending {
			if err := transport.AddPeer(id, addr); err != nil {
				logger.Warn(
					"failed to join member",
					zap.String("peer-id", id),
					zap.String("addr", addr),
					zap.Error(err),
				)
				continue
			}
			engine.AddPeer(id, 1)
			delete(pending, id)

			logger.Info(
				"joined member",
				zap.String("peer-id", id),
				zap.String("addr", addr),
			)
		}
	}
	return nil
}

func advertiseAddrFromBindAddr(bindAddr string) (string, error) {
	if strings.HasPrefix(bindAddr, ":") {
		bindAddr = "0.0.0.0" + bindAddr
	}

	host, port, err := net.SplitHostPort(bindAddr)
	if err != nil {
		return "", fmt.Errorf("invalid bind addr: %s: %w", bindAddr, err)
	}

	if host == "0.0.0.0" {
		ip, err := sockaddr.GetPrivateIP()
		if err != nil {
			return "", fmt.Errorf("get interface addr: %w", err)
		}
		if ip == "" {
			return "", fmt.Errorf("no private ip found")
		}
		return ip + ":" + port, nil
	}
	return bindAddr, nil
}
