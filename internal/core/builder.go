package core

import (
	"termphyrio/config"
	"termphyrio/internal/metrics"
	"termphyrio/internal/records"
	"termphyrio/internal/session"
	"termphyrio/internal/transport"
	"termphyrio/util"
)

// Build constructs a ready-to-run App from a validated configuration.
// This is the single place where config values turn into components.
func Build(cfg *config.Config, sink Sink, logger *util.Logger) *App {
	m := metrics.New()
	reg := session.NewRegistry(
		buildConnector(cfg, logger.Named("ssh")),
		session.Options{
			PTY:         cfg.PTY(),
			QueueSize:   cfg.SendQueue,
			HistorySize: cfg.HistorySize,
		},
		m,
		logger.Named("session"),
	)
	return NewApp(reg, openRecords(cfg, logger), m, sink, cfg.ScrollbackSize, logger)
}

// ── builders ─────────────────────────────────────────────────────────

func buildConnector(cfg *config.Config, logger *util.Logger) transport.Connector {
	return transport.NewSSHConnector(transport.SSHOptions{
		HostKeyPolicy:     cfg.Policy(),
		KnownHosts:        cfg.KnownHostsPath,
		ConnTimeout:       cfg.ConnTimeout,
		KeepAliveInterval: cfg.KeepAlive,
		Dialer:            &transport.TCPDialer{Timeout: cfg.ConnTimeout},
	}, logger)
}

// openRecords loads the connection records.  A broken file disables
// remembering for this run instead of preventing startup.
func openRecords(cfg *config.Config, logger *util.Logger) *records.Store {
	store, err := records.Open(cfg.RecordsFile)
	if err != nil {
		logger.Warn("connection records disabled: %v", err)
		return nil
	}
	logger.Debug("loaded %d connection records from %s", store.Len(), store.Path())
	return store
}
