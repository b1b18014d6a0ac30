// SPDX-License-Identifier: GPL-3.0-or-later

// Command dmtd wires the transport/peer-connection core into a minimal
// standalone daemon: bind the configured transports, accept clients,
// and log each accepted client and each acceptor-level [dmtcore.Event];
// per-connection events are not drained here. Everything above the
// connection layer — the AVP dictionary, CER/CEA, routing — is out of
// scope (spec.md §1), so this entrypoint only proves the core wires
// together end to end; it answers no Diameter command itself.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/freediameter-go/dmtcore"
)

func main() {
	var (
		localID     = flag.String("identity", "", "local Diameter identity (FQDN)")
		realm       = flag.String("realm", "", "local Diameter realm")
		portClear   = flag.Uint("port", 3868, "clear-text bind port")
		portTLS     = flag.Uint("port-tls", 3869, "TLS-on-connect bind port")
		certFile    = flag.String("cert", "", "PEM certificate chain")
		keyFile     = flag.String("key", "", "PEM private key")
		caFile      = flag.String("ca", "", "PEM trust store")
		disableSCTP = flag.Bool("disable-sctp", false, "disable the SCTP transport")
	)
	flag.Parse()

	cfg := dmtcore.NewConfig()
	cfg.LocalID = *localID
	cfg.Realm = *realm
	cfg.PortClear = uint16(*portClear)
	cfg.PortTLS = uint16(*portTLS)
	cfg.DisableSCTP = *disableSCTP
	cfg.TLS.CertFile = *certFile
	cfg.TLS.KeyFile = *keyFile
	cfg.TLS.CAFile = *caFile

	if err := cfg.Validate(); err != nil {
		cfg.Logger.Error("configInvalid", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	acceptors, err := startAcceptors(ctx, cfg)
	if err != nil {
		cfg.Logger.Error("startupFailed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		for _, a := range acceptors {
			a.Shutdown()
		}
	}()

	peers := dmtcore.NewPeerList()
	for _, a := range acceptors {
		go drainClients(ctx, a, peers, cfg.Logger)
		go drainEvents(ctx, a, cfg.Logger)
	}

	cfg.Logger.Info("dmtdStarted",
		slog.String("identity", cfg.LocalID),
		slog.Uint64("portClear", uint64(cfg.PortClear)),
		slog.Uint64("portTLS", uint64(cfg.PortTLS)),
	)
	<-ctx.Done()
	cfg.Logger.Info("dmtdShuttingDown")
}

// startAcceptors binds and starts one [*dmtcore.Acceptor] per enabled
// transport (spec.md §4.G); TLS-on-connect uses the dedicated port,
// matching the non-TLSInband default.
func startAcceptors(ctx context.Context, cfg *dmtcore.Config) ([]*dmtcore.Acceptor, error) {
	conf, err := tlsConfigOrNil(cfg)
	if err != nil {
		return nil, err
	}

	var acceptors []*dmtcore.Acceptor

	port := cfg.PortClear
	if conf != nil {
		port = cfg.PortTLS
	}

	tcpListener, err := dmtcore.ListenTCP(cfg, port)
	if err != nil {
		return nil, err
	}
	tcpAcceptor := dmtcore.NewAcceptor(cfg, dmtcore.TransportTCP, tcpListener, cfg.LocalID)
	if conf != nil {
		tcpAcceptor.SecureOnConnect = true
		tcpAcceptor.TLSConfig = conf
	}
	go tcpAcceptor.Run(ctx)
	acceptors = append(acceptors, tcpAcceptor)

	if !cfg.DisableSCTP {
		sctpListener, err := dmtcore.ListenSCTP(cfg, port)
		if err != nil {
			for _, a := range acceptors {
				a.Shutdown()
			}
			return nil, err
		}
		sctpAcceptor := dmtcore.NewAcceptor(cfg, dmtcore.TransportSCTP, sctpListener, cfg.LocalID)
		if conf != nil {
			sctpAcceptor.SecureOnConnect = true
			sctpAcceptor.TLSConfig = conf
		}
		go sctpAcceptor.Run(ctx)
		acceptors = append(acceptors, sctpAcceptor)
	}

	return acceptors, nil
}

// tlsConfigOrNil loads cfg.TLS when a certificate was configured,
// leaving clients clear-text otherwise (useful for loopback testing).
func tlsConfigOrNil(cfg *dmtcore.Config) (*tls.Config, error) {
	if cfg.TLS.CertFile == "" {
		return nil, nil
	}
	return cfg.TLSConfig()
}

// drainClients logs every client the acceptor hands off; a full daemon
// would promote each to CER/CEA here, which is out of this core's scope.
func drainClients(ctx context.Context, a *dmtcore.Acceptor, peers *dmtcore.PeerList, logger dmtcore.SLogger) {
	for {
		select {
		case client, ok := <-a.Clients:
			if !ok {
				return
			}
			logger.Info("clientAccepted", slog.String("remoteAddr", client.RemoteAddr.String()))
		case <-ctx.Done():
			return
		}
	}
}

// drainEvents logs every acceptor-level event (accept-loop termination,
// mid-shutdown handoff races); per-connection events are drained by the
// peer layer via each [*dmtcore.Cnx]'s own Incoming fifo, not here.
func drainEvents(ctx context.Context, a *dmtcore.Acceptor, logger dmtcore.SLogger) {
	for {
		ev, err := a.Events.GetContext(ctx)
		if err != nil {
			return
		}
		logger.Warn("acceptorEvent", slog.String("kind", ev.Kind.String()), slog.Any("err", ev.Err))
	}
}
