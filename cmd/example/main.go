// Example MT4 Web Terminal client: loads config, bootstraps a session
// against the trade/json endpoint, dials the signal server, and prints the
// event stream until an interrupt signal.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"mt4ws"
	"mt4ws/internal/bootstrap"
	"mt4ws/internal/config"
	"mt4ws/internal/transport"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("MT4_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Bootstrap.Timeout)
	boot := bootstrap.New(cfg.Bootstrap.BaseURL, logger)
	result, err := boot.Fetch(ctx, cfg.Account.Login, cfg.Account.TradeServer)
	cancel()
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, err := transport.Dial(dialCtx, result.SignalServer, logger)
	dialCancel()
	if err != nil {
		logger.Error("dial failed", "error", err)
		os.Exit(1)
	}

	client, err := mt4ws.New(conn, result.Token, cfg.Account.Password, result.Key, logger)
	if err != nil {
		logger.Error("failed to create client", "error", err)
		os.Exit(1)
	}

	connectCtx, connectCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := client.Connect(connectCtx); err != nil {
		connectCancel()
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	connectCancel()

	logger.Info("mt4 web terminal client started", "trade_server", cfg.Account.TradeServer)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go pumpEvents(client, logger, done)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-done:
		logger.Info("event stream closed")
	}

	client.Disconnect()
}

func pumpEvents(client *mt4ws.Client, logger *slog.Logger, done chan<- struct{}) {
	defer close(done)
	for {
		ev, err := client.NextEvent(context.Background())
		if err != nil {
			return
		}
		switch ev.Kind {
		case mt4ws.EventAuthenticated:
			logger.Info("authenticated")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if _, err := client.RequestAccountInfo(); err != nil {
				logger.Warn("account info unavailable", "error", err)
			}
			if err := client.RequestCurrentPositions(ctx); err != nil {
				logger.Warn("failed to request current positions", "error", err)
			}
			cancel()
		case mt4ws.EventAuthFailed:
			logger.Error("auth failed", "code", ev.AuthFailedCode)
			return
		case mt4ws.EventOrderUpdate:
			ticket := uint32(0)
			if ev.Update.Order != nil {
				ticket = ev.Update.Order.Ticket
			}
			logger.Info("order update", "ticket", ticket, "notify_type", ev.Update.NotifyType)
		case mt4ws.EventTradeSuccess:
			logger.Info("trade succeeded", "request_id", ev.TradeRequestID, "status", ev.TradeStatus)
		case mt4ws.EventTradeFailed:
			logger.Warn("trade failed", "request_id", ev.TradeRequestID, "code", ev.TradeErrCode, "message", ev.TradeMessage)
		case mt4ws.EventPong:
			logger.Debug("pong")
		case mt4ws.EventDisconnected:
			return
		case mt4ws.EventError:
			logger.Error("protocol error", "message", ev.Message)
			return
		case mt4ws.EventRawMessage:
			logger.Debug("raw message", "command", ev.RawCommand, "error_code", ev.RawErrorCode)
		}
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
