package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-school-session/internal/config"
	"github.com/jrsteele09/go-school-session/internal/logging"
	"github.com/jrsteele09/go-school-session/internal/mockapi"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Err(err).Msg("Error running mock API")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Mock API stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("Recovered from panic: %v", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	logging.Configure(c.GetLogLevel(), c.GetLogFormat())
	displayAppname(c.GetAppName())

	api, err := mockapi.New(
		mockapi.WithEnv(c.GetEnv()),
		mockapi.WithCors(c),
		mockapi.WithSecret(config.GetEnv("JWT_SECRET", "mock-api-secret")),
		mockapi.WithAccessTokenTTL(c.GetAccessTokenTTL()),
	)
	if err != nil {
		return err
	}
	profiles, err := api.Seed(config.GetEnv("MOCK_ACCOUNTS", mockapi.DefaultSeed))
	if err != nil {
		return err
	}
	for _, p := range profiles {
		log.Info().Str("email", p.Email).Str("role", string(p.Role)).Msg("Seeded account")
	}

	server := &http.Server{Addr: c.GetPort(), Handler: api}
	errs := make(chan error, 1)
	go func() { errs <- listenAndServe(server) }()

	select {
	case err := <-errs:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(server)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Mock API listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
