package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/flavory-client/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	envFile := flag.String("env", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	if err := run(*envFile); err != nil {
		log.Fatal().Err(err).Msg("Error running client")
	}
	log.Info().Msg("Bye")
}

func run(envFile string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("Recovered from panic: %v", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load(envFile)
	if err != nil {
		return err
	}
	setupLogging(c)
	displayAppname(c.GetAppName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, c)
	if err != nil {
		return err
	}
	return newShell(a, os.Stdin, os.Stdout).run(ctx)
}

func setupLogging(c config.EnvConfig) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if c.IsDev() && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
