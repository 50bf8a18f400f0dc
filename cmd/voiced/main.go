// Command voiced runs the channel voice manager: it connects to IRC,
// grants voice to managed users when they speak and revokes it after a
// period of inactivity.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"golang.org/x/term"

	"github.com/presbrey/voiced/bot"
	"github.com/presbrey/voiced/config"
	"github.com/presbrey/voiced/gircsession"
	"github.com/presbrey/voiced/ledger"
	"github.com/presbrey/voiced/web"
)

var (
	configPath = flag.String("config", "voiced.yaml", "Path to the configuration file")
	server     = flag.String("server", "", "Override the IRC server address")
	nick       = flag.String("nick", "", "Override the bot nickname")
	channel    = flag.String("channel", "", "Override the managed channel")
	verbose    = flag.Bool("verbose", false, "Mirror raw IRC traffic to stderr")
)

func main() {
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("voiced: %v", err)
	}
}

func run(configPath string) error {
	cfg, err := config.Parse(configPath)
	if err != nil {
		return err
	}
	if *server != "" {
		cfg.IRC.Server = *server
	}
	if *nick != "" {
		cfg.IRC.Nick = *nick
	}
	if *channel != "" {
		cfg.Channel = *channel
	}
	if *verbose {
		cfg.IRC.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	password, err := resolvePassword(cfg)
	if err != nil {
		return err
	}

	led, err := ledger.Open(cfg.Storage.Dir)
	if err != nil {
		return err
	}
	// Persist state on every exit path, clean or not.
	defer func() {
		if err := led.Save(); err != nil {
			log.Printf("failed to save state: %v", err)
		}
	}()

	sessCfg := gircsession.Config{
		Server:      cfg.IRC.Server,
		Port:        cfg.IRC.Port,
		SSL:         cfg.IRC.SSL,
		Nick:        cfg.IRC.Nick,
		User:        cfg.IRC.User,
		Name:        cfg.IRC.Name,
		Channel:     cfg.Channel,
		Verbose:     cfg.IRC.Verbose,
		SASLAccount: cfg.IRC.SASLAccount,
	}
	if cfg.IRC.SASLAccount != "" {
		sessCfg.SASLPassword = password
	} else {
		sessCfg.ServerPass = password
	}

	sess := gircsession.New(sessCfg)

	b := bot.New(bot.Config{
		Channel:          cfg.Channel,
		Inactivity:       time.Duration(cfg.Voice.InactivitySeconds) * time.Second,
		StrictIdentity:   cfg.Voice.StrictIdentity,
		OperatorPrefixes: cfg.Voice.OperatorPrefixes,
		SweepInterval:    time.Duration(cfg.Voice.SweepSeconds) * time.Second,
		ThrottleLimit:    cfg.Throttle.Limit,
		ThrottleTimeout:  time.Duration(cfg.Throttle.TimeoutSeconds) * time.Second,
	}, sess, led)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess.OnEvent(func(ev bot.Event) {
		go b.HandleEvent(ctx, ev)
	})

	connErr := make(chan error, 1)
	go func() { connErr <- sess.Run(ctx) }()

	log.Printf("connecting to %s:%d as %s", cfg.IRC.Server, cfg.IRC.Port, cfg.IRC.Nick)
	if err := sess.WaitJoined(ctx); err != nil {
		return err
	}
	log.Printf("joined %s", cfg.Channel)

	go b.RunSweep(ctx)
	go b.RunConsole(os.Stdin, os.Stdout, os.Stderr)

	var srv *web.Server
	if cfg.Web.Enabled {
		srv = web.New(b)
		go func() {
			if err := srv.Start(cfg.WebAddress()); err != nil {
				log.Printf("web server stopped: %v", err)
			}
		}()
		log.Printf("status server listening on %s", cfg.WebAddress())
	}

	select {
	case err := <-connErr:
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("connection lost: %w", err)
		}
	case <-ctx.Done():
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("web server shutdown: %v", err)
		}
	}

	log.Println("shutting down")
	return nil
}

// resolvePassword returns the IRC password from the config, a password
// file, or an interactive prompt, in that order. An empty password with
// no SASL account means the server needs none.
func resolvePassword(cfg *config.Config) (string, error) {
	if cfg.IRC.Password != "" {
		return cfg.IRC.Password, nil
	}
	if cfg.IRC.PassFile != "" {
		data, err := os.ReadFile(cfg.IRC.PassFile)
		if err != nil {
			return "", fmt.Errorf("failed to read password file: %w", err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
	if cfg.IRC.SASLAccount == "" {
		return "", nil
	}
	return promptPassword(fmt.Sprintf("Password for %s: ", cfg.IRC.SASLAccount))
}

func promptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		data, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
