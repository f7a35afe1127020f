package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hari-na/hari-jeopardy/internal/board"
	"github.com/hari-na/hari-jeopardy/internal/config"
	"github.com/hari-na/hari-jeopardy/internal/cue"
	"github.com/hari-na/hari-jeopardy/internal/game"
	"github.com/hari-na/hari-jeopardy/internal/host"
	"github.com/hari-na/hari-jeopardy/internal/protocol"
	"github.com/hari-na/hari-jeopardy/internal/roomcode"
	"github.com/hari-na/hari-jeopardy/internal/transport"
)

// maxRoomAttempts bounds how many fresh room codes the host tries when a
// generated code collides with a live session on the network.
const maxRoomAttempts = 5

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	configPath := flag.String("config", "config.yaml", "path to config file")
	theme := flag.String("theme", "", "board theme override")
	room := flag.String("room", "", "fixed room code (default: generated)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *theme != "" {
		cfg.Theme = *theme
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Board generation happens once, before the room opens. Generator
	// failures are fatal: a session never starts on a partial board.
	var gen board.Generator
	if cfg.Theme == board.StaticTheme {
		gen = board.StaticGenerator{}
	} else {
		gen = board.NewRemoteGenerator(cfg.BoardURL, cfg.BoardAPIKey)
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	categories, err := board.Build(ctx, gen, cfg.Theme, rng)
	if err != nil {
		log.Fatal().Err(err).Str("theme", cfg.Theme).Msg("board generation failed")
	}

	net, err := buildNetwork(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build transport")
	}

	clock := clockwork.NewRealClock()
	session, err := openSession(ctx, net, *room, cfg.Theme, categories, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session")
	}

	log.Info().
		Str("room", session.RoomCode()).
		Str("transport", cfg.Transport).
		Str("theme", cfg.Theme).
		Msg("starting trivia host")

	api := host.NewAPI(session)
	server := &http.Server{
		Addr:         cfg.APIAddr,
		Handler:      api.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := session.Run(ctx); err != nil {
			log.Error().Err(err).Msg("session loop failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP API starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP API failed")
		}
	}()

	go commandLoop(session)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP API shutdown failed")
	}
	cancel()

	log.Info().Msg("trivia host shutdown complete")
}

// openSession claims a room identity on the network, regenerating the code on
// collision unless the caller pinned one.
func openSession(ctx context.Context, net transport.Network, fixedRoom, theme string, categories []game.Category, clock clockwork.Clock) (*host.Session, error) {
	for attempt := 1; ; attempt++ {
		code := fixedRoom
		if code == "" {
			code = roomcode.New()
		}
		session, err := host.NewSession(ctx, net, code, theme, categories, clock, cue.LogPlayer{})
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, transport.ErrIdentityInUse) || fixedRoom != "" || attempt >= maxRoomAttempts {
			return nil, err
		}
		log.Warn().Str("room", code).Int("attempt", attempt).Msg("room code in use, regenerating")
		time.Sleep(transport.SettleDelay)
	}
}

func buildNetwork(cfg config.Config) (transport.Network, error) {
	switch cfg.Transport {
	case config.TransportWebsocket:
		wcfg := transport.DefaultWebsocketConfig()
		wcfg.ListenAddr = cfg.ListenAddr
		wcfg.BaseURL = cfg.BaseURL
		return transport.NewWebsocketNetwork(wcfg), nil
	case config.TransportNATS:
		ncfg := transport.DefaultNATSConfig()
		ncfg.URL = cfg.NATSURL
		return transport.NewNATSNetwork(ncfg), nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

// commandLoop reads host controls from stdin so a headless host can drive the
// game without a remote controller.
func commandLoop(session *host.Session) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("commands: start | select <questionId> | correct [playerId] | incorrect [playerId] | continue | skip | release | rename <playerId> <name> | score <playerId> <points> | kick <playerId>")
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "start":
			session.Do(protocol.HostAction{Action: protocol.ActionStartGame})
		case "select":
			if len(fields) < 2 {
				fmt.Println("usage: select <questionId>")
				continue
			}
			session.Do(protocol.HostAction{Action: protocol.ActionSelectQuestion, QuestionID: fields[1]})
		case "correct":
			a := protocol.HostAction{Action: protocol.ActionCorrect}
			if len(fields) > 1 {
				a.PlayerID = fields[1]
			}
			session.Do(a)
		case "incorrect":
			a := protocol.HostAction{Action: protocol.ActionIncorrect}
			if len(fields) > 1 {
				a.PlayerID = fields[1]
			}
			session.Do(a)
		case "continue":
			session.Do(protocol.HostAction{Action: protocol.ActionContinue})
		case "skip":
			session.Do(protocol.HostAction{Action: protocol.ActionSkip})
		case "release":
			session.Do(protocol.HostAction{Action: protocol.ActionReleaseBuzzer})
		case "rename":
			if len(fields) < 3 {
				fmt.Println("usage: rename <playerId> <name>")
				continue
			}
			session.Do(protocol.HostAction{
				Action:   protocol.ActionRenamePlayer,
				PlayerID: fields[1],
				NewName:  strings.Join(fields[2:], " "),
			})
		case "score":
			if len(fields) < 3 {
				fmt.Println("usage: score <playerId> <points>")
				continue
			}
			n, err := strconv.Atoi(fields[2])
			if err != nil {
				fmt.Println("points must be a number")
				continue
			}
			session.Do(protocol.HostAction{Action: protocol.ActionOverrideScore, PlayerID: fields[1], NewScore: &n})
		case "kick":
			if len(fields) < 2 {
				fmt.Println("usage: kick <playerId>")
				continue
			}
			session.Do(protocol.HostAction{Action: protocol.ActionKickPlayer, PlayerID: fields[1]})
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
	}
}
