package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hari-na/hari-jeopardy/internal/client"
	"github.com/hari-na/hari-jeopardy/internal/config"
	"github.com/hari-na/hari-jeopardy/internal/game"
	"github.com/hari-na/hari-jeopardy/internal/protocol"
	"github.com/hari-na/hari-jeopardy/internal/roomcode"
	"github.com/hari-na/hari-jeopardy/internal/transport"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	configPath := flag.String("config", "config.yaml", "path to config file")
	room := flag.String("room", "", "room code to join")
	name := flag.String("name", "", "player name")
	playerID := flag.String("player-id", "", "existing player id to reclaim on reconnect")
	controller := flag.Bool("controller", false, "join as the host controller")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	code := strings.ToUpper(*room)
	if !roomcode.Valid(code) {
		log.Fatal().Str("room", code).Msg("room code must be four letters")
	}
	joinName := *name
	if *controller {
		joinName = protocol.ControllerName
	} else if joinName == "" {
		log.Fatal().Msg("-name is required for players")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	net, err := buildNetwork(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build transport")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handlers := client.Handlers{
		OnState: printState,
		OnNotice: func(msg protocol.Message) {
			reason, _ := protocol.DecodeReason(msg)
			fmt.Printf("\n[%s] %s\n", msg.Type, reason)
		},
	}

	clientCfg := client.DefaultConfig()
	clientCfg.PlayerID = *playerID
	c, err := client.Connect(ctx, net, clockwork.NewRealClock(), clientCfg, code, joinName, handlers)
	if err != nil {
		log.Fatal().Err(err).Msg("could not join room")
	}
	defer c.Close()

	log.Info().Str("room", code).Str("name", joinName).Str("player_id", c.Self().ID).Msg("joined")
	go commandLoop(c, *controller)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-c.Done():
		log.Info().Msg("connection closed by host")
	}
}

func buildNetwork(cfg config.Config) (transport.Network, error) {
	switch cfg.Transport {
	case config.TransportWebsocket:
		wcfg := transport.DefaultWebsocketConfig()
		wcfg.BaseURL = cfg.BaseURL
		return transport.NewWebsocketNetwork(wcfg), nil
	case config.TransportNATS:
		ncfg := transport.DefaultNATSConfig()
		ncfg.URL = cfg.NATSURL
		return transport.NewNATSNetwork(ncfg), nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

// printState renders a compact view of each replica replacement.
func printState(state *game.GameState) {
	fmt.Printf("\n== %s [%s] ==\n", state.RoomCode, state.Status)
	for _, p := range state.Players {
		marker := " "
		if p.ID == state.ActivePlayerID {
			marker = "*"
		}
		fmt.Printf(" %s %-20s %6d\n", marker, p.Name, p.Score)
	}
	if q := state.ActiveQuestion; q != nil {
		fmt.Printf(" Q (%s, %d): %s  [%ds left]\n", q.Category, q.Value, q.Question, state.Timer)
	}
}

func commandLoop(c *client.Client, controller bool) {
	scanner := bufio.NewScanner(os.Stdin)
	if controller {
		fmt.Println("commands: start | select <questionId> | correct [playerId] | incorrect [playerId] | continue | skip | release | rename <playerId> <name> | score <playerId> <points> | kick <playerId>")
	} else {
		fmt.Println("press enter to buzz")
	}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !controller {
			if err := c.Buzz(); err != nil {
				log.Warn().Err(err).Msg("buzz failed")
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		action, ok := parseAction(fields)
		if !ok {
			fmt.Printf("unknown or malformed command %q\n", line)
			continue
		}
		if err := c.SendHostAction(action); err != nil {
			log.Warn().Err(err).Msg("host action failed")
		}
	}
}

func parseAction(fields []string) (protocol.HostAction, bool) {
	switch fields[0] {
	case "start":
		return protocol.HostAction{Action: protocol.ActionStartGame}, true
	case "select":
		if len(fields) < 2 {
			return protocol.HostAction{}, false
		}
		return protocol.HostAction{Action: protocol.ActionSelectQuestion, QuestionID: fields[1]}, true
	case "correct", "incorrect":
		action := protocol.ActionCorrect
		if fields[0] == "incorrect" {
			action = protocol.ActionIncorrect
		}
		a := protocol.HostAction{Action: action}
		if len(fields) > 1 {
			a.PlayerID = fields[1]
		}
		return a, true
	case "continue":
		return protocol.HostAction{Action: protocol.ActionContinue}, true
	case "skip":
		return protocol.HostAction{Action: protocol.ActionSkip}, true
	case "release":
		return protocol.HostAction{Action: protocol.ActionReleaseBuzzer}, true
	case "rename":
		if len(fields) < 3 {
			return protocol.HostAction{}, false
		}
		return protocol.HostAction{
			Action:   protocol.ActionRenamePlayer,
			PlayerID: fields[1],
			NewName:  strings.Join(fields[2:], " "),
		}, true
	case "score":
		if len(fields) < 3 {
			return protocol.HostAction{}, false
		}
		n, err := strconv.Atoi(fields[2])
		if err != nil {
			return protocol.HostAction{}, false
		}
		return protocol.HostAction{Action: protocol.ActionOverrideScore, PlayerID: fields[1], NewScore: &n}, true
	case "kick":
		if len(fields) < 2 {
			return protocol.HostAction{}, false
		}
		return protocol.HostAction{Action: protocol.ActionKickPlayer, PlayerID: fields[1]}, true
	}
	return protocol.HostAction{}, false
}
