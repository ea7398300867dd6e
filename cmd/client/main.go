package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/Parley/internal/client"
)

const usage = `commands:
  /join <group>          join a group
  /leave <group>         leave a group
  /g <group> <text>      send to a group
  /msg <user> <text>     private message
  /lang <code>           change your language
  /groups                list joined groups
  /quit                  leave and exit
anything else is sent to everyone`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	url := pflag.String("url", "ws://localhost:8080/api/ws", "server WebSocket endpoint")
	user := pflag.String("user", "", "display name")
	lang := pflag.String("lang", "en", "language for incoming messages")
	verbose := pflag.Bool("verbose", false, "debug logging")
	pflag.Parse()
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if *user == "" {
		fmt.Fprintln(os.Stderr, "--user is required")
		os.Exit(2)
	}

	m := client.NewManager(client.NewWSTransport(client.WSConfig{URL: *url}))
	m.Subscribe(printEvent)

	if err := m.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("connect")
	}
	defer m.Close()

	if err := m.JoinChat(ctx, *user, *lang); err != nil {
		log.Fatal().Err(err).Msg("join chat")
	}
	fmt.Println(usage)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = m.LeaveChat(context.Background())
			return
		case line, ok := <-lines:
			if !ok {
				_ = m.LeaveChat(ctx)
				return
			}
			quit, err := run(ctx, m, strings.TrimSpace(line))
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
			if quit {
				return
			}
		}
	}
}

func run(ctx context.Context, m *client.Manager, line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, m.SendMessage(ctx, line)
	}

	cmd, rest, _ := strings.Cut(line, " ")
	switch cmd {
	case "/join":
		return false, m.JoinGroup(ctx, rest)
	case "/leave":
		return false, m.LeaveGroup(ctx, rest)
	case "/g", "/msg":
		target, text, ok := strings.Cut(rest, " ")
		if !ok {
			return false, fmt.Errorf("usage: %s <target> <text>", cmd)
		}
		if cmd == "/g" {
			return false, m.SendGroupMessage(ctx, target, text)
		}
		return false, m.SendPrivateMessage(ctx, target, text)
	case "/lang":
		return false, m.SetLanguage(ctx, rest)
	case "/groups":
		fmt.Println(strings.Join(m.Groups(), ", "))
		return false, nil
	case "/quit":
		return true, m.LeaveChat(ctx)
	default:
		fmt.Println(usage)
		return false, nil
	}
}

func printEvent(ev client.Event) {
	switch ev.Kind {
	case client.EventMessageReceived, client.EventGroupMessageReceived, client.EventPrivateMessageReceived:
		msg := ev.Message
		scope := "all"
		if msg.Group != nil {
			scope = *msg.Group
		} else if ev.Kind == client.EventPrivateMessageReceived {
			scope = "private"
		}
		fmt.Printf("[%s] %s: %s (%s)\n", scope, msg.User, msg.Message, msg.Label)
	case client.EventUserJoined:
		fmt.Printf("* %s joined\n", ev.User)
	case client.EventUserLeft:
		fmt.Printf("* %s left\n", ev.User)
	case client.EventUserListUpdated:
		fmt.Printf("* online: %s\n", strings.Join(ev.Roster, ", "))
	case client.EventGroupNotice:
		fmt.Printf("* %s\n", ev.Text)
	case client.EventError:
		fmt.Fprintln(os.Stderr, "error:", ev.Err)
	default:
		fmt.Printf("* %s\n", ev.Kind)
	}
}
