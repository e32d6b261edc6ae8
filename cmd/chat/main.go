package main

import (
	"bufio"
	"chat-relay/client"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL    string `env:"CHAT_SERVER_URL,default=http://localhost:8080"`
	Username     string `env:"CHAT_USERNAME,required=true"`
	Password     string `env:"CHAT_PASSWORD,required=true"`
	Peer         string `env:"CHAT_PEER,required=true"`
	HistoryLimit int    `env:"CHAT_HISTORY_LIMIT,default=20"`
	LogLevel     string `env:"LOG_LEVEL,default=WARN"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run logs in, prints the recent conversation with the peer, then sends
// every stdin line to the peer while printing what arrives.
func run() (int, error) {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	relay, err := client.New(log, client.Config{BaseURL: config.ServerURL})
	if err != nil {
		return exitConfig, err
	}
	session, err := relay.Login(ctx, config.Username, config.Password)
	if err != nil {
		return exitRuntime, err
	}
	peer, err := resolvePeer(ctx, relay, session, config.Peer)
	if err != nil {
		return exitRuntime, err
	}

	history, err := relay.History(ctx, session, peer, config.HistoryLimit)
	if err != nil {
		return exitRuntime, err
	}
	for _, m := range history {
		author := config.Peer
		if m.FromSelf {
			author = config.Username
		}
		printLine(m.CreatedAt, author, m.Message, m.FromSelf)
	}

	conn, err := relay.Connect(ctx, session)
	if err != nil {
		return exitRuntime, err
	}
	defer conn.Close()
	color.Cyan.Printf(">>> Connected to %s as %s, talking to %s (Ctrl+C to quit)\n",
		config.ServerURL, config.Username, config.Peer)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return exitOK, nil
		case <-conn.Done():
			return exitRuntime, fmt.Errorf("connection lost")
		case err := <-conn.Errors():
			color.Red.Printf("!!! %v\n", err)
		case msg := <-conn.Messages():
			if msg.From == peer {
				printLine(msg.CreatedAt, config.Peer, msg.Message, false)
			}
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			if line = strings.TrimSpace(line); line == "" {
				continue
			}
			if _, err := conn.Send(ctx, peer, line); err != nil {
				color.Red.Printf("!!! not sent: %v\n", err)
			}
		}
	}
}

// resolvePeer turns a username into the identity messages are addressed to.
func resolvePeer(ctx context.Context, relay *client.Client, session client.Session, username string) (string, error) {
	contacts, err := relay.Contacts(ctx, session)
	if err != nil {
		return "", err
	}
	for _, c := range contacts {
		if c.Username == username {
			return c.ID, nil
		}
	}
	return "", fmt.Errorf("unknown contact %q", username)
}

func printLine(at time.Time, author, message string, self bool) {
	line := fmt.Sprintf("[%s] %s: %s", at.Local().Format(time.TimeOnly), author, message)
	if self {
		color.Gray.Println(line)
		return
	}
	fmt.Println(line)
}
