/*
Package main is a terminal client for the chatrelay server.

It connects with the reconnecting client, joins a room, relays stdin lines as
chat messages, and prints inbound envelopes. Slash commands switch rooms and
ask the AI assistant.
*/
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"chatrelay/internal/app/chat"
	"chatrelay/internal/client"
	"chatrelay/internal/pkg/logx"
)

func main() {
	var (
		serverURL = flag.String("server", "ws://localhost:8080/ws", "websocket server URL")
		room      = flag.String("room", "general", "room to join on connect")
		name      = flag.String("name", "", "display name (required)")
	)
	flag.Parse()

	username := strings.TrimSpace(*name)
	if username == "" {
		fmt.Fprintln(os.Stderr, "--name is required")
		os.Exit(2)
	}

	logx.InitGlobalLogger(false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var c *client.Client
	var joinOnce sync.Once

	c = client.New(client.Config{
		URL:      *serverURL + "?username=" + url.QueryEscape(username),
		Username: username,
		OnEnvelope: func(env chat.Envelope) {
			printEnvelope(env)
		},
		OnStateChange: func(s client.State) {
			switch s {
			case client.StateBackoff:
				fmt.Println("[status] disconnected, retrying...")
			case client.StateGaveUp:
				fmt.Println("[status] connection failed")
			case client.StateConnected:
				fmt.Println("[status] connected")
				// Reconnects replay the room themselves; only the first
				// connection needs an explicit join.
				joinOnce.Do(func() {
					go c.JoinRoom(*room)
				})
			}
		},
	})

	runDone := make(chan error, 1)
	go func() {
		runDone <- c.Run(ctx)
	}()

	go inputLoop(ctx, c)

	select {
	case err := <-runDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "client stopped: %v\n", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		c.Close()
		<-runDone
	}
}

func inputLoop(ctx context.Context, c *client.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Type messages and press Enter to send. /join <room>, /ai <question>, /quit.")

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			c.Close()
			return

		case strings.HasPrefix(line, "/join "):
			room := strings.TrimSpace(strings.TrimPrefix(line, "/join "))
			if err := c.JoinRoom(room); err != nil {
				fmt.Fprintf(os.Stderr, "join error: %v\n", err)
			}

		case strings.HasPrefix(line, "/ai "):
			question := strings.TrimSpace(strings.TrimPrefix(line, "/ai "))
			if err := c.AskAI(question, false); err != nil {
				fmt.Fprintf(os.Stderr, "ai error: %v\n", err)
			}

		default:
			if err := c.SendChat(line); err != nil {
				fmt.Fprintf(os.Stderr, "send error: %v\n", err)
			}
		}
	}
}

func printEnvelope(env chat.Envelope) {
	switch env.Type {
	case chat.TypeChatMessage:
		fmt.Printf("[%s][%s] %s\n", env.Room, env.Username, env.Message)
	case chat.TypeUserJoined:
		fmt.Printf("[%s] * %s joined\n", env.Room, env.Username)
	case chat.TypeUserLeft:
		fmt.Printf("[%s] * %s left\n", env.Room, env.Username)
	case chat.TypeRoomJoined:
		fmt.Printf("[%s] joined (%d members: %s)\n",
			env.Room, env.MemberCount, strings.Join(env.Members, ", "))
	case chat.TypeRoomCreated:
		fmt.Printf("* new room available: %s (%s)\n", env.RoomName, env.Room)
	case chat.TypeUserTyping:
		if len(env.TypingUsers) > 0 {
			fmt.Printf("[%s] typing: %s\n", env.Room, strings.Join(env.TypingUsers, ", "))
		}
	case chat.TypeAIResponse:
		fmt.Printf("[ai] %s\n", env.Answer)
	case chat.TypeError:
		fmt.Fprintf(os.Stderr, "[error %d] %s\n", env.Code, env.Message)
	default:
		fmt.Printf("[%s] %+v\n", env.Type, env)
	}
}
