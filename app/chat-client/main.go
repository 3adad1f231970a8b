// Command chat-client is a line-mode chat client: every line typed on
// stdin is sent as a chat message and every event from the server is
// printed.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"chatrelay/internal/client"
	"chatrelay/internal/protocol"
)

func main() {
	addr := flag.String("addr", "localhost:3000", "chat server address")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, *addr)
	if err != nil {
		slog.Error("connect", "err", err)
		os.Exit(1)
	}
	defer c.Close()

	c.Handle(func(_ protocol.Envelope, p protocol.Payload) {
		fmt.Println(describe(p))
	})

	go func() {
		in := bufio.NewScanner(os.Stdin)
		for in.Scan() {
			if err := c.SendChat(in.Text()); err != nil {
				slog.Error("send", "err", err)
				stop()
				return
			}
		}
		stop()
	}()

	if err := c.Listen(ctx); err != nil && ctx.Err() == nil {
		slog.Error("connection lost", "err", err)
		os.Exit(1)
	}
}

func describe(p protocol.Payload) string {
	switch p := p.(type) {
	case protocol.InitData:
		return fmt.Sprintf("Obtained uuid '%s'", p.UUID)
	case protocol.UserJoinedData:
		return fmt.Sprintf("%s joined the chat", p.UUID)
	case protocol.ChatMessageData:
		return fmt.Sprintf("%s: %s", p.UUID, p.Content)
	default:
		return fmt.Sprintf("Received unknown event: %s", p.Event())
	}
}
