package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"chatrelay/internal/client"
	"chatrelay/internal/protocol"
)

func main() {
	var (
		addr     = flag.String("addr", "localhost:3000", "TCP address, or a ws:// URL for the WebSocket endpoint")
		clients  = flag.Int("clients", 200, "Number of concurrent clients")
		interval = flag.Int("interval", 1000, "Send interval in ms per client")
		size     = flag.Int("size", 32, "Chat message length in bytes")
	)
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// handle ctrl+c
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("Starting loadgen: clients=%d interval=%dms target=%s", *clients, *interval, *addr)

	var (
		wg       sync.WaitGroup
		sent     atomic.Uint64
		received atomic.Uint64
	)
	wg.Add(*clients)

	for i := 0; i < *clients; i++ {
		name := fmt.Sprintf("load-%d", i)
		go func() {
			defer wg.Done()
			runClient(ctx, *addr, name, time.Duration(*interval)*time.Millisecond, *size, &sent, &received)
		}()
	}

	report := time.NewTicker(5 * time.Second)
	defer report.Stop()
	for {
		select {
		case <-report.C:
			log.Printf("sent=%d received=%d", sent.Load(), received.Load())
			continue
		case <-stop:
		}
		break
	}

	log.Println("Stopping loadgen...")
	cancel()
	wg.Wait()
	log.Printf("All clients stopped. sent=%d received=%d", sent.Load(), received.Load())
}

func runClient(ctx context.Context, addr, name string, interval time.Duration, size int, sent, received *atomic.Uint64) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		c   *client.Client
		err error
	)
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		c, err = client.DialWS(dialCtx, addr)
	} else {
		c, err = client.Dial(dialCtx, addr)
	}
	if err != nil {
		log.Printf("[%s] dial error: %v", name, err)
		return
	}
	defer c.Close()

	c.Handle(func(env protocol.Envelope, _ protocol.Payload) {
		if env.Event == protocol.EventChatMessage {
			received.Add(1)
		}
	})

	listenCtx, stopListen := context.WithCancel(ctx)
	defer stopListen()
	go func() {
		if err := c.Listen(listenCtx); err != nil && listenCtx.Err() == nil {
			log.Printf("[%s] listen error: %v", name, err)
		}
	}()

	// stagger clients so sends do not arrive in lockstep
	ticker := time.NewTicker(interval + time.Duration(rand.Int63n(int64(interval/10)+1)))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.SendChat(payload(name, size)); err != nil {
				log.Printf("[%s] write error: %v", name, err)
				return
			}
			sent.Add(1)
		}
	}
}

func payload(name string, size int) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte(' ')
	for b.Len() < size {
		b.WriteByte(byte('a' + rand.Intn(26)))
	}
	return b.String()
}
