package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/JavierZam/pasargamex-fe-sub000/internal/auth"
	"github.com/JavierZam/pasargamex-fe-sub000/internal/config"
	"github.com/JavierZam/pasargamex-fe-sub000/internal/wire"
	"github.com/JavierZam/pasargamex-fe-sub000/pkg/logger"
	"github.com/JavierZam/pasargamex-fe-sub000/sdk"
)

type consoleListener struct{}

func (consoleListener) OnConnected() { log.Println("connected") }

func (consoleListener) OnDisconnected(reason string) { log.Printf("disconnected: %s", reason) }

func (consoleListener) OnConnectionLost(reason string) { log.Printf("connection lost: %s", reason) }

func (consoleListener) OnError(message string) { log.Printf("error: %s", message) }

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	// Values from a local .env are optional; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	chatID := flag.String("chat", "", "chat id to open and tail")
	send := flag.String("send", "", "message to send into -chat before tailing")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *debug {
		cfg.Debug = true
	}
	if cfg.Debug {
		logger.SetLevel(logger.LevelDebug)
	}

	token := os.Getenv("CHATKIT_TOKEN")
	if token == "" {
		token = os.Getenv("NEXT_PUBLIC_CHAT_TOKEN")
	}
	if err := auth.ValidateFormat(token); err != nil {
		return fmt.Errorf("CHATKIT_TOKEN: %w", err)
	}

	client := sdk.New(*cfg, auth.Static(token))
	client.SetListener(consoleListener{})

	client.Events().OnMessage(func(ev wire.MessageEvent) {
		log.Printf("[%s] %s: %s", ev.Message.ChatID, ev.Message.SenderID, ev.Message.Content)
	})
	client.Events().OnTyping(func(ev wire.TypingEvent) {
		if ev.Typing {
			log.Printf("[%s] %s is typing...", ev.ChatID, ev.UserID)
		}
	})
	client.Events().OnPresence(func(ev wire.PresenceEvent) {
		state := "offline"
		if ev.Presence.Online {
			state = "online"
		}
		log.Printf("%s is %s", ev.Presence.UserID, state)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Disconnect()

	if err := client.RefreshChats(ctx); err != nil {
		log.Printf("list chats: %v", err)
	} else {
		for _, room := range client.Chats() {
			marker := ""
			if room.UnreadCount > 0 {
				marker = fmt.Sprintf(" (%d unread)", room.UnreadCount)
			}
			log.Printf("chat %s%s", room.ID, marker)
		}
	}

	if *chatID != "" {
		if err := client.OpenChat(ctx, *chatID); err != nil {
			return fmt.Errorf("open chat: %w", err)
		}
		for _, msg := range client.Messages(*chatID) {
			log.Printf("[%s] %s: %s", msg.CreatedAt.Format(time.RFC3339), msg.SenderID, msg.Content)
		}
		if *send != "" {
			if _, err := client.SendMessage(*chatID, *send, wire.KindText, nil); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down")
	return nil
}
