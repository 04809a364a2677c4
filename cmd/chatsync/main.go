package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/chatsync/internal/config"
	"github.com/mbeoliero/chatsync/internal/engine"
	"github.com/mbeoliero/chatsync/internal/identity"
	"github.com/mbeoliero/chatsync/internal/transport"
)

func main() {
	ctx := context.TODO()

	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.CtxError(ctx, "failed to load config: %v", err)
		panic(err)
	}

	// Resolve the current identity
	var ident identity.Provider
	switch {
	case cfg.Auth.UserId != "":
		ident = identity.NewStatic(cfg.Auth.UserId)
	case cfg.Auth.Token != "":
		ident, err = identity.FromToken(cfg.Auth.Token)
		if err != nil {
			log.CtxError(ctx, "failed to derive identity from token: %v", err)
			panic(err)
		}
	default:
		panic("config: auth.user_id or auth.token is required")
	}
	log.CtxInfo(ctx, "identity resolved: user_id=%s", ident.CurrentUserId())

	// Initialize the messaging client
	svc, err := transport.NewClient(cfg.Backend.BaseURL,
		transport.WithToken(cfg.Auth.Token),
		transport.WithTimeouts(cfg.Backend.DialTimeout, cfg.Backend.ReadTimeout, cfg.Backend.WriteTimeout))
	if err != nil {
		log.CtxError(ctx, "failed to create messaging client: %v", err)
		panic(err)
	}

	// Initialize the sync engine
	eng := engine.New(svc, ident, cfg.Sync.MessagePageSize,
		engine.WithConversationPageSize(cfg.Sync.ConversationPageSize))

	// Prime the conversation list
	if _, err := eng.LoadConversations(ctx, 1); err != nil {
		log.CtxError(ctx, "initial conversation sync failed: %v", err)
	}

	log.CtxInfo(ctx, "chatsync started: backend=%s", cfg.Backend.BaseURL)
	runLoop(ctx, eng)
}

func runLoop(ctx context.Context, eng *engine.Engine) {
	fmt.Println("commands: list | open <user_id> | send <text> | search <term> | page <n> | quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")

		reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		switch cmd {
		case "list":
			printConversations(eng)
		case "open":
			conv, err := eng.OpenByTargetUser(reqCtx, arg)
			if err != nil {
				fmt.Println("error:", err)
				break
			}
			fmt.Printf("opened %s with %s\n", conv.Id, conv.Counterpart.Nickname)
			printMessages(eng)
		case "send":
			selected := eng.Selected()
			if selected == nil {
				fmt.Println("error: open a conversation first")
				break
			}
			if _, err := eng.Send(reqCtx, selected.Id, arg); err != nil {
				fmt.Println("error:", err)
				if draft := eng.Draft(selected.Id); draft != "" {
					fmt.Printf("draft kept: %q\n", draft)
				}
				break
			}
			printMessages(eng)
		case "search":
			for _, view := range eng.Search(arg) {
				printConversation(view)
			}
		case "page":
			page, err := strconv.Atoi(arg)
			if err != nil {
				fmt.Println("error: page wants a number")
				break
			}
			if err := eng.Paginate(reqCtx, page); err != nil {
				fmt.Println("error:", err)
				break
			}
			printMessages(eng)
		case "quit", "exit":
			cancel()
			return
		default:
			fmt.Println("unknown command:", cmd)
		}
		cancel()
	}
}

func printConversations(eng *engine.Engine) {
	views := eng.Conversations()
	if len(views) == 0 {
		fmt.Println("(no conversations)")
		return
	}
	for _, view := range views {
		printConversation(view)
	}
}

func printConversation(view engine.ConversationView) {
	marker := " "
	if view.HasPriority {
		marker = "*"
	}
	preview := ""
	if view.LastMessage != nil {
		preview = view.LastMessage.Content
	}
	fmt.Printf("%s %-20s [%d unread] %s\n", marker, view.Counterpart.Nickname, view.UnreadCount, preview)
}

func printMessages(eng *engine.Engine) {
	for _, msg := range eng.Messages() {
		who := msg.SenderId
		if msg.IsMine {
			who = "me"
		}
		suffix := ""
		if msg.IsTemporary {
			suffix = " (sending)"
		}
		fmt.Printf("[%s] %s: %s%s\n",
			time.UnixMilli(msg.CreatedAt).Format("15:04"), who, msg.Content, suffix)
	}
}
