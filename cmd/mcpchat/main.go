package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/earthboundkid/versioninfo/v2"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"github.com/mcpchat/mcpchat/internal/agent"
	"github.com/mcpchat/mcpchat/internal/llm"
	"github.com/mcpchat/mcpchat/internal/mcp"
)

type Config struct {
	LLM llm.Config

	MaxRounds int  `split_words:"true" default:"16"`
	Debug     bool `default:"false"`
}

func main() {
	help := flag.Bool("help", false, "Show help")
	registry := flag.String("registry", "", "Path to an mcpServers registry file (JSON or YAML)")
	servers := flag.String("servers", "", "Comma-separated server names to start from the registry")
	flag.Parse()

	if *help {
		envconfig.Usage("mcpchat", &Config{})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Running version:", versioninfo.Short())

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.Fatal("Error loading .env file")
		}
	}

	var c Config
	if err := envconfig.Process("mcpchat", &c); err != nil {
		log.Fatalf("error loading configuration: %v", err)
	}

	level := slog.LevelInfo
	if c.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})))

	backend, err := llm.NewBackend(c.LLM)
	if err != nil {
		log.Fatalf("error setting up backend: %v", err)
	}

	// Tool session setup
	var session *mcp.Session
	switch {
	case *registry != "":
		var names []string
		if *servers != "" {
			names = strings.Split(*servers, ",")
		}
		session, err = mcp.ConnectRegistry(ctx, *registry, names)
	case flag.NArg() == 1:
		session, err = mcp.Connect(ctx, flag.Arg(0))
	default:
		fmt.Fprintln(os.Stderr, "Usage: mcpchat <path_to_server_script>")
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("error connecting to tool server: %v", err)
	}
	defer session.Close()

	tools, err := session.ListTools(ctx)
	if err != nil {
		log.Fatalf("error listing tools: %v", err)
	}
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	fmt.Println("\nConnected to server with tools:", names)

	orchestrator := agent.New(backend, session, agent.WithMaxRounds(c.MaxRounds))

	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		defer cancel()
		return chatLoop(ctx, orchestrator)
	})
	wg.Go(func() error {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-ctx.Done():
		case <-c:
			log.Println("Shutting down")
			cancel()
		}

		return nil
	})

	if err := wg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("error: %v\n", err)
	}
}

// chatLoop reads one query per line and runs it through the
// orchestrator. A failed turn is reported and the loop keeps going.
func chatLoop(ctx context.Context, orchestrator *agent.Orchestrator) error {
	fmt.Println("\nMCP Client Started!")
	fmt.Println("Type your queries or 'quit' to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\nQuery: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if strings.EqualFold(query, "quit") {
			return nil
		}

		answer, err := orchestrator.ProcessQuery(ctx, query)
		if err != nil {
			fmt.Printf("\nError: %v\n", err)
			continue
		}
		fmt.Println("\n" + answer)
	}
}
