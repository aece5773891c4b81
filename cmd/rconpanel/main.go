// rconpanel - RCON control panel for Factorio and Satisfactory servers
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/madhouse/rconpanel/internal/api"
	"github.com/madhouse/rconpanel/internal/applog"
	"github.com/madhouse/rconpanel/internal/auth"
	"github.com/madhouse/rconpanel/internal/bus"
	"github.com/madhouse/rconpanel/internal/config"
	"github.com/madhouse/rconpanel/internal/dispatch"
	"github.com/madhouse/rconpanel/internal/domain"
	"github.com/madhouse/rconpanel/internal/game"
	"github.com/madhouse/rconpanel/internal/integration"
	"github.com/madhouse/rconpanel/internal/manager"
	"github.com/madhouse/rconpanel/internal/registry"
	"github.com/madhouse/rconpanel/internal/storage"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"
)

var version = "dev"

const defaultConfigPath = "/etc/rconpanel/config.yml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "server":
		cmdServer(os.Args[2:])
	case "password":
		cmdPassword(os.Args[2:])
	case "version":
		fmt.Printf("rconpanel %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: rconpanel <command> [options] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                               Start the panel backend")
	fmt.Println("  server list                         Show registered game servers")
	fmt.Println("  server add <name> --address <host> --port <port> --game <game>")
	fmt.Println("                                      Register a game server (prompts for RCON password)")
	fmt.Println("  server remove <name>                Remove a game server")
	fmt.Println("  password                            Generate a panel password hash for the config file")
	fmt.Println("  version                             Show version")
	fmt.Println("  help                                Show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --config <path>    Path to configuration file (default /etc/rconpanel/config.yml)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  rconpanel serve --config ./config.yml")
	fmt.Println("  rconpanel server add factory --address 10.0.0.5 --port 27015 --game factorio")
	fmt.Println("  rconpanel password")
}

func loadConfig(path string) *config.Config {
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		} else {
			return config.Default()
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// cmdServe starts the panel backend
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)

	log.Printf("rconpanel %s starting...", version)

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()
	log.Printf("Database initialized at %s", cfg.Database.Path)

	eventBus, err := bus.New()
	if err != nil {
		log.Fatalf("Failed to start event bus: %v", err)
	}
	defer eventBus.Close()

	logger := applog.New(eventBus)

	ctx := context.Background()

	reg, err := registry.New(ctx, store)
	if err != nil {
		log.Fatalf("Failed to load command registry: %v", err)
	}
	log.Printf("Loaded %d commands", len(reg.Commands()))

	mgr := manager.New(store, eventBus, logger, manager.Options{
		HealthInterval: cfg.Rcon.HealthInterval,
		Timeout:        cfg.Rcon.Timeout,
	})
	mgr.Run()

	dispatcher := dispatch.New(reg, mgr, store, eventBus, logger, cfg.Rcon.ScriptsDir)
	tracker := integration.New(eventBus, logger, cfg.Integrations.RelayToken)
	prober := game.New(eventBus, cfg.Factorio.Username, cfg.Factorio.Token)

	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.PasswordHash, cfg.Auth.TokenDuration)
	if cfg.Auth.JWTSecret == "" {
		log.Printf("Warning: No JWT secret configured. Auth tokens will use an empty secret.")
	}
	if !authService.Enabled() {
		log.Printf("Warning: No panel password configured. The API runs without authentication.")
	}

	router := api.NewRouter(api.Deps{
		Store:      store,
		Manager:    mgr,
		Registry:   reg,
		Dispatcher: dispatcher,
		Tracker:    tracker,
		Prober:     prober,
		Logger:     logger,
		Bus:        eventBus,
		Auth:       authService,
		StaticDir:  cfg.Server.StaticDir,
	})
	if err := router.StartWebSocketHub(); err != nil {
		log.Fatalf("Failed to start WebSocket hub: %v", err)
	}
	if cfg.Server.StaticDir != "" {
		log.Printf("Serving static files from %s", cfg.Server.StaticDir)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
	case err := <-serverErr:
		log.Fatalf("HTTP server error: %v", err)
	}

	log.Println("Shutting down HTTP server...")
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	router.StopWebSocketHub()

	log.Println("Stopping connection manager...")
	mgr.Stop()

	log.Println("Shutdown complete")
}

// cmdServer dispatches server subcommands
func cmdServer(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Error: server subcommand required: list, add, remove\n")
		os.Exit(1)
	}

	switch args[0] {
	case "list":
		cmdServerList(args[1:])
	case "add":
		cmdServerAdd(args[1:])
	case "remove":
		cmdServerRemove(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown server command: %s (use: list, add, remove)\n", args[0])
		os.Exit(1)
	}
}

func openStore(configPath string) *storage.Store {
	cfg := loadConfig(configPath)
	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open database: %v\n", err)
		os.Exit(1)
	}
	return store
}

// cmdServerList shows registered game servers
func cmdServerList(args []string) {
	fs := flag.NewFlagSet("server list", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	fs.Parse(args)

	store := openStore(*configPath)
	defer store.Close()

	servers, err := store.GetServers(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(servers) == 0 {
		fmt.Println("No servers registered")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tGAME\tADDRESS\tID")
	fmt.Fprintln(w, "----\t----\t-------\t--")
	for _, srv := range servers {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", srv.Name, srv.Game, srv.Addr(), srv.ID)
	}
	w.Flush()
}

// cmdServerAdd registers a game server, prompting for the RCON password
func cmdServerAdd(args []string) {
	fs := flag.NewFlagSet("server add", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	address := fs.String("address", "127.0.0.1", "RCON host")
	port := fs.Int("port", 0, "RCON port")
	gameName := fs.String("game", "factorio", "game type (factorio or satisfactory)")
	startCmd := fs.String("start-command", "", "shell command that starts the server")
	stopCmd := fs.String("stop-command", "", "shell command that stops the server")
	fs.Parse(args)

	remaining := fs.Args()
	if len(remaining) < 1 {
		fmt.Fprintf(os.Stderr, "usage: rconpanel server add <name> --address <host> --port <port> [--game <game>]\n")
		os.Exit(1)
	}
	name := remaining[0]

	g, err := domain.ParseGame(*gameName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Print("Enter RCON password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read password: %v\n", err)
		os.Exit(1)
	}

	srv := &domain.Server{
		ID:       uuid.NewString(),
		Name:     name,
		Address:  *address,
		Port:     *port,
		Password: string(password),
		Game:     g,
		Commands: domain.NewServerCommands(*startCmd, *stopCmd),
	}
	if err := srv.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	store := openStore(*configPath)
	defer store.Close()

	if err := store.CreateServer(context.Background(), srv); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Server '%s' registered (%s on %s)\n", name, g, srv.Addr())
}

// cmdServerRemove removes a game server by name
func cmdServerRemove(args []string) {
	fs := flag.NewFlagSet("server remove", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	fs.Parse(args)

	remaining := fs.Args()
	if len(remaining) < 1 {
		fmt.Fprintf(os.Stderr, "usage: rconpanel server remove <name>\n")
		os.Exit(1)
	}
	name := remaining[0]

	store := openStore(*configPath)
	defer store.Close()

	ctx := context.Background()
	servers, err := store.GetServers(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for _, srv := range servers {
		if srv.Name == name {
			if err := store.DeleteServer(ctx, srv.ID); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Server '%s' removed\n", name)
			return
		}
	}
	fmt.Fprintf(os.Stderr, "Error: no server named '%s'\n", name)
	os.Exit(1)
}

// cmdPassword prompts for a panel password and prints its bcrypt hash
func cmdPassword(args []string) {
	fs := flag.NewFlagSet("password", flag.ExitOnError)
	fs.Parse(args)

	fmt.Print("Enter panel password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read password: %v\n", err)
		os.Exit(1)
	}
	if len(password) < 8 {
		fmt.Fprintf(os.Stderr, "Error: password must be at least 8 characters\n")
		os.Exit(1)
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read password: %v\n", err)
		os.Exit(1)
	}
	if string(password) != string(confirm) {
		fmt.Fprintf(os.Stderr, "Error: passwords do not match\n")
		os.Exit(1)
	}

	hash, err := auth.HashPassword(string(password))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to hash password: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("Add to your config file under auth:")
	fmt.Printf("  password_hash: %s\n", strconv.Quote(hash))
}
