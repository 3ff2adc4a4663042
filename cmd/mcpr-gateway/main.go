// ABOUTME: Entry point for the mcpr-gateway router
// ABOUTME: Serves the MCP endpoints and manages workspaces and access tokens

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/mcpr/mcpr-gateway/internal/aggregator"
	"github.com/mcpr/mcpr-gateway/internal/auth"
	"github.com/mcpr/mcpr-gateway/internal/config"
	"github.com/mcpr/mcpr-gateway/internal/gateway"
	"github.com/mcpr/mcpr-gateway/internal/migrate"
	"github.com/mcpr/mcpr-gateway/internal/store"
	"github.com/mcpr/mcpr-gateway/internal/workspace"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  _ __ ___   ___ _ __  _ __ ___ _ __
 | '_ ` + "`" + ` _ \ / __| '_ \| '__|___| '__|
 | | | | | | (__| |_) | |       | |
 |_| |_| |_|\___| .__/|_|       |_|   gateway
                |_|
`

// getConfigPath returns the path to the gateway config file.
// Priority: MCPR_CONFIG env var > XDG_CONFIG_HOME/mcpr/gateway.yaml > ~/.config/mcpr/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("MCPR_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "mcpr", "gateway.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: mcpr-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                      Start the gateway server")
		fmt.Println("  init                       Create a new config file interactively")
		fmt.Println("  token create --client ID   Issue an access token")
		fmt.Println("  token list                 List issued tokens")
		fmt.Println("  token revoke TOKEN         Revoke a token")
		fmt.Println("  project create NAME        Create a project")
		fmt.Println("  project list               List projects")
		fmt.Println("  project delete ID          Delete a project")
		fmt.Println("  workspace list             List workspaces")
		fmt.Println("  workspace use ID           Make a workspace active")
		fmt.Println("  workspace add-local ID PATH   Register a local workspace")
		fmt.Println("  workspace add-remote ID URL   Register a remote workspace")
		fmt.Println("  health                     Check gateway health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "token":
		err = runToken(ctx)
	case "project":
		err = runProject(ctx)
	case "workspace":
		err = runWorkspace(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file, falling back to defaults when none
// exists yet.
func loadConfig() (*config.Config, string, error) {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config.Default(), configPath, nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, configPath, err
	}
	return cfg, configPath, nil
}

func runServe(ctx context.Context) error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Data:      %s\n", cfg.Data.Dir)
	fmt.Println()

	registry, err := workspace.LoadRegistry(cfg.Data.Dir)
	if err != nil {
		return fmt.Errorf("loading workspace registry: %w", err)
	}

	engine := migrate.NewEngine(migrate.Registered())
	switcher := workspace.NewSwitcher(registry, engine, nil)
	defer switcher.Close()

	active := registry.Active()
	if err := switcher.SwitchTo(ctx, active.ID); err != nil {
		return fmt.Errorf("activating workspace %s: %w", active.ID, err)
	}

	if switcher.IsRemote() {
		// Serving against a remote workspace needs the proxy transport,
		// which is not wired into this binary. Switch back to a local
		// workspace first.
		return fmt.Errorf("active workspace %s is remote; select a local workspace before serving", active.ID)
	}

	db, err := switcher.Current()
	if err != nil {
		return err
	}

	tokens, err := store.NewTokenRepository(ctx, db)
	if err != nil {
		return fmt.Errorf("opening token repository: %w", err)
	}
	projects, err := store.NewProjectRepository(ctx, db)
	if err != nil {
		return fmt.Errorf("opening project repository: %w", err)
	}
	// Ensures the servers schema exists before the aggregator reads it
	if _, err := store.NewServerRepository(ctx, db); err != nil {
		return fmt.Errorf("opening server repository: %w", err)
	}

	aggregator.Version = version
	srv, err := gateway.NewServer(gateway.Config{
		Addr:       cfg.Server.HTTPAddr,
		Aggregator: aggregator.NewLocal(),
		Validator:  auth.NewTokenValidator(tokens),
		Resolver:   gateway.NewProjectResolver(projects, switcher.IsRemote()),
		Logger:     logger.With("component", "gateway"),
	})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	// Sessions are bound to the workspace they were opened against
	switcher.OnReset(srv.Sessions().CloseAll)

	logger.Info("starting mcpr-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"workspace", active.ID,
	)

	return srv.Run(ctx)
}

// openActiveDB opens the active workspace's database for CLI commands,
// running migrations when it is the main workspace.
func openActiveDB(ctx context.Context, cfg *config.Config) (*store.DB, error) {
	registry, err := workspace.LoadRegistry(cfg.Data.Dir)
	if err != nil {
		return nil, fmt.Errorf("loading workspace registry: %w", err)
	}

	active := registry.Active()
	if active.Kind != workspace.KindLocal {
		return nil, fmt.Errorf("active workspace %s is remote; tokens and projects live on the remote side", active.ID)
	}

	db, err := store.Open(active.Local.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening workspace database: %w", err)
	}

	if active.IsMain() {
		engine := migrate.NewEngine(migrate.Registered())
		if err := engine.Run(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func runToken(ctx context.Context) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: mcpr-gateway token <create|list|revoke>")
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := openActiveDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	repo, err := store.NewTokenRepository(ctx, db)
	if err != nil {
		return fmt.Errorf("opening token repository: %w", err)
	}

	switch os.Args[2] {
	case "create":
		clientID := parseFlag(os.Args[3:], "--client")
		if clientID == "" {
			return fmt.Errorf("--client is required")
		}
		token, err := repo.Create(ctx, clientID, nil)
		if err != nil {
			return fmt.Errorf("creating token: %w", err)
		}
		green := color.New(color.FgGreen)
		green.Printf("  ✓ Token issued for %s\n", clientID)
		fmt.Printf("  %s\n", token.ID)
		return nil

	case "list":
		tokens, err := repo.List(ctx)
		if err != nil {
			return fmt.Errorf("listing tokens: %w", err)
		}
		if len(tokens) == 0 {
			fmt.Println("no tokens issued")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TOKEN\tCLIENT\tISSUED")
		for _, t := range tokens {
			fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.ClientID, t.IssuedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()

	case "revoke":
		if len(os.Args) < 4 {
			return fmt.Errorf("usage: mcpr-gateway token revoke TOKEN")
		}
		if err := repo.Delete(ctx, os.Args[3]); err != nil {
			return fmt.Errorf("revoking token: %w", err)
		}
		fmt.Println("token revoked")
		return nil

	default:
		return fmt.Errorf("unknown token command: %s", os.Args[2])
	}
}

func runProject(ctx context.Context) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: mcpr-gateway project <create|list|delete>")
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := openActiveDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	repo, err := store.NewProjectRepository(ctx, db)
	if err != nil {
		return fmt.Errorf("opening project repository: %w", err)
	}

	switch os.Args[2] {
	case "create":
		if len(os.Args) < 4 {
			return fmt.Errorf("usage: mcpr-gateway project create NAME")
		}
		p, err := repo.Create(ctx, os.Args[3])
		if err != nil {
			return fmt.Errorf("creating project: %w", err)
		}
		green := color.New(color.FgGreen)
		green.Printf("  ✓ Project %s created\n", p.Name)
		fmt.Printf("  %s\n", p.ID)
		return nil

	case "list":
		projects, err := repo.List(ctx)
		if err != nil {
			return fmt.Errorf("listing projects: %w", err)
		}
		if len(projects) == 0 {
			fmt.Println("no projects")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCREATED")
		for _, p := range projects {
			fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Name, p.CreatedAt.Format("2006-01-02"))
		}
		return w.Flush()

	case "delete":
		if len(os.Args) < 4 {
			return fmt.Errorf("usage: mcpr-gateway project delete ID")
		}
		if err := repo.Delete(ctx, os.Args[3]); err != nil {
			return fmt.Errorf("deleting project: %w", err)
		}
		fmt.Println("project deleted")
		return nil

	default:
		return fmt.Errorf("unknown project command: %s", os.Args[2])
	}
}

func runWorkspace(ctx context.Context) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: mcpr-gateway workspace <list|use|add-local|add-remote>")
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	registry, err := workspace.LoadRegistry(cfg.Data.Dir)
	if err != nil {
		return fmt.Errorf("loading workspace registry: %w", err)
	}

	switch os.Args[2] {
	case "list":
		active := registry.Active()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tTARGET\tACTIVE")
		for _, ws := range registry.List() {
			target := ws.Local.DatabasePath
			if ws.Kind == workspace.KindRemote {
				target = ws.Remote.APIURL
			}
			marker := ""
			if ws.ID == active.ID {
				marker = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ws.ID, ws.Kind, target, marker)
		}
		return w.Flush()

	case "use":
		if len(os.Args) < 4 {
			return fmt.Errorf("usage: mcpr-gateway workspace use ID")
		}
		id := os.Args[3]

		// Validate the target the same way the server would: open it, and
		// migrate if it is the main workspace. A workspace whose migration
		// fails never becomes active.
		engine := migrate.NewEngine(migrate.Registered())
		switcher := workspace.NewSwitcher(registry, engine, nil)
		defer switcher.Close()
		if err := switcher.SwitchTo(ctx, id); err != nil {
			return err
		}
		fmt.Printf("workspace %s is now active\n", id)
		return nil

	case "add-local":
		if len(os.Args) < 5 {
			return fmt.Errorf("usage: mcpr-gateway workspace add-local ID PATH")
		}
		ws := workspace.Workspace{
			ID:    os.Args[3],
			Name:  os.Args[3],
			Kind:  workspace.KindLocal,
			Local: workspace.LocalConfig{DatabasePath: os.Args[4]},
		}
		if err := registry.Add(ws); err != nil {
			return err
		}
		if err := registry.Save(); err != nil {
			return err
		}
		fmt.Printf("workspace %s registered\n", ws.ID)
		return nil

	case "add-remote":
		if len(os.Args) < 5 {
			return fmt.Errorf("usage: mcpr-gateway workspace add-remote ID URL")
		}
		ws := workspace.Workspace{
			ID:     os.Args[3],
			Name:   os.Args[3],
			Kind:   workspace.KindRemote,
			Remote: workspace.RemoteConfig{APIURL: os.Args[4]},
		}
		if err := registry.Add(ws); err != nil {
			return err
		}
		if err := registry.Save(); err != nil {
			return err
		}
		fmt.Printf("workspace %s registered\n", ws.ID)
		return nil

	default:
		return fmt.Errorf("unknown workspace command: %s", os.Args[2])
	}
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("mcpr-gateway configuration setup")
	fmt.Println("================================")
	fmt.Println()

	defaults := config.Default()
	outputFile := prompt(reader, "Config file path", getConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	httpAddr := prompt(reader, "HTTP address", defaults.Server.HTTPAddr)
	dataDir := prompt(reader, "Data directory", defaults.Data.Dir)
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# mcpr-gateway configuration\n")
	cfg.WriteString("# Generated by mcpr-gateway init\n\n")
	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")
	cfg.WriteString("data:\n")
	cfg.WriteString(fmt.Sprintf("  dir: \"%s\"\n", dataDir))
	cfg.WriteString("\n")
	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  mcpr-gateway serve\n")

	return nil
}

// parseFlag finds the value of a "--flag value" or "--flag=value" argument.
func parseFlag(args []string, name string) string {
	for i := 0; i < len(args); i++ {
		if args[i] == name && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(args[i], name+"=") {
			return strings.TrimPrefix(args[i], name+"=")
		}
	}
	return ""
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
