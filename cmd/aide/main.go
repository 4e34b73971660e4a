package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/aide-sh/aide/internal/analysis"
	"github.com/aide-sh/aide/internal/chat"
	"github.com/aide-sh/aide/internal/config"
	"github.com/aide-sh/aide/internal/llm"
	"github.com/aide-sh/aide/internal/mcp"
	"github.com/aide-sh/aide/internal/store"
)

const version = "0.1.0"

func main() {
	// Optional .env for API keys; absence is fine.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	cmd := os.Args[1]
	args, opts := splitGlobalFlags(os.Args[2:])

	var err error
	switch cmd {
	case "chat":
		err = runChat(args, opts)
	case "analyze":
		err = runAnalyze(opts)
	case "notes":
		err = runNotes(args, opts)
	case "lists":
		err = runLists(args, opts)
	case "goals":
		err = runGoals(args, opts)
	case "mind":
		err = runMind(args, opts)
	case "profile":
		err = runProfile(args, opts)
	case "stats":
		err = runStats(opts)
	case "config":
		err = runConfig(opts)
	case "mcp":
		err = runMCP(opts)
	case "version", "--version", "-v":
		fmt.Printf("aide %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// splitGlobalFlags peels --db, --llm, --local-url, and --config off the
// argument list; everything else stays positional for the subcommand.
func splitGlobalFlags(args []string) ([]string, config.ResolveOptions) {
	var rest []string
	var opts config.ResolveOptions

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--db", "--llm", "--local-url", "--config":
			flag := args[i]
			value := ""
			if i+1 < len(args) {
				i++
				value = args[i]
			}
			switch flag {
			case "--db":
				opts.CLIDBPath = value
			case "--llm":
				opts.CLILLM = value
			case "--local-url":
				opts.CLILocalURL = value
			case "--config":
				opts.ConfigPath = value
			}
		default:
			rest = append(rest, args[i])
		}
	}
	return rest, opts
}

type runtime struct {
	store    store.Store
	provider llm.Provider
	log      *zap.Logger
}

func setup(opts config.ResolveOptions) (*runtime, error) {
	resolved, err := config.ResolveConfig(opts)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(store.Config{DBPath: resolved.DBPath.Value})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	providerCfg, err := llm.ParseProviderFlag(resolved.LLMProvider.Value)
	if err != nil {
		st.Close()
		return nil, err
	}
	providerCfg.APIKey = resolved.APIKeyForProvider(resolved.LLMProvider.Value).Value
	if providerCfg.Provider == "local" || providerCfg.Provider == "" {
		providerCfg.BaseURL = resolved.LocalURL.Value
	}

	provider, err := llm.NewProvider(providerCfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &runtime{store: st, provider: provider, log: newLogger()}, nil
}

func (r *runtime) close() {
	_ = r.log.Sync()
	r.store.Close()
}

func newLogger() *zap.Logger {
	if os.Getenv("AIDE_DEBUG") != "" {
		log, _ := zap.NewDevelopment()
		return log
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	log, _ := cfg.Build()
	return log
}

func runChat(args []string, opts config.ResolveOptions) error {
	rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx := context.Background()
	engine := chat.New(rt.store, rt.provider, rt.log)
	pipeline := analysis.New(rt.store, rt.provider, rt.log)

	// One-shot: aide chat "message"
	if len(args) > 0 {
		reply, err := engine.Send(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		printReply(reply)
		pipeline.ProcessRecentConversations(ctx)
		return nil
	}

	fmt.Printf("aide %s - type a message, or /quit to exit\n", version)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		reply, err := engine.Send(ctx, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		printReply(reply)

		// Analysis runs in the background between turns; the busy flag
		// drops overlapping triggers.
		go pipeline.ProcessRecentConversations(context.Background())
	}
	return scanner.Err()
}

func printReply(reply *chat.Reply) {
	fmt.Println(reply.Text)
	if len(reply.Suggestions) > 0 {
		fmt.Printf("  suggestions: %s\n", strings.Join(reply.Suggestions, " | "))
	}
}

func runAnalyze(opts config.ResolveOptions) error {
	rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx := context.Background()
	pipeline := analysis.New(rt.store, rt.provider, rt.log)
	pipeline.ProcessRecentConversations(ctx)

	checkpoint, err := store.GetCheckpoint(ctx, rt.store)
	if err != nil {
		return err
	}
	fmt.Printf("Analysis checkpoint: message %d\n", checkpoint)
	return nil
}

func runNotes(args []string, opts config.ResolveOptions) error {
	rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.close()
	ctx := context.Background()

	if len(args) > 0 && args[0] == "add" {
		if len(args) < 3 {
			return fmt.Errorf("usage: aide notes add <title> <body>")
		}
		note := &store.Note{Title: args[1], Body: strings.Join(args[2:], " "), Origin: store.RoleUser}
		if _, err := rt.store.AddNote(ctx, note); err != nil {
			return err
		}
		fmt.Printf("Saved note %q\n", note.Title)
		return nil
	}

	notes, err := rt.store.ListNotes(ctx)
	if err != nil {
		return err
	}
	if len(notes) == 0 {
		fmt.Println("No notes yet.")
		return nil
	}
	for _, n := range notes {
		tag := ""
		if n.Tag != "" {
			tag = " [" + n.Tag + "]"
		}
		fmt.Printf("%d. %s%s - %s\n", n.ID, n.Title, tag, n.Body)
	}
	return nil
}

func runLists(args []string, opts config.ResolveOptions) error {
	rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.close()
	ctx := context.Background()

	if len(args) > 0 {
		switch args[0] {
		case "add":
			if len(args) < 3 {
				return fmt.Errorf("usage: aide lists add <list> <item>")
			}
			return addListItem(ctx, rt.store, args[1], strings.Join(args[2:], " "))
		case "done":
			if len(args) < 2 {
				return fmt.Errorf("usage: aide lists done <item-id>")
			}
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q", args[1])
			}
			if err := rt.store.SetListItemDone(ctx, id, true); err != nil {
				return err
			}
			fmt.Printf("Checked off item %d\n", id)
			return nil
		case "rm":
			if len(args) < 2 {
				return fmt.Errorf("usage: aide lists rm <list-id>")
			}
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid list id %q", args[1])
			}
			if err := rt.store.DeleteList(ctx, id); err != nil {
				return err
			}
			fmt.Printf("Deleted list %d\n", id)
			return nil
		}
	}

	lists, err := rt.store.ListLists(ctx)
	if err != nil {
		return err
	}
	if len(lists) == 0 {
		fmt.Println("No lists yet.")
		return nil
	}
	for _, l := range lists {
		fmt.Printf("%d. %s\n", l.ID, l.Title)
		items, err := rt.store.ListItems(ctx, l.ID)
		if err != nil {
			return err
		}
		for _, item := range items {
			mark := " "
			if item.Done {
				mark = "x"
			}
			fmt.Printf("   [%s] %d. %s\n", mark, item.ID, item.Content)
		}
	}
	return nil
}

func addListItem(ctx context.Context, st store.Store, name, item string) error {
	lists, err := st.ListLists(ctx)
	if err != nil {
		return err
	}
	var target *store.List
	for _, l := range lists {
		if strings.EqualFold(l.Title, name) {
			target = l
			break
		}
	}
	if target == nil {
		target = &store.List{Title: name, Category: analysis.ListCategory(name)}
		if _, err := st.AddList(ctx, target); err != nil {
			return err
		}
		fmt.Printf("Created list %q\n", target.Title)
	}

	if _, err := st.AddListItem(ctx, &store.ListItem{ListID: target.ID, Content: item}); err != nil {
		return err
	}
	fmt.Printf("Added %q to %s\n", item, target.Title)
	return nil
}

func runGoals(args []string, opts config.ResolveOptions) error {
	rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.close()
	ctx := context.Background()

	if len(args) > 0 {
		switch args[0] {
		case "add":
			if len(args) < 2 {
				return fmt.Errorf("usage: aide goals add <title> [--cadence daily|weekly|monthly]")
			}
			cadence := store.CadenceDaily
			var title []string
			for i := 1; i < len(args); i++ {
				if args[i] == "--cadence" && i+1 < len(args) {
					i++
					cadence = args[i]
					continue
				}
				title = append(title, args[i])
			}
			goal := &store.Goal{Title: strings.Join(title, " "), Cadence: cadence}
			if _, err := rt.store.AddGoal(ctx, goal); err != nil {
				return err
			}
			fmt.Printf("Added %s goal %q\n", goal.Cadence, goal.Title)
			return nil
		case "complete":
			if len(args) < 2 {
				return fmt.Errorf("usage: aide goals complete <goal-id>")
			}
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid goal id %q", args[1])
			}
			if err := rt.store.CompleteGoal(ctx, id, time.Now().UTC()); err != nil {
				return err
			}
			fmt.Printf("Completed goal %d\n", id)
			return nil
		}
	}

	goals, err := rt.store.ListGoals(ctx)
	if err != nil {
		return err
	}
	if len(goals) == 0 {
		fmt.Println("No goals yet.")
		return nil
	}
	for _, g := range goals {
		last := "never"
		if g.LastCompleted != nil {
			last = g.LastCompleted.Format("2006-01-02")
		}
		fmt.Printf("%d. %s (%s) - streak %d, last %s\n", g.ID, g.Title, g.Cadence, g.Streak, last)
	}
	return nil
}

func runMind(args []string, opts config.ResolveOptions) error {
	rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.close()
	ctx := context.Background()

	category := ""
	if len(args) > 0 {
		category = strings.ToLower(args[0])
	}

	facts, err := rt.store.ListFacts(ctx)
	if err != nil {
		return err
	}

	shown := 0
	for _, f := range facts {
		if category != "" && f.Category != category {
			continue
		}
		link := ""
		if f.LinkedTo != nil {
			link = fmt.Sprintf(" -> %d", *f.LinkedTo)
		}
		fmt.Printf("%d. [%s] %s (%.0f%%)%s\n", f.ID, f.Category, f.Label, f.Confidence*100, link)
		shown++
	}
	if shown == 0 {
		fmt.Println("No mindmap facts yet.")
	}
	return nil
}

func runProfile(args []string, opts config.ResolveOptions) error {
	rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.close()
	ctx := context.Background()

	if len(args) > 0 && args[0] == "set" {
		return setProfile(ctx, rt.store, args[1:])
	}

	profile, err := rt.store.GetProfile(ctx)
	if err != nil {
		return err
	}
	if profile == nil {
		fmt.Println("No profile yet. Create one with: aide profile set --name <name>")
		return nil
	}
	fmt.Printf("Name:     %s\n", profile.Name)
	if profile.Nickname != "" {
		fmt.Printf("Nickname: %s\n", profile.Nickname)
	}
	if profile.Role != "" {
		fmt.Printf("Role:     %s\n", profile.Role)
	}
	if profile.AgeGroup != "" {
		fmt.Printf("Age:      %s\n", profile.AgeGroup)
	}
	if profile.Gender != "" {
		fmt.Printf("Gender:   %s\n", profile.Gender)
	}
	if len(profile.Traits) > 0 {
		fmt.Printf("Traits:   %s\n", strings.Join(profile.Traits, ", "))
	}
	return nil
}

func setProfile(ctx context.Context, st store.Store, args []string) error {
	profile, err := st.GetProfile(ctx)
	if err != nil {
		return err
	}
	if profile == nil {
		profile = &store.Profile{}
	}

	for i := 0; i < len(args); i++ {
		if i+1 >= len(args) {
			return fmt.Errorf("flag %s needs a value", args[i])
		}
		value := args[i+1]
		switch args[i] {
		case "--name":
			profile.Name = value
		case "--nickname":
			profile.Nickname = value
		case "--role":
			profile.Role = value
		case "--age-group":
			profile.AgeGroup = value
		case "--gender":
			profile.Gender = value
		case "--traits":
			profile.Traits = nil
			for _, t := range strings.Split(value, ",") {
				if t = strings.TrimSpace(t); t != "" {
					profile.Traits = append(profile.Traits, t)
				}
			}
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
		i++
	}

	if _, err := st.SaveProfile(ctx, profile); err != nil {
		return err
	}
	fmt.Println("Profile saved.")
	return nil
}

func runStats(opts config.ResolveOptions) error {
	rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	stats, err := rt.store.Stats(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Messages:    %d\n", stats.MessageCount)
	fmt.Printf("Notes:       %d\n", stats.NoteCount)
	fmt.Printf("Lists:       %d (%d items)\n", stats.ListCount, stats.ListItemCount)
	fmt.Printf("Goals:       %d\n", stats.GoalCount)
	fmt.Printf("Mindmap:     %d facts\n", stats.FactCount)
	fmt.Printf("Checkpoint:  message %d\n", stats.Checkpoint)
	if stats.DBSizeBytes > 0 {
		fmt.Printf("DB size:     %.1f KB\n", float64(stats.DBSizeBytes)/1024)
	}
	return nil
}

func runConfig(opts config.ResolveOptions) error {
	resolved, err := config.ResolveConfig(opts)
	if err != nil {
		return err
	}

	fmt.Printf("Config file: %s\n", resolved.ConfigPath)
	printResolved("db_path", resolved.DBPath, store.DefaultDBPath)
	printResolved("llm", resolved.LLMProvider, "local")
	printResolved("local_url", resolved.LocalURL, "http://127.0.0.1:8080")
	for provider, key := range resolved.LLMKeys {
		fmt.Printf("%-12s %s (%s: %s)\n", provider+"_key:", strings.Repeat("*", 8), key.Source, key.From)
	}
	return nil
}

func printResolved(name string, v config.ResolvedValue, fallback string) {
	value := v.Value
	source := string(v.Source)
	from := v.From
	if value == "" {
		value = fallback
		source = "default"
		from = "built-in"
	}
	fmt.Printf("%-12s %s (%s: %s)\n", name+":", value, source, from)
}

func runMCP(opts config.ResolveOptions) error {
	rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	srv := mcp.NewServer(mcp.ServerConfig{
		Store:    rt.store,
		Chat:     chat.New(rt.store, rt.provider, rt.log),
		Pipeline: analysis.New(rt.store, rt.provider, rt.log),
		Version:  version,
	})

	return server.ServeStdio(srv)
}

func printUsage() {
	fmt.Printf(`aide %s - local-first personal assistant engine

Usage:
  aide <command> [arguments]

Commands:
  chat [message]            Chat with the assistant (REPL without a message)
  analyze                   Run one analysis pass over unprocessed turns
  notes [add <title> <body>]
                            List or add notes
  lists [add <list> <item> | done <item-id> | rm <list-id>]
                            List, extend, check off, or delete lists
  goals [add <title> [--cadence daily|weekly|monthly] | complete <id>]
                            List, add, or complete recurring goals
  mind [category]           Show mindmap facts, optionally filtered
  profile [set ...]         Show or update the user profile
  stats                     Show store statistics
  config                    Show resolved configuration and provenance
  mcp                       Run the MCP server on stdio
  version                   Print version

Global Flags:
  --db <path>               Database path (default %s)
  --llm <provider[/model]>  Completion provider: local, openrouter, google
  --local-url <url>         Local llama.cpp-style server URL
  --config <path>           Config file path (default ~/.aide/config.yaml)

Profile Flags:
  --name, --nickname, --role, --age-group, --gender, --traits a,b,c
`, version, store.DefaultDBPath)
}
