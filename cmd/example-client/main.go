package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/peterh/liner"

	"github.com/telltail/conmem/pkg/config"
	"github.com/telltail/conmem/pkg/conmem"
	"github.com/telltail/conmem/pkg/log"
	"github.com/telltail/conmem/pkg/session"
)

// Constants for the command-line interface
const (
	cmdHelp     = "!help"
	cmdQuit     = "!quit"
	cmdSession  = "!session"
	cmdUser     = "!user"
	cmdHistory  = "!history"
	cmdPatterns = "!patterns"
	cmdRelated  = "!related"
	cmdConfig   = "!config"
)

// Command-line help text
const helpText = `
ConMem Client - Command Reference:
-----------------------------------------
!help                 - Show this help message
!session <id>         - Switch to another session ID
!user <id>            - Set the current user ID
!history [n]          - Show the last n turns of this session (default 10)
!patterns             - Show the patterns detected on the last turn
!related              - Show the context retrieved for the last turn
!config               - Show current configuration
!quit                 - Exit the application

Notes:
- Regular text input is treated as a conversational turn: it is
  classified against session history, supporting context is retrieved,
  and you are prompted for the assistant response to commit
- Tab completion is available for commands
- Use up/down arrows for command history`

// historyFile is the file where command history is stored
const historyFile = ".conmem_history"

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to configuration file")
	stdinMode := flag.Bool("s", false, "Read from stdin and exit when complete")
	flag.Parse()

	// A .env file can supply OPENAI_API_KEY and friends
	_ = godotenv.Load()

	// Initialize logger
	log.Setup(log.Config{
		Level:  log.InfoLevel,
		Format: log.TextFormat,
	})

	log.Info("Starting ConMem client")

	clientInstance, err := conmem.NewConMemFromConfig(*configPath)
	if err != nil {
		log.Error("Failed to initialize ConMem client", "error", err)
		os.Exit(1)
	}
	defer clientInstance.Close()

	// Load config for CLI display purposes only
	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		log.Error("Failed to load configuration for CLI", "error", err)
		os.Exit(1)
	}

	// Start the command-line interface
	runCLI(clientInstance, cfg, *stdinMode)
}

// cliState is the mutable state of one CLI run.
type cliState struct {
	sessionID session.ID
	userID    string
	lastPkg   *conmem.ContextPackage
}

func (s *cliState) ctx() context.Context {
	return session.ContextWithSession(context.Background(),
		session.NewContext(s.sessionID, s.userID))
}

// runCLI starts the command-line interface for user interaction
func runCLI(clientInstance *conmem.ConMemClientImpl, cfg *config.Config, stdinMode bool) {
	state := &cliState{
		sessionID: session.ID(uuid.NewString()),
		userID:    "default-user",
	}

	// Different handling based on mode
	if stdinMode {
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("\n=== ConMem Client (stdin mode) ===")
		printBanner(cfg, state)

		for scanner.Scan() {
			input := strings.TrimSpace(scanner.Text())
			if input == "" {
				continue
			}

			// Skip comments and shebang lines for stdin-based testing
			if strings.HasPrefix(input, "#") || strings.HasPrefix(input, "//") {
				continue
			}

			if input == cmdQuit {
				fmt.Println("Goodbye!")
				return
			}

			// Format a fake prompt for better output readability
			fmt.Print(promptFor(state), input, "\n")
			processCommand(input, clientInstance, cfg, state, nil)
		}

		if err := scanner.Err(); err != nil {
			fmt.Printf("Error reading stdin: %v\n", err)
		}
		fmt.Println("Goodbye!")
		return
	}

	// Interactive mode
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetMultiLineMode(false)

	// Set tab completion
	line.SetCompleter(func(line string) (c []string) {
		commands := []string{cmdHelp, cmdQuit, cmdSession, cmdUser, cmdHistory, cmdPatterns, cmdRelated, cmdConfig}
		for _, cmd := range commands {
			if strings.HasPrefix(cmd, line) {
				c = append(c, cmd)
			}
		}
		return
	})

	// Load history from file if it exists
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	// Save history when exiting
	defer func() {
		if f, err := os.Create(historyFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Println("\n=== ConMem Client ===")
	printBanner(cfg, state)
	fmt.Println("Type !help for available commands.")

	// Main loop
	for {
		input, err := line.Prompt(promptFor(state))
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nGoodbye!")
				break
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		line.AppendHistory(input)

		if input == cmdQuit {
			fmt.Println("Goodbye!")
			break
		}

		if !processCommand(input, clientInstance, cfg, state, line) {
			break
		}
	}
}

func promptFor(state *cliState) string {
	short := string(state.sessionID)
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("conmem::%s@%s> ", state.userID, short)
}

func printBanner(cfg *config.Config, state *cliState) {
	fmt.Println("Archive:", cfg.Store.Archive)
	fmt.Println("Embedding Provider:", cfg.Embedding.Provider)
	fmt.Printf("Current Session: %s | Current User: %s\n", state.sessionID, state.userID)
}

// processCommand handles a single command and returns false if the CLI should exit
func processCommand(input string,
	clientInstance *conmem.ConMemClientImpl,
	cfg *config.Config,
	state *cliState,
	line *liner.State) bool {

	if strings.HasPrefix(input, "!") {
		parts := strings.SplitN(input, " ", 2)
		cmd := parts[0]

		switch cmd {
		case cmdHelp:
			fmt.Println(helpText)

		case cmdQuit:
			// Already handled in main loop
			return false

		case cmdSession:
			if len(parts) == 1 {
				fmt.Printf("Current session: %s\n", state.sessionID)
				if line != nil {
					sessionInput, err := line.Prompt("Enter new session ID (or press Enter to keep current): ")
					if err == nil && strings.TrimSpace(sessionInput) != "" {
						state.sessionID = session.ID(strings.TrimSpace(sessionInput))
						state.lastPkg = nil
						fmt.Printf("Session set to: %s\n", state.sessionID)
					}
				}
			} else {
				state.sessionID = session.ID(parts[1])
				state.lastPkg = nil
				fmt.Printf("Session set to: %s\n", state.sessionID)
			}

		case cmdUser:
			if len(parts) == 1 {
				fmt.Printf("Current user: %s\n", state.userID)
				if line != nil {
					userInput, err := line.Prompt("Enter new user ID (or press Enter to keep current): ")
					if err == nil && strings.TrimSpace(userInput) != "" {
						state.userID = strings.TrimSpace(userInput)
						fmt.Printf("User set to: %s\n", state.userID)
					}
				}
			} else {
				state.userID = parts[1]
				fmt.Printf("User set to: %s\n", state.userID)
			}

		case cmdHistory:
			limit := 10
			if len(parts) == 2 {
				if n, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil && n > 0 {
					limit = n
				}
			}
			turns, err := clientInstance.History(state.ctx(), limit)
			if err != nil {
				fmt.Printf("Error reading history: %v\n", err)
				return true
			}
			if len(turns) == 0 {
				fmt.Println("No turns recorded in this session yet.")
				return true
			}
			for _, turn := range turns {
				category := "unclassified"
				if turn.Relationship != nil {
					category = turn.Relationship.Category.String()
				}
				fmt.Printf("[%d] (%s) user: %s\n", turn.Ordinal, category, turn.Input)
				fmt.Printf("         assistant: %s\n", turn.Response)
			}

		case cmdPatterns:
			if state.lastPkg == nil || state.lastPkg.Patterns == nil {
				fmt.Println("No patterns detected yet. Process a turn first.")
				return true
			}
			patterns := state.lastPkg.Patterns
			if len(patterns.Themes) == 0 {
				fmt.Println("No recurring themes in the current window.")
			}
			for _, theme := range patterns.Themes {
				fmt.Printf("theme %-20s count=%d turns=%d\n", theme.Token, theme.Count, len(theme.InteractionIDs))
			}
			if len(patterns.Chains) > 0 {
				fmt.Printf("resumption chains: %d\n", len(patterns.Chains))
			}
			if len(patterns.ContradictionIDs) > 0 {
				fmt.Printf("contradictions: %d\n", len(patterns.ContradictionIDs))
			}

		case cmdRelated:
			if state.lastPkg == nil {
				fmt.Println("No retrieved context yet. Process a turn first.")
				return true
			}
			if len(state.lastPkg.Retrieved) == 0 {
				fmt.Println("Nothing was retrieved for the last turn.")
				return true
			}
			for i, record := range state.lastPkg.Retrieved {
				fmt.Printf("%d. [%s] %s\n", i+1, record.ID, record.Input)
			}

		case cmdConfig:
			fmt.Println("\nCurrent Configuration:")
			fmt.Println("======================")
			fmt.Printf("Retention Window: %d\n", cfg.Store.RetentionWindow)
			fmt.Printf("Archive: %s\n", cfg.Store.Archive)
			switch cfg.Store.Archive {
			case "boltdb":
				fmt.Printf("BoltDB Path: %s\n", cfg.Store.BoltDB.Path)
			case "sqlite":
				fmt.Printf("SQLite Path: %s\n", cfg.Store.SQLite.Path)
			case "postgres":
				fmt.Printf("Postgres DSN: %s\n", cfg.Store.Postgres.DSN)
			}
			fmt.Printf("Vector Index Enabled: %v\n", cfg.Store.Vector.Enabled)

			fmt.Printf("\nEmbedding Provider: %s\n", cfg.Embedding.Provider)
			if cfg.Embedding.Provider == "openai" {
				fmt.Printf("OpenAI Model: %s\n", cfg.Embedding.OpenAI.Model)
			}

			fmt.Printf("\nFusion Weights: time=%.2f topic=%.2f semantic=%.2f relationship=%.2f\n",
				cfg.Retrieval.Weights.Time,
				cfg.Retrieval.Weights.Topic,
				cfg.Retrieval.Weights.Semantic,
				cfg.Retrieval.Weights.Relationship,
			)

			fmt.Printf("\nScripting Enabled: %v\n", cfg.Scripting.Enabled)
			fmt.Printf("Log Level: %s\n", cfg.Logging.Level)
			fmt.Printf("Session: %s\n", state.sessionID)
			fmt.Printf("User: %s\n", state.userID)

		default:
			fmt.Printf("Unknown command: %s\nType !help for available commands.\n", cmd)
		}
		return true
	}

	// Plain text is one conversational turn.
	ctx := state.ctx()
	pkg, err := clientInstance.ProcessTurn(ctx, input)
	if err != nil {
		fmt.Printf("Error processing turn: %v\n", err)
		return true
	}
	state.lastPkg = pkg

	printPackage(pkg)

	// Record the assistant side of the turn so the next input has
	// history to classify against.
	response := "(recorded)"
	if line != nil {
		entered, err := line.Prompt("assistant response (Enter to record a placeholder): ")
		if err == nil && strings.TrimSpace(entered) != "" {
			response = strings.TrimSpace(entered)
		}
	}

	id, err := clientInstance.CommitTurn(ctx, input, response, pkg)
	if err != nil {
		fmt.Printf("Error committing turn: %v\n", err)
		return true
	}
	fmt.Printf("committed turn %s\n", id)
	return true
}

func printPackage(pkg *conmem.ContextPackage) {
	rel := pkg.Relationship
	fmt.Printf("category:   %s (confidence %.2f, similarity %.2f)\n",
		rel.Category, rel.Confidence, rel.Similarity)
	fmt.Printf("transition: %s\n", rel.Transition)
	if rel.ResumptionTargetID != "" {
		fmt.Printf("resumes:    %s\n", rel.ResumptionTargetID)
	}
	if rel.PatternID != "" {
		fmt.Printf("pattern:    %s\n", rel.PatternID)
	}
	if len(pkg.Hints.ActiveTopics) > 0 {
		fmt.Printf("topics:     %s\n", strings.Join(pkg.Hints.ActiveTopics, ", "))
	}
	if pkg.Hints.HistoryUnavailable {
		fmt.Println("note:       history unavailable, classification degraded")
	}
	if pkg.Hints.DegradedSimilarity {
		fmt.Println("note:       similarity engine running on lexical fallback")
	}
	fmt.Printf("retrieved:  %d (use !related to inspect)\n", len(pkg.Retrieved))
}
