package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/hession/haxu-mcp/internal/config"
	"github.com/hession/haxu-mcp/internal/mcp"
)

const (
	Version = "0.1.0"

	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"

	historyLimit = 1000
	connectWait  = 10 * time.Second
)

var commands = []prompt.Suggest{
	{Text: "/help", Description: "Show this help message"},
	{Text: "/tools", Description: "List the tools the server offers"},
	{Text: "/call", Description: "Call a tool with JSON arguments"},
	{Text: "/ping", Description: "Check that the server answers"},
	{Text: "/config", Description: "Show current configuration"},
	{Text: "/exit", Description: "Exit program"},
}

// Shell is an interactive session against one server.
type Shell struct {
	client  *mcp.Client
	catalog []mcp.Tool
	byName  map[string]mcp.Tool
	out     io.Writer
}

// NewShell creates a shell over a connected client and its tool catalog.
func NewShell(client *mcp.Client, catalog []mcp.Tool, out io.Writer) *Shell {
	byName := make(map[string]mcp.Tool, len(catalog))
	for _, t := range catalog {
		byName[t.Name] = t
	}
	if out == nil {
		out = os.Stdout
	}
	return &Shell{client: client, catalog: catalog, byName: byName, out: out}
}

// Run connects to serverURL and starts the interactive prompt.
func Run(ctx context.Context, serverURL string) error {
	printWelcome(serverURL)

	client, err := mcp.NewClient(serverURL, nil)
	if err != nil {
		return err
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectWait)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", serverURL, err)
	}
	defer client.Close()

	catalog, err := client.Catalog(connectCtx)
	if err != nil {
		return fmt.Errorf("failed to receive tool catalog: %w", err)
	}
	info, err := client.Initialize(connectCtx)
	if err != nil {
		return fmt.Errorf("failed to initialize session: %w", err)
	}
	fmt.Printf("%s✅ Connected to %s %s (session %s, %d tools)%s\n\n",
		colorGreen, info.ServerInfo.Name, info.ServerInfo.Version, client.SessionID(), len(catalog.Tools), colorReset)

	shell := NewShell(client, catalog.Tools, os.Stdout)
	return shell.loop(ctx)
}

func printWelcome(serverURL string) {
	fmt.Printf("\n%s🔧 haxu-mcp client v%s%s - %s\n", colorCyan, Version, colorReset, serverURL)
	fmt.Printf("%sType /help for help, /exit to quit, Tab to complete tool names%s\n\n", colorGray, colorReset)
}

func (s *Shell) loop(ctx context.Context) error {
	historyFile := getHistoryFilePath()
	history := loadHistory(historyFile)

	for {
		line := prompt.Input("> ", s.Complete,
			prompt.OptionTitle("haxu-mcp"),
			prompt.OptionHistory(history),
			prompt.OptionPrefixTextColor(prompt.Green),
			prompt.OptionMaxSuggestion(10),
		)
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		history = append(history, input)
		appendHistory(historyFile, input)

		if !s.Execute(ctx, input) {
			return nil
		}
		if ctx.Err() != nil {
			fmt.Fprintf(s.out, "\n%sGoodbye! 👋%s\n", colorCyan, colorReset)
			return nil
		}
	}
}

// Execute runs one input line, returns false to exit.
func (s *Shell) Execute(ctx context.Context, input string) bool {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return true
	}

	switch strings.ToLower(parts[0]) {
	case "/help":
		s.printHelp()
	case "/exit", "/quit", "/q":
		fmt.Fprintf(s.out, "%sGoodbye! 👋%s\n", colorCyan, colorReset)
		return false
	case "/tools":
		s.printTools()
	case "/ping":
		if err := s.client.Ping(ctx); err != nil {
			fmt.Fprintf(s.out, "%s❌ Ping failed: %v%s\n", colorRed, err, colorReset)
		} else {
			fmt.Fprintf(s.out, "%s✅ pong%s\n", colorGreen, colorReset)
		}
	case "/config":
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(s.out, "%s❌ Failed to load config: %v%s\n", colorRed, err, colorReset)
		} else {
			fmt.Fprintln(s.out, cfg.String())
		}
	case "/call":
		name, args, err := ParseCall(strings.TrimSpace(strings.TrimPrefix(input, parts[0])))
		if err != nil {
			fmt.Fprintf(s.out, "%s❌ %v%s\n", colorRed, err, colorReset)
			return true
		}
		s.call(ctx, name, args)
	default:
		if strings.HasPrefix(parts[0], "/") {
			fmt.Fprintf(s.out, "%s❓ Unknown command: %s%s\n", colorYellow, input, colorReset)
			fmt.Fprintln(s.out, "Type /help for available commands")
			return true
		}
		name, args, err := ParseCall(input)
		if err != nil {
			fmt.Fprintf(s.out, "%s❌ %v%s\n", colorRed, err, colorReset)
			return true
		}
		s.call(ctx, name, args)
	}
	return true
}

func (s *Shell) call(ctx context.Context, name string, args map[string]any) {
	if _, ok := s.byName[name]; !ok {
		fmt.Fprintf(s.out, "%s⚠️  %s is not in the catalog, sending anyway%s\n", colorYellow, name, colorReset)
	}
	fmt.Fprintf(s.out, "%s🔧 Calling tool: %s%s\n", colorYellow, name, colorReset)
	if len(args) > 0 {
		fmt.Fprintf(s.out, "%s   Args: %v%s\n", colorGray, args, colorReset)
	}

	start := time.Now()
	result, err := s.client.CallTool(ctx, name, args)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		fmt.Fprintf(s.out, "%s   Status: ❌ Failed - %v%s\n\n", colorRed, err, colorReset)
		return
	}
	if result.IsError {
		fmt.Fprintf(s.out, "%s   Status: ❌ %s (%s)%s\n\n", colorRed, result.Text(), elapsed, colorReset)
		return
	}
	fmt.Fprintf(s.out, "%s   Status: ✅ Done (%s)%s\n\n", colorGreen, elapsed, colorReset)
	fmt.Fprintf(s.out, "%s%s%s\n\n", colorBlue, result.Text(), colorReset)
}

func (s *Shell) printTools() {
	if len(s.catalog) == 0 {
		fmt.Fprintf(s.out, "%sThe server offers no tools%s\n", colorGray, colorReset)
		return
	}
	fmt.Fprintf(s.out, "\n%s📚 Tools (%d)%s\n", colorCyan, len(s.catalog), colorReset)
	for _, t := range s.catalog {
		fmt.Fprintf(s.out, "  %s%s%s - %s\n", colorYellow, t.Name, colorReset, t.Description)
		for _, p := range t.Parameters {
			req := ""
			if p.Required {
				req = " (required)"
			}
			fmt.Fprintf(s.out, "%s      %s: %s%s%s\n", colorGray, p.Name, p.Type, req, colorReset)
		}
	}
	fmt.Fprintln(s.out)
}

func (s *Shell) printHelp() {
	fmt.Fprintf(s.out, `
%s📚 haxu-mcp Client Help%s

%sBuilt-in Commands:%s
  /help                    - Show this help message
  /tools                   - List the tools the server offers
  /call <tool> <json>      - Call a tool, e.g. /call get_alerts {"state": "CA"}
  /ping                    - Check that the server answers
  /config                  - Show current configuration
  /exit                    - Exit program

%sShorthand:%s
  <tool> key=value ...     - e.g. get_article_by_code article_code=5
  Quote values with spaces: count_chinese_characters text="你好 世界"

`, colorCyan, colorReset, colorYellow, colorReset, colorYellow, colorReset)
}

// Complete suggests commands, tool names and parameter names.
func (s *Shell) Complete(d prompt.Document) []prompt.Suggest {
	before := d.TextBeforeCursor()
	word := d.GetWordBeforeCursor()
	fields := strings.Fields(before)

	// first word
	if len(fields) == 0 || (len(fields) == 1 && !strings.HasSuffix(before, " ")) {
		return prompt.FilterHasPrefix(append(append([]prompt.Suggest{}, commands...), s.toolSuggestions()...), word, true)
	}

	toolName := fields[0]
	if toolName == "/call" {
		if len(fields) == 1 || (len(fields) == 2 && !strings.HasSuffix(before, " ")) {
			return prompt.FilterHasPrefix(s.toolSuggestions(), word, true)
		}
		return nil
	}

	tool, ok := s.byName[toolName]
	if !ok || strings.Contains(word, "=") {
		return nil
	}
	used := make(map[string]bool)
	for _, f := range fields[1:] {
		if k, _, found := strings.Cut(f, "="); found {
			used[k] = true
		}
	}
	var suggestions []prompt.Suggest
	for _, p := range tool.Parameters {
		if used[p.Name] {
			continue
		}
		suggestions = append(suggestions, prompt.Suggest{Text: p.Name + "=", Description: p.Description})
	}
	return prompt.FilterHasPrefix(suggestions, word, true)
}

func (s *Shell) toolSuggestions() []prompt.Suggest {
	suggestions := make([]prompt.Suggest, 0, len(s.catalog))
	for _, t := range s.catalog {
		suggestions = append(suggestions, prompt.Suggest{Text: t.Name, Description: firstLine(t.Description)})
	}
	return suggestions
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// ParseCall parses "tool {json}" or "tool key=value ..." into a tool name and
// arguments. Values that parse as JSON keep their JSON type, anything else
// is sent as a string.
func ParseCall(input string) (string, map[string]any, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", nil, errors.New("tool name is required")
	}

	name, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)
	args := make(map[string]any)
	if rest == "" {
		return name, args, nil
	}

	if strings.HasPrefix(rest, "{") {
		dec := json.NewDecoder(strings.NewReader(rest))
		dec.UseNumber()
		if err := dec.Decode(&args); err != nil {
			return "", nil, fmt.Errorf("invalid JSON arguments: %w", err)
		}
		return name, args, nil
	}

	fields, err := splitFields(rest)
	if err != nil {
		return "", nil, err
	}
	for _, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key == "" {
			return "", nil, fmt.Errorf("expected key=value, got %q", field)
		}
		args[key] = parseValue(value)
	}
	return name, args, nil
}

func parseValue(raw string) any {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return raw
	}
	switch v.(type) {
	case map[string]any, []any:
		return raw
	}
	return v
}

// splitFields splits on spaces, keeping double-quoted runs together.
func splitFields(s string) ([]string, error) {
	var fields []string
	var cur strings.Builder
	inQuote, has := false, false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			has = true
		case r == ' ' && !inQuote:
			if has {
				fields = append(fields, cur.String())
				cur.Reset()
				has = false
			}
		default:
			cur.WriteRune(r)
			has = true
		}
	}
	if inQuote {
		return nil, errors.New("unterminated quote")
	}
	if has {
		fields = append(fields, cur.String())
	}
	return fields, nil
}

// getHistoryFilePath returns the history file path
func getHistoryFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	historyDir := filepath.Join(homeDir, ".haxu-mcp")
	if err := os.MkdirAll(historyDir, 0755); err != nil {
		return ""
	}
	return filepath.Join(historyDir, "history")
}

func loadHistory(path string) []string {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > historyLimit {
		lines = lines[len(lines)-historyLimit:]
	}
	return lines
}

func appendHistory(path, line string) {
	if path == "" {
		return
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintln(f, line)
}
