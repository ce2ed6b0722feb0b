package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillsprint/coach/internal/composer"
	"github.com/skillsprint/coach/internal/config"
	"github.com/skillsprint/coach/internal/pipeline"
	"github.com/skillsprint/coach/internal/sprint"
	"github.com/skillsprint/coach/internal/storage"
	"github.com/skillsprint/coach/internal/topic"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <utterance>",
	Short: "Run one coaching turn and print the result",
	Long: `Run one coaching turn and print the result as JSON.

The pipeline runs in-process unless --server is given.

Examples:
  skillsprint ask "brief on ROAS" --focus Marketing
  skillsprint ask "start a sprint" --profile ./profile.json
  skillsprint ask "resources on email" --server`,
	RunE: func(cmd *cobra.Command, args []string) error {
		utterance := strings.TrimSpace(strings.Join(args, " "))
		if utterance == "" {
			return fmt.Errorf("an utterance is required")
		}
		focus, _ := cmd.Flags().GetString("focus")
		profilePath, _ := cmd.Flags().GetString("profile")
		kpisPath, _ := cmd.Flags().GetString("kpis")
		remote, _ := cmd.Flags().GetBool("server")
		showTrace, _ := cmd.Flags().GetBool("trace")

		req, err := buildCoachRequest(utterance, focus, profilePath, kpisPath)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		if remote {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			return askServer(ctx, client, req)
		}

		a, err := loadApp()
		if err != nil {
			return err
		}
		res, trace := a.coach.Respond(ctx, req)
		if showTrace {
			printTrace(trace)
		}
		return printJSON(os.Stdout, res)
	},
}

func init() {
	askCmd.Flags().String("focus", "", "comma-separated focus areas")
	askCmd.Flags().String("profile", "", "path to a profile JSON file")
	askCmd.Flags().String("kpis", "", "path to a KPI snapshot JSON file")
	askCmd.Flags().Bool("server", false, "send the request to a running server")
	askCmd.Flags().Bool("trace", false, "print the route, source and upstream outcome")
}

// buildCoachRequest assembles a pipeline request from CLI input. --focus
// replaces the focus areas of the profile file.
func buildCoachRequest(utterance, focus, profilePath, kpisPath string) (pipeline.Request, error) {
	req := pipeline.Request{User: utterance}
	if profilePath != "" {
		if err := readJSONFile(profilePath, &req.Profile); err != nil {
			return req, fmt.Errorf("reading profile: %w", err)
		}
	}
	if kpisPath != "" {
		if err := readJSONFile(kpisPath, &req.KPIs); err != nil {
			return req, fmt.Errorf("reading kpis: %w", err)
		}
	}
	if focus != "" {
		req.Profile.Focus = splitCSV(focus)
	}
	return req, nil
}

func askServer(ctx context.Context, client *apiClient, req pipeline.Request) error {
	body := map[string]any{
		"user":    req.User,
		"profile": req.Profile,
	}
	if req.KPIs != nil {
		body["kpis"] = req.KPIs
	}
	resp, err := client.post(ctx, "/api/coach", body)
	if err != nil {
		return err
	}
	var result json.RawMessage
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}
	return printJSON(os.Stdout, result)
}

func printTrace(t pipeline.Trace) {
	printStatus("Route", "%s", t.Route)
	if t.Topic != "" {
		printStatus("Topic", "%s", t.Topic)
	}
	printStatus("Source", "%s", t.Source)
	if t.Model != "" {
		printStatus("Model", "%s", t.Model)
	}
	if t.ErrorKind != "" {
		printStatus("Upstream", "%s", t.ErrorKind)
	}
	printStatus("Duration", "%dms", t.DurationMs)
}

// --- sprint ---

var sprintCmd = &cobra.Command{
	Use:   "sprint",
	Short: "Generate today's sprint exercise or follow-up steps",
	Long: `Generate today's sprint exercise, or next steps when --goals is given.

Examples:
  skillsprint sprint --profile ./profile.json
  skillsprint sprint --seed-title "Lift CVR with clarity + proof" --seed-topic Marketing
  skillsprint sprint --goals "Grow list to 1k,Launch referral loop"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		profilePath, _ := cmd.Flags().GetString("profile")
		kpisPath, _ := cmd.Flags().GetString("kpis")
		goals, _ := cmd.Flags().GetString("goals")
		seedTitle, _ := cmd.Flags().GetString("seed-title")
		seedTopic, _ := cmd.Flags().GetString("seed-topic")

		a, err := loadApp()
		if err != nil {
			return err
		}

		req := sprint.Request{Passcode: a.cfg.Access.Passcode}
		if profilePath != "" {
			if err := readJSONFile(profilePath, &req.Profile); err != nil {
				return fmt.Errorf("reading profile: %w", err)
			}
		}
		if kpisPath != "" {
			if err := readJSONFile(kpisPath, &req.KPIs); err != nil {
				return fmt.Errorf("reading kpis: %w", err)
			}
		}
		if goals != "" {
			req.Followup = &sprint.Followup{Goals: splitCSV(goals)}
		}
		if seedTitle != "" || seedTopic != "" {
			req.Seed = &sprint.Seed{Title: seedTitle, Topic: seedTopic}
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return printJSON(os.Stdout, a.sprints.Generate(ctx, req))
	},
}

func init() {
	sprintCmd.Flags().String("profile", "", "path to a profile JSON file")
	sprintCmd.Flags().String("kpis", "", "path to a KPI snapshot JSON file")
	sprintCmd.Flags().String("goals", "", "comma-separated 30-day goals; switches to follow-up steps")
	sprintCmd.Flags().String("seed-title", "", "sprint seed title from a coach reply")
	sprintCmd.Flags().String("seed-topic", "", "sprint seed focus area")
}

// --- prompt ---

var promptCmd = &cobra.Command{
	Use:   "prompt <utterance>",
	Short: "Print the prompt messages that would be sent upstream",
	RunE: func(cmd *cobra.Command, args []string) error {
		utterance := strings.TrimSpace(strings.Join(args, " "))
		if utterance == "" {
			return fmt.Errorf("an utterance is required")
		}
		modeFlag, _ := cmd.Flags().GetString("mode")
		focus, _ := cmd.Flags().GetString("focus")
		profilePath, _ := cmd.Flags().GetString("profile")

		mode, err := composer.ParseMode(modeFlag)
		if err != nil {
			return err
		}
		req, err := buildCoachRequest(utterance, focus, profilePath, "")
		if err != nil {
			return err
		}

		a, err := loadApp()
		if err != nil {
			return err
		}
		p := a.prompts.Build(composer.Input{
			Profile:   req.Profile,
			KPIs:      req.KPIs,
			Utterance: req.User,
		}, mode)

		printPrompt(p)
		return nil
	},
}

func init() {
	promptCmd.Flags().String("mode", string(composer.ModeBrief), "prompt mode: brief, resources or general")
	promptCmd.Flags().String("focus", "", "comma-separated focus areas")
	promptCmd.Flags().String("profile", "", "path to a profile JSON file")
}

func printPrompt(p composer.Prompt) {
	for i, m := range p.Messages {
		fmt.Printf("%s\n%s\n", colorize(colorBold, fmt.Sprintf("[%d] %s", i, m.Role)), m.Content)
		if i < len(p.Messages)-1 {
			fmt.Println()
		}
	}
	printStatus("Estimated tokens", "%d", p.EstimatedTokens())
}

// --- topics ---

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List the topics the coach recognizes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		printTopics(a.topics.Rules())
		return nil
	},
}

func printTopics(rules []*topic.Rule) {
	for _, r := range rules {
		fmt.Printf("%s  %s\n", colorize(colorBold, r.Key), r.Title)
		for _, slug := range r.LearnSlugs {
			fmt.Printf("    %s\n", topic.LearnHref(slug))
		}
	}
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse or purge the interaction audit log",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent interactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		endpoint, _ := cmd.Flags().GetString("endpoint")

		store, err := openHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		interactions, err := store.ListInteractions(endpoint, limit)
		if err != nil {
			return err
		}
		if len(interactions) == 0 {
			printStep("no interactions recorded")
			return nil
		}
		for _, ix := range interactions {
			fmt.Println(historyLine(ix))
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one interaction as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		ix, err := store.GetInteraction(args[0])
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, ix)
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count interactions by endpoint and reply source",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		counts, err := store.SourceCounts()
		if err != nil {
			return err
		}
		if len(counts) == 0 {
			printStep("no interactions recorded")
			return nil
		}
		for _, k := range sortedKeys(counts) {
			printStatus(k, "%d", counts[k])
		}
		return nil
	},
}

var historyPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete recorded interactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		before, _ := cmd.Flags().GetDuration("older-than")
		if !confirm {
			printWarning("This will delete recorded interactions. Use --confirm to proceed.")
			return nil
		}

		store, err := openHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.PurgeInteractions(purgeCutoff(time.Now(), before))
		if err != nil {
			return err
		}
		printSuccess("Purged %d interactions", n)
		return nil
	},
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "maximum number of interactions to list")
	historyListCmd.Flags().String("endpoint", "", "only show one endpoint (coach or generate-sprint)")
	historyPurgeCmd.Flags().Bool("confirm", false, "confirm the purge")
	historyPurgeCmd.Flags().Duration("older-than", 0, "only delete interactions older than this (e.g. 720h)")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyStatsCmd)
	historyCmd.AddCommand(historyPurgeCmd)
}

// openHistory opens the audit log directly; no running server is needed.
func openHistory() (*storage.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if !cfg.Storage.Enabled {
		return nil, fmt.Errorf("storage is disabled (storage.enabled=false)")
	}
	return storage.Open(cfg.Storage.DataDir)
}

// purgeCutoff returns the zero time, meaning everything, when olderThan is
// not positive.
func purgeCutoff(now time.Time, olderThan time.Duration) time.Time {
	if olderThan <= 0 {
		return time.Time{}
	}
	return now.Add(-olderThan)
}

func historyLine(ix storage.Interaction) string {
	source := ix.Source
	if ix.UpstreamError != "" {
		source += " (" + ix.UpstreamError + ")"
	}
	return fmt.Sprintf("%s  %s  %-15s %-9s %-22s %s",
		colorize(colorCyan, ix.ID),
		ix.CreatedAt.Local().Format("2006-01-02 15:04"),
		ix.Endpoint,
		ix.Route,
		source,
		truncate(ix.Utterance, 60),
	)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		printStatus("File", "%s", config.ConfigFilePath())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value in the config file.\n\nValid keys: " +
		strings.Join(config.ValidKeys(), ", "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- helpers ---

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
