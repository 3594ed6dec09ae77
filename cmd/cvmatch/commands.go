package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/kalambet/cvmatch/internal/config"
	"github.com/kalambet/cvmatch/internal/extract"
)

// analysisResult mirrors the server's analysis response.
type analysisResult struct {
	MatchScore       float64            `json:"match_score"`
	Strengths        []string           `json:"strengths"`
	Gaps             []string           `json:"gaps"`
	Summary          string             `json:"summary"`
	SkillsMatch      map[string]float64 `json:"skills_match"`
	Recommendations  []string           `json:"recommendations"`
	ProcessingTimeMS float64            `json:"processing_time_ms"`
	CVUsed           bool               `json:"cv_used"`
	CVID             *string            `json:"cv_id"`
	AnalysisID       string             `json:"analysis_id,omitempty"`
}

// confirm asks a yes/no question on the terminal. It is a variable so tests
// can answer without a TTY.
var confirm = func(label string) (bool, error) {
	p := promptui.Prompt{Label: label, IsConfirm: true}
	if _, err := p.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readDocument returns the text of a local document, extracting it the same
// way the server does for uploads.
func readDocument(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}
	if err := extract.Validate(path, int64(len(data)), extract.DefaultLimits()); err != nil {
		return "", err
	}
	text, err := extract.Text(path, data)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no text could be extracted from %s", path)
	}
	return text, nil
}

// --- cv ---

var cvCmd = &cobra.Command{
	Use:   "cv",
	Short: "Manage stored CVs",
}

var cvStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Store a CV and make it current",
	Long: `Store a CV and make it current.

Examples:
  cvmatch cv store --file ./resume.pdf
  cvmatch cv store --text "Backend engineer, 6 years of Go" --tech Go,PostgreSQL
  cvmatch cv store --json ./cv.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		jsonFile, _ := cmd.Flags().GetString("json")
		tech, _ := cmd.Flags().GetString("tech")

		var body map[string]any
		switch {
		case jsonFile != "":
			data, err := os.ReadFile(jsonFile)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			if err := json.Unmarshal(data, &body); err != nil || body == nil {
				return fmt.Errorf("%s does not contain a JSON object", jsonFile)
			}
		case file != "":
			printStep("Extracting text from %s", filepath.Base(file))
			t, err := readDocument(file)
			if err != nil {
				return err
			}
			body = map[string]any{"raw_text": t, "metadata": map[string]any{"source_file": filepath.Base(file)}}
		case text != "":
			body = map[string]any{"raw_text": text}
		default:
			return fmt.Errorf("one of --text, --file, or --json is required")
		}
		if tech != "" {
			body["tech_stack"] = splitComma(tech)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/store-cv", body)
		if err != nil {
			return err
		}

		var result struct {
			CVID    string `json:"cv_id"`
			Summary struct {
				TextLength  int `json:"text_length"`
				SkillsCount int `json:"skills_count"`
			} `json:"summary"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Stored CV %s (%d characters, %d skills)", result.CVID, result.Summary.TextLength, result.Summary.SkillsCount)
		return nil
	},
}

var cvShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show the current CV, or the CV with the given id",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/get-current-cv"
		if len(args) == 1 {
			path = "/get-cv/" + url.PathEscape(args[0])
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var rec any
		if err := decodeJSON(resp, &rec); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rec)
	},
}

var cvListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored CVs, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/list-cvs")
		if err != nil {
			return err
		}

		var recs []struct {
			ID       string    `json:"id"`
			StoredAt time.Time `json:"stored_at"`
			RawText  string    `json:"raw_text"`
		}
		if err := decodeJSON(resp, &recs); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(recs) == 0 {
			fmt.Fprintln(out, "No CVs stored.")
			return nil
		}
		for _, r := range recs {
			fmt.Fprintf(out, "%s  %s  %s\n",
				colorize(colorCyan, r.ID),
				r.StoredAt.Local().Format(time.DateTime),
				preview(r.RawText, 60),
			)
		}
		return nil
	},
}

var cvDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored CV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/delete-cv/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted CV %s", args[0])
		return nil
	},
}

var cvClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every stored CV",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("confirm")
		if !yes {
			ok, err := confirm("Delete ALL stored CVs")
			if err != nil {
				return err
			}
			if !ok {
				printWarning("Aborted")
				return nil
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/clear-all-cvs", nil)
		if err != nil {
			return err
		}
		var result struct {
			Count int `json:"count"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Cleared %d CVs", result.Count)
		return nil
	},
}

func init() {
	cvStoreCmd.Flags().String("text", "", "CV text")
	cvStoreCmd.Flags().String("file", "", "CV document (.pdf, .docx, .txt, .md, .html)")
	cvStoreCmd.Flags().String("json", "", "JSON file with a structured CV payload")
	cvStoreCmd.Flags().String("tech", "", "comma-separated tech stack")
	cvClearCmd.Flags().Bool("confirm", false, "skip the confirmation prompt")

	cvCmd.AddCommand(cvStoreCmd)
	cvCmd.AddCommand(cvShowCmd)
	cvCmd.AddCommand(cvListCmd)
	cvCmd.AddCommand(cvDeleteCmd)
	cvCmd.AddCommand(cvClearCmd)
}

// --- match ---

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Score a job description against the current CV",
	Long: `Score a job description against the current CV.

Examples:
  cvmatch match --text "Looking for a senior Go engineer"
  cvmatch match --file ./job.pdf
  cvmatch match --file ./job.html --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		asJSON, _ := cmd.Flags().GetBool("json")

		if strings.TrimSpace(text) == "" && file == "" {
			return fmt.Errorf("one of --text or --file is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var result analysisResult
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			printStep("Analyzing %s", filepath.Base(file))
			resp, err := client.upload(cmd.Context(), "/match-job-pdf", "file", filepath.Base(file), data, nil)
			if err != nil {
				return err
			}
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
		} else {
			printStep("Analyzing job description (%d characters)", utf8.RuneCountInString(text))
			resp, err := client.post(cmd.Context(), "/analyze-job", map[string]string{"job_description": text})
			if err != nil {
				return err
			}
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
		}

		if asJSON {
			return printJSON(cmd.OutOrStdout(), result)
		}
		printAnalysis(cmd.OutOrStdout(), result)
		return nil
	},
}

func init() {
	matchCmd.Flags().String("text", "", "job description text")
	matchCmd.Flags().String("file", "", "job description document")
	matchCmd.Flags().Bool("json", false, "print the raw JSON result")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse past analyses",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent analyses, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/analyses?limit=%d", limit))
		if err != nil {
			return err
		}

		var items []struct {
			ID             string    `json:"id"`
			CreatedAt      time.Time `json:"created_at"`
			Source         string    `json:"source"`
			JobDescription string    `json:"job_description"`
			MatchScore     float64   `json:"match_score"`
		}
		if err := decodeJSON(resp, &items); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(items) == 0 {
			fmt.Fprintln(out, "No analyses found.")
			return nil
		}
		for _, a := range items {
			fmt.Fprintf(out, "%s  %s  %s  %s\n",
				colorize(colorCyan, shortID(a.ID)),
				a.CreatedAt.Local().Format(time.DateTime),
				colorize(scoreColor(a.MatchScore), fmt.Sprintf("%5.1f", a.MatchScore)),
				preview(a.JobDescription, 60),
			)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/analyses/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var a any
		if err := decodeJSON(resp, &a); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), a)
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a single analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/analyses/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted analysis %s", args[0])
		return nil
	},
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "maximum number of analyses to list")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
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

		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "($"+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key> <value>",
	Short: "Store an API key in the secrets file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetSecret(args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Stored %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configSetSecretCmd)
}

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// preview flattens s to one line of at most n runes.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
