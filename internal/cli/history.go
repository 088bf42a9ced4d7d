package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"parley/internal/storage"

	"github.com/spf13/cobra"
)

// NewHistoryCmd 创建 history 命令组
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse recorded conversations",
		Long:  `List, show, and delete conversations recorded by 'parley talk'.`,
	}

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryDeleteCmd())

	return cmd
}

func historyDB(cmd *cobra.Command) (*storage.DB, error) {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cliCtx.GetStorage()
}

func newHistoryListCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := historyDB(cmd)
			if err != nil {
				return err
			}
			return runHistoryList(cmd.Context(), cmd.OutOrStdout(), db, limit, jsonOutput)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "maximum number of conversations to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <dialogue-id>",
		Short: "Show a conversation",
		Long:  `Show a conversation turn by turn. A unique ID prefix is enough.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := historyDB(cmd)
			if err != nil {
				return err
			}
			return runHistoryShow(cmd.Context(), cmd.OutOrStdout(), db, args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	return cmd
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <dialogue-id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := historyDB(cmd)
			if err != nil {
				return err
			}
			return runHistoryDelete(cmd.Context(), cmd.OutOrStdout(), db, args[0])
		},
	}
}

func runHistoryList(ctx context.Context, out io.Writer, db *storage.DB, limit int, jsonOutput bool) error {
	dialogues, err := db.ListDialogues(ctx, limit)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(dialogues)
	}

	if len(dialogues) == 0 {
		fmt.Fprintln(out, "No conversations found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tPERSON\tBOT\tTURNS\tCACHE")
	fmt.Fprintln(w, "--\t-------\t------\t---\t-----\t-----")
	for _, d := range dialogues {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d/%d\n",
			shortID(d.ID),
			d.StartedAt.Local().Format("2006-01-02 15:04"),
			d.Person,
			d.BotName,
			d.TurnCount,
			d.CacheMatched,
			d.PromptTokens,
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal: %d conversations\n", len(dialogues))
	return nil
}

func runHistoryShow(ctx context.Context, out io.Writer, db *storage.DB, id string, jsonOutput bool) error {
	d, err := db.GetDialogue(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("conversation not found: %s", id)
		}
		return err
	}
	turns, err := db.ListTurns(ctx, d.ID)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*storage.Dialogue
			Turns []*storage.Turn `json:"turns"`
		}{d, turns})
	}

	fmt.Fprintf(out, "Conversation: %s\n", d.ID)
	fmt.Fprintf(out, "Model:        %s\n", d.Model)
	fmt.Fprintf(out, "Started:      %s\n", d.StartedAt.Local().Format(time.RFC3339))
	if d.EndedAt != nil {
		fmt.Fprintf(out, "Ended:        %s\n", d.EndedAt.Local().Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Prompt:       %d tokens, %d from session cache\n", d.PromptTokens, d.CacheMatched)
	fmt.Fprintln(out)

	for _, t := range turns {
		speaker := d.Person
		if t.Role == storage.RoleAssistant {
			speaker = d.BotName
		}
		note := ""
		if t.Compacted {
			note = " (context compacted)"
		}
		fmt.Fprintf(out, "[%s] %s: %s%s\n", t.CreatedAt.Local().Format("15:04:05"), speaker, t.Content, note)
	}
	return nil
}

func runHistoryDelete(ctx context.Context, out io.Writer, db *storage.DB, id string) error {
	d, err := db.GetDialogue(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("conversation not found: %s", id)
		}
		return err
	}
	if err := db.DeleteDialogue(ctx, d.ID); err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted conversation %s\n", d.ID)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
