package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"parley/internal/config"
	"parley/internal/sessioncache"

	"github.com/spf13/cobra"
)

// NewCacheCmd 创建 cache 命令组
func NewCacheCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the session cache",
		Long: `The session cache stores the evaluated prompt tokens and evaluator state
so the next run can skip evaluating a prompt it has already seen.`,
	}

	cmd.PersistentFlags().StringVar(&path, "session", "", "session cache file (default from config)")

	cmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Show what the session cache holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cacheStore(cmd, path)
			if err != nil {
				return err
			}
			return runCacheInfo(cmd.OutOrStdout(), store)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete the session cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := cacheStore(cmd, path)
			if err != nil {
				return err
			}
			if err := store.Remove(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", store.Path())
			return nil
		},
	})

	return cmd
}

func cacheStore(cmd *cobra.Command, path string) (*sessioncache.Store, error) {
	if path == "" {
		if cliCtx := GetCLIContext(cmd); cliCtx != nil {
			path = cliCtx.Config.Dialogue.SessionPath
		}
	}
	if path == "" {
		return nil, errors.New("no session cache configured (set dialogue.session_path or pass --session)")
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	return sessioncache.NewStore(expanded, sessioncache.CompressionNone), nil
}

func runCacheInfo(out io.Writer, store *sessioncache.Store) error {
	info, err := store.Stat()
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(out, "No session cache at %s\n", store.Path())
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Path:        %s\n", info.Path)
	fmt.Fprintf(out, "Size:        %d bytes\n", info.Size)
	fmt.Fprintf(out, "Compression: %s\n", info.Compression)
	fmt.Fprintf(out, "Tokens:      %d\n", info.Tokens)
	fmt.Fprintf(out, "State:       %d bytes\n", info.StateBytes)
	if info.Model != "" {
		fmt.Fprintf(out, "Model:       %s\n", info.Model)
	}
	if !info.SavedAt.IsZero() {
		fmt.Fprintf(out, "Saved:       %s\n", info.SavedAt.Local().Format(time.RFC3339))
	}
	return nil
}
