package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"parley/internal/config"
	"parley/internal/prompt"
	"parley/internal/storage"

	"github.com/spf13/cobra"
)

// InitOptions init 命令选项
type InitOptions struct {
	Force bool
	Dir   string // 空表示 ~/.parley
}

// NewInitCmd 创建 init 命令
func NewInitCmd() *cobra.Command {
	opts := &InitOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize parley configuration",
		Long:  "Create the configuration directory, a default config file, an editable prompt template and the history database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunInit(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "overwrite existing configuration")
	cmd.Flags().StringVar(&opts.Dir, "dir", "", "configuration directory (default ~/.parley)")

	return cmd
}

// RunInit 执行初始化
func RunInit(out io.Writer, opts *InitOptions) error {
	configDir := opts.Dir
	if configDir == "" {
		var err error
		configDir, err = config.DefaultConfigDir()
		if err != nil {
			return fmt.Errorf("get config dir: %w", err)
		}
	}

	configPath := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil && !opts.Force {
		return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", configPath)
	}

	for _, dir := range []string{configDir, filepath.Join(configDir, "logs"), filepath.Join(configDir, "prompts")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	// 从默认值生成配置，路径全部落在配置目录下
	config.Reset()
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("load defaults: %w", err)
	}
	defer config.Reset()

	promptPath := filepath.Join(configDir, "prompts", "dialogue.txt")
	cfg.Storage.Path = filepath.Join(configDir, "history.db")
	cfg.Dialogue.SessionPath = filepath.Join(configDir, "session.bin")
	cfg.Dialogue.PromptFile = promptPath

	if err := config.SaveTo(cfg, configPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	if err := writePromptTemplate(promptPath, opts.Force); err != nil {
		return fmt.Errorf("write prompt template: %w", err)
	}

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	db.Close()

	fmt.Fprintf(out, "Initialized parley at %s\n", configDir)
	fmt.Fprintf(out, "  Config:   %s\n", configPath)
	fmt.Fprintf(out, "  Prompt:   %s\n", promptPath)
	fmt.Fprintf(out, "  Database: %s\n", cfg.Storage.Path)
	fmt.Fprintf(out, "  Session:  %s\n", cfg.Dialogue.SessionPath)
	return nil
}

// writePromptTemplate 写出可编辑的默认对话模板，已存在时保留用户修改
func writePromptTemplate(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return nil
	}
	return os.WriteFile(path, []byte(prompt.DefaultDialogueTemplate+"\n"), 0644)
}
