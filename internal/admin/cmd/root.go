// Package cmd 提供 chatstate-admin 的命令框架
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"chatstate/internal/chat/state"
	corelog "chatstate/internal/core/log"
	"chatstate/internal/core/store"
	"chatstate/internal/version"
)

// StateFactory 按配置创建状态层，测试中替换为连接 miniredis 的实现
type StateFactory func(ctx context.Context, cfg *store.StateConfig, logger corelog.Logger) (*state.State, error)

// app 命令共享的运行时
type app struct {
	configFile string
	output     string
	newState   StateFactory

	st        *state.State
	logCloser io.Closer
}

// Execute 执行根命令
func Execute() {
	if err := NewRootCmd(state.New).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCmd 创建根命令
func NewRootCmd(factory StateFactory) *cobra.Command {
	a := &app{newState: factory}

	root := &cobra.Command{
		Use:   "chatstate-admin",
		Short: "Inspect and maintain the chat state layer",
		Long: `chatstate-admin operates on the Redis-backed chat state shared by all nodes.

Examples:
  chatstate-admin -c state.yaml session show u1
  chatstate-admin -c state.yaml timeline recent room-1 --size 20
  chatstate-admin -c state.yaml ratelimit reset --yes`,
		Version:       version.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "State config file (YAML)")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "json", "Output format: json/yaml")

	root.AddCommand(
		a.rateLimitCmd(),
		a.sessionCmd(),
		a.presenceCmd(),
		a.timelineCmd(),
		a.cacheCmd(),
		versionCmd(),
	)
	return root
}

// withState 为需要后端的子命令打开状态层，执行结束后关闭
func (a *app) withState(run func(cmd *cobra.Command, args []string, st *state.State) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := a.open(cmd.Context()); err != nil {
			return err
		}
		defer a.close()
		return run(cmd, args, a.st)
	}
}

func (a *app) open(ctx context.Context) error {
	cfg := store.DefaultStateConfig()
	if a.configFile != "" {
		loaded, err := store.LoadStateConfig(a.configFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	// 标准输出留给命令结果
	if cfg.Log.Output == "" || cfg.Log.Output == "stdout" {
		cfg.Log.Output = "stderr"
	}

	logger, closer, err := corelog.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	a.logCloser = closer

	if ctx == nil {
		ctx = context.Background()
	}
	st, err := a.newState(ctx, cfg, logger)
	if err != nil {
		_ = closer.Close()
		return fmt.Errorf("open chat state: %w", err)
	}
	a.st = st
	return nil
}

func (a *app) close() {
	if a.st != nil {
		if err := a.st.Close(); err != nil {
			corelog.Warnf("close chat state: %v", err)
		}
		a.st = nil
	}
	if a.logCloser != nil {
		_ = a.logCloser.Close()
		a.logCloser = nil
	}
}

// render 按 --output 输出结果
func (a *app) render(w io.Writer, v interface{}) error {
	switch a.output {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported output format %q", a.output)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chatstate-admin %s\n", version.GetVersion())
		},
	}
}
