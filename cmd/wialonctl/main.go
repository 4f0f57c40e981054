// wialonctl — консольная утилита для просмотра и переключения блокировки объектов Wialon
// без Telegram. Использует ту же конфигурацию, что и бот.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"wialonblock/internal/adapters/exporter"
	"wialonblock/internal/app"
	"wialonblock/internal/domain"
	"wialonblock/internal/log"
	"wialonblock/internal/pkg/config"
	"wialonblock/internal/pkg/term"
)

type options struct {
	configPath string
	verbose    bool
	yes        bool
	xlsx       string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(term.NewTerminal(), os.Stdout).ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}

func newRootCmd(t *term.Terminal, out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "wialonctl",
		Short:         "Inspect and toggle Wialon unit locks from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", ".env.toml", "path to config file (.toml, .yml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	chats := &cobra.Command{
		Use:   "chats",
		Short: "List configured chats and their Wialon groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			printChats(out, cfg)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list <chat> [pattern]",
		Short: "List units tracked by a chat",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ""
			if len(args) == 2 {
				pattern = args[1]
			}
			return runList(cmd.Context(), t, out, opts, args[0], pattern)
		},
	}
	list.Flags().StringVar(&opts.xlsx, "xlsx", "", "write the list to an .xlsx file instead of stdout")

	show := &cobra.Command{
		Use:   "show <chat> <unit-id>",
		Short: "Show the lock state of a unit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd.Context(), t, out, opts, args[0], args[1])
		},
	}

	lock := &cobra.Command{
		Use:   "lock <chat> <unit-id>",
		Short: "Forbid departure for a unit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd.Context(), t, out, opts, args[0], args[1], true)
		},
	}

	unlock := &cobra.Command{
		Use:   "unlock <chat> <unit-id>",
		Short: "Allow departure for a unit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd.Context(), t, out, opts, args[0], args[1], false)
		},
	}
	for _, c := range []*cobra.Command{lock, unlock} {
		c.Flags().BoolVarP(&opts.yes, "yes", "y", false, "do not ask for confirmation")
	}

	root.AddCommand(chats, list, show, lock, unlock)
	return root
}

// session — загруженная конфигурация и собранные зависимости для одной команды.
type session struct {
	cfg     *config.Config
	core    *app.Core
	chatKey string
	group   config.Group
}

func open(t *term.Terminal, opts *options, chat string) (*session, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	group, ok := cfg.GroupByChat(chat)
	if !ok {
		return nil, fmt.Errorf("chat %q is not configured", chat)
	}

	if cfg.Wialon.Token == "" {
		if !t.Interactive() {
			return nil, fmt.Errorf("wialon token is not set, use %s", config.EnvWialonToken)
		}
		token, err := t.Secret("Wialon token: ")
		if err != nil {
			return nil, err
		}
		cfg.Wialon.Token = token
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := log.New(os.Stderr, level.String(), "text")
	slog.SetDefault(logger)

	core, err := app.NewCore(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, core: core, chatKey: group.ChatID, group: group}, nil
}

func runList(ctx context.Context, t *term.Terminal, out io.Writer, opts *options, chat, pattern string) error {
	s, err := open(t, opts, chat)
	if err != nil {
		return err
	}
	units, err := s.core.Locks.ListUnits(ctx, s.chatKey, pattern)
	if err != nil {
		return err
	}

	if opts.xlsx == "" {
		return exporter.NewConsoleExporter(exporter.DefaultNameWidth, !color.NoColor).Export(out, units)
	}

	f, err := os.Create(opts.xlsx)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", opts.xlsx, err)
	}
	if err := exporter.NewExcelExporter().Export(f, units); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Exported %d units to %s\n", len(units), opts.xlsx)
	return nil
}

func runShow(ctx context.Context, t *term.Terminal, out io.Writer, opts *options, chat, rawID string) error {
	unitID, err := parseUnitID(rawID)
	if err != nil {
		return err
	}
	s, err := open(t, opts, chat)
	if err != nil {
		return err
	}
	unit, state, err := s.core.Locks.GetUnitAndState(ctx, s.chatKey, unitID)
	if err != nil {
		return err
	}
	printUnit(out, unit, state)
	return nil
}

func runTransition(ctx context.Context, t *term.Terminal, out io.Writer, opts *options, chat, rawID string, lock bool) error {
	unitID, err := parseUnitID(rawID)
	if err != nil {
		return err
	}
	s, err := open(t, opts, chat)
	if err != nil {
		return err
	}

	unit, state, err := s.core.Locks.GetUnitAndState(ctx, s.chatKey, unitID)
	if err != nil {
		return err
	}
	target := domain.LockUnlocked
	if lock {
		target = domain.LockLocked
	}
	if state == target {
		printUnit(out, unit, state)
		return nil
	}

	if !opts.yes && t.Interactive() {
		ok, err := t.Confirm(fmt.Sprintf("Set %q (%d) to %s? [y/N] ", unit.Name, unit.ID, target))
		if err != nil {
			return err
		}
		if !ok {
			_, _ = fmt.Fprintln(out, "Cancelled")
			return nil
		}
	}

	if lock {
		unit, state, err = s.core.Locks.Lock(ctx, s.chatKey, unitID)
	} else {
		unit, state, err = s.core.Locks.Unlock(ctx, s.chatKey, unitID)
	}
	if err != nil {
		return err
	}
	printUnit(out, unit, state)
	return nil
}

func parseUnitID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid unit id %q", raw)
	}
	return id, nil
}

func printUnit(out io.Writer, unit domain.Unit, state domain.LockState) {
	e := exporter.NewConsoleExporter(exporter.DefaultNameWidth, !color.NoColor)
	_, _ = fmt.Fprintf(out, "%d  %s  %s  (%s)\n", unit.ID, unit.Name, e.StateLabel(state), time.Now().Format(time.DateTime))
}

func printChats(out io.Writer, cfg *config.Config) {
	groups := append([]config.Group(nil), cfg.Telegram.Groups...)
	sort.Slice(groups, func(i, j int) bool { return groups[i].Tag < groups[j].Tag })

	bold := color.New(color.Bold).SprintFunc()
	for _, g := range groups {
		_, _ = fmt.Fprintf(out, "%s  %s  %s\n", bold(g.Tag), g.ChatID, g.ChatName)
		_, _ = fmt.Fprintf(out, "    locked:   %s\n    unlocked: %s\n", g.LockedGroup, g.UnlockedGroup)
		if g.IgnoredGroup != "" {
			_, _ = fmt.Fprintf(out, "    ignored:  %s\n", g.IgnoredGroup)
		}
	}
}
