package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/rise/internal/state"
	"github.com/ShayCichocki/rise/pkg/models"
)

var (
	threadsLimit     int
	threadsOlderThan string
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "List and manage checkpointed conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store state.Store) error {
			threads, err := store.ListThreads(ctx, threadsLimit)
			if err != nil {
				return fail("list threads", err)
			}
			if len(threads) == 0 {
				fmt.Println("No threads yet. Start one with: rise run <request>")
				return nil
			}
			fmt.Printf("%-36s  %8s  %5s  %7s  %s\n", "THREAD", "MESSAGES", "STEPS", "REPLANS", "UPDATED")
			for _, t := range threads {
				fmt.Printf("%-36s  %8d  %5d  %7d  %s\n", t.ThreadID, t.Messages, t.Steps, t.Replans, humanAge(t.UpdatedAt))
			}
			return nil
		})
	},
}

var threadsShowCmd = &cobra.Command{
	Use:   "show <thread-id>",
	Short: "Print a thread's conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store state.Store) error {
			s, found, err := store.Load(ctx, args[0])
			if err != nil {
				return fail("load thread", err)
			}
			if !found {
				return fmt.Errorf("thread %s not found", args[0])
			}
			printConversation(s)
			return nil
		})
	},
}

var threadsRunsCmd = &cobra.Command{
	Use:   "runs <thread-id>",
	Short: "List the runs of a thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store state.Store) error {
			runs, err := store.ListRuns(ctx, args[0])
			if err != nil {
				return fail("list runs", err)
			}
			if len(runs) == 0 {
				fmt.Printf("No runs recorded for %s\n", args[0])
				return nil
			}
			for _, r := range runs {
				line := fmt.Sprintf("%s  %-14s  %3d steps  %d replans  %8s  %s",
					r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Outcome, r.Steps, r.Replans,
					r.Duration().Round(time.Millisecond), truncate(r.Request, 50))
				switch r.Outcome {
				case state.RunCompleted:
					fmt.Println(line)
				case state.RunCanceled:
					color.Yellow("%s", line)
				default:
					color.Red("%s\n    %s", line, r.Error)
				}
			}
			return nil
		})
	},
}

var threadsDeleteCmd = &cobra.Command{
	Use:   "delete <thread-id>...",
	Short: "Delete threads and their run history",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store state.Store) error {
			for _, id := range args {
				if err := store.DeleteThread(ctx, id); err != nil {
					return fail("delete "+id, err)
				}
				printStatus("✓", "Deleted "+id, color.FgGreen)
			}
			return nil
		})
	},
}

var threadsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete threads not updated recently",
	RunE: func(cmd *cobra.Command, args []string) error {
		age, err := parseAge(threadsOlderThan)
		if err != nil {
			return err
		}
		return withStore(func(ctx context.Context, store state.Store) error {
			n, err := store.PurgeOldThreads(ctx, age)
			if err != nil {
				return fail("purge threads", err)
			}
			printStatus("✓", fmt.Sprintf("Purged %d threads older than %s", n, threadsOlderThan), color.FgGreen)
			return nil
		})
	},
}

func init() {
	threadsCmd.Flags().IntVar(&threadsLimit, "limit", 20, "Maximum threads to list (0 = all)")
	threadsPurgeCmd.Flags().StringVar(&threadsOlderThan, "older-than", "30d", "Age threshold, e.g. 12h or 30d")

	threadsCmd.AddCommand(threadsShowCmd)
	threadsCmd.AddCommand(threadsRunsCmd)
	threadsCmd.AddCommand(threadsDeleteCmd)
	threadsCmd.AddCommand(threadsPurgeCmd)
}

// withStore opens the configured state database for the duration of fn.
func withStore(fn func(ctx context.Context, store state.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fail("load config", err)
	}
	db, err := state.OpenAndMigrate(cfg.State.DBPath)
	if err != nil {
		return fail("open state database", err)
	}
	defer db.Close()
	return fn(context.Background(), db)
}

func printConversation(s models.RunState) {
	for _, t := range s.Messages {
		speaker := t.Name
		if t.Role == models.RoleUser {
			speaker = "you"
		}
		color.New(color.Bold).Printf("[%s] ", speaker)
		fmt.Println(t.Content)
		if t.Failed() {
			color.Red("  tool error: %s", t.Error)
		}
	}
}

// parseAge accepts time.ParseDuration syntax plus a day suffix ("30d").
func parseAge(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid age %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid age %q", s)
	}
	return d, nil
}

func humanAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
