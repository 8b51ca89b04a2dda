package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/rise/internal/rl"
)

var (
	qtableTeam   string
	qtableStates bool
	qtableYes    bool
)

var qtableCmd = &cobra.Command{
	Use:   "qtable",
	Short: "Inspect and manage learned tool preferences",
	Long: `Inspect and manage the Q-tables teams use to rank their tools.

Q-tables live in rl.q_table_dir: one JSON file per team with the file
store, or a shared qtables.db with the sqlite store.`,
}

var qtableStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show learning statistics per team",
	RunE: func(cmd *cobra.Command, args []string) error {
		managers, cleanup, err := loadManagers()
		if err != nil {
			return err
		}
		defer cleanup()

		for i, m := range managers {
			if i > 0 {
				fmt.Println()
			}
			printStatistics(m.Statistics())
			if qtableStates {
				printStates(m.States())
			}
		}
		return nil
	},
}

var qtableExportCmd = &cobra.Command{
	Use:   "export <dir>",
	Short: "Write a readable YAML report per team",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		managers, cleanup, err := loadManagers()
		if err != nil {
			return err
		}
		defer cleanup()

		var failed bool
		for _, m := range managers {
			status := m.ExportReadable(filepath.Join(args[0], m.Name()+".yaml"))
			if !status.OK {
				failed = true
				printStatus("✗", status.String(), color.FgRed)
				continue
			}
			printStatus("✓", status.String(), color.FgGreen)
		}
		if failed {
			return fmt.Errorf("export failed")
		}
		return nil
	},
}

var qtableResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget everything a team has learned",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !qtableYes {
			target := "every team"
			if qtableTeam != "" {
				target = qtableTeam
			}
			return fmt.Errorf("this clears the q-table of %s; pass --yes to confirm", target)
		}

		managers, cleanup, err := loadManagers()
		if err != nil {
			return err
		}
		defer cleanup()

		for _, m := range managers {
			m.Reset()
			if err := m.Save(); err != nil {
				return fail("reset "+m.Name(), err)
			}
			printStatus("✓", "Reset "+m.Name(), color.FgGreen)
		}
		return nil
	},
}

func init() {
	qtableCmd.PersistentFlags().StringVar(&qtableTeam, "team", "", "Only this team (default: all)")
	qtableStatsCmd.Flags().BoolVar(&qtableStates, "states", false, "List learned states with their best tool")
	qtableResetCmd.Flags().BoolVar(&qtableYes, "yes", false, "Confirm the reset")

	qtableCmd.AddCommand(qtableStatsCmd)
	qtableCmd.AddCommand(qtableExportCmd)
	qtableCmd.AddCommand(qtableResetCmd)
}

// loadManagers opens the managers selected by --team. cleanup closes them.
func loadManagers() ([]*rl.Manager, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fail("load config", err)
	}
	logger, err := newLogger(cfg, false)
	if err != nil {
		return nil, nil, fail("setup logging", err)
	}
	managers, err := openManagers(cfg, qtableTeam, logger.Logger)
	if err != nil {
		logger.Close()
		return nil, nil, fail("open q-tables", err)
	}
	cleanup := func() {
		for _, m := range managers {
			m.Close()
		}
		logger.Close()
	}
	return managers, cleanup, nil
}

func printStatistics(s rl.Statistics) {
	color.New(color.Bold).Println(s.Manager)
	fmt.Printf("  states:            %d\n", s.TotalStates)
	fmt.Printf("  tools:             %d\n", s.TotalTools)
	fmt.Printf("  non-zero values:   %d\n", s.NonZeroQValues)
	fmt.Printf("  exploration rate:  %.3f\n", s.ExplorationRate)
	fmt.Printf("  learning rate:     %.3f\n", s.LearningRate)
	fmt.Printf("  discount factor:   %.3f\n", s.DiscountFactor)
	if s.UseEmbeddings {
		fmt.Printf("  cached embeddings: %d\n", s.CachedEmbeddings)
	}
}

func printStates(states []rl.StateSummary) {
	if len(states) == 0 {
		fmt.Println("  (nothing learned yet)")
		return
	}
	for _, s := range states {
		best := s.BestTool
		if best == "" {
			best = "-"
		}
		top := rl.TopTools(s.QValues, 3)
		fmt.Printf("  %-24s best=%s (%.3f)  top=%s\n", s.StateKey, best, s.BestValue, strings.Join(top, ","))
	}
}
