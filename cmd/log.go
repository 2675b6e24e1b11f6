package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/melih-ucgun/forgeguard/internal/config"
	"github.com/melih-ucgun/forgeguard/internal/consts"
	"github.com/melih-ucgun/forgeguard/internal/core"
	"github.com/melih-ucgun/forgeguard/internal/state"
)

var logCmd = &cobra.Command{
	Use:         "log [id]",
	Short:       "View the transaction log, or one transaction in detail",
	Annotations: map[string]string{skipConfig: "true"},
	Args:        cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := config.LoadProject(configFile)
		if err != nil {
			return err
		}

		fs := core.RealFS{}
		mgr, err := state.NewManager(consts.GetStateFilePath(project.Paths.Root), &fs)
		if err != nil {
			return fmt.Errorf("failed to load state: %w", err)
		}

		if len(args) == 1 {
			tx, err := mgr.GetTransaction(args[0])
			if err != nil {
				return err
			}
			return renderTransaction(tx)
		}

		history := mgr.GetTransactions()

		if len(history) == 0 {
			pterm.Info.Println("No transaction log found.")
			return nil
		}

		pterm.DefaultHeader.Println("Transaction Log")

		tableData := [][]string{{"ID", "Date", "Task", "Status", "Files", "Duration"}}

		// Show latest first (reverse iteration)
		for i := len(history) - 1; i >= 0; i-- {
			tx := history[i]
			dateStr := tx.Timestamp.Format("2006-01-02 15:04:05")

			statusStyle := pterm.NewStyle(pterm.FgGreen)
			if tx.Status == state.StatusFailed {
				statusStyle = pterm.NewStyle(pterm.FgYellow)
			} else if tx.Status == state.StatusRestoreFailed {
				statusStyle = pterm.NewStyle(pterm.FgRed)
			}

			tableData = append(tableData, []string{
				tx.ID,
				dateStr,
				tx.Task,
				statusStyle.Sprint(tx.Status),
				fmt.Sprintf("%d/%d", tx.Rewritten, tx.Files),
				tx.Duration.Round(time.Millisecond).String(),
			})
		}

		if err := pterm.DefaultTable.WithHasHeader().WithData(tableData).Render(); err != nil {
			return err
		}

		for _, tx := range mgr.Unrestored() {
			pterm.Warning.Printfln("%s left files mutated:\n  %s", tx.ID, strings.Join(tx.Unrestored, "\n  "))
		}
		return nil
	},
}

func renderTransaction(tx state.Transaction) error {
	pterm.DefaultHeader.Println("Transaction " + tx.ID)

	items := []pterm.BulletListItem{
		{Level: 0, Text: "Task: " + tx.Task},
		{Level: 0, Text: "Root: " + tx.Root},
		{Level: 0, Text: "Date: " + tx.Timestamp.Format("2006-01-02 15:04:05")},
		{Level: 0, Text: "Status: " + tx.Status},
		{Level: 0, Text: fmt.Sprintf("Files: %d captured, %d rewritten", tx.Files, tx.Rewritten)},
	}
	if tx.Error != "" {
		items = append(items, pterm.BulletListItem{Level: 0, Text: "Error: " + tx.Error})
	}
	for _, p := range tx.Unrestored {
		items = append(items, pterm.BulletListItem{Level: 1, Text: "unrestored: " + p})
	}
	return pterm.DefaultBulletList.WithItems(items).Render()
}

func init() {
	rootCmd.AddCommand(logCmd)
}
