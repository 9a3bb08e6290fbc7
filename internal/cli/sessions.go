package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/atotto/clipboard"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"timesheet/internal/app"
	"timesheet/internal/domain"
	"timesheet/internal/report"
	"timesheet/internal/timecalc"
)

var (
	sessionDate string
	copyOutput  bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions by month",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openSheet(cmd.Context())
		if err != nil {
			return err
		}
		defer closeSheet(a)
		return printSessions(cmd.OutOrStdout(), a.Reconciler().SessionsByDate())
	},
}

func printSessions(w io.Writer, idx domain.SessionsByDate) error {
	if len(idx) == 0 {
		_, err := fmt.Fprintln(w, "No sessions yet. Run 'timesheet new' to start one.")
		return err
	}
	for _, year := range idx.Years() {
		for _, month := range idx.Months(year) {
			fmt.Fprintf(w, "%s %s\n", timecalc.MonthLabelOf(month+"-01"), year)
			for _, s := range idx[year][month] {
				updated := "never"
				if !s.UpdatedAt.IsZero() {
					updated = humanize.Time(s.UpdatedAt)
				}
				fmt.Fprintf(w, "  %-10s  %8s  %-16s  %s\n",
					s.SessionDate, report.FormatMinutes(s.TotalHours), updated, s.ID)
			}
		}
	}
	return nil
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Render a session as a table",
	Long: `Render a session as a table.

--date accepts YYYY-MM-DD or phrases like "yesterday" or "last friday".
Without it, today's session is shown, saved or not.

Examples:
  timesheet show
  timesheet show --date yesterday
  timesheet show --date 2024-03-15 --copy`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openSheet(cmd.Context())
		if err != nil {
			return err
		}
		defer closeSheet(a)
		s, err := pickSession(a, sessionDate)
		if err != nil {
			return err
		}
		if err := report.Render(cmd.OutOrStdout(), s); err != nil {
			return err
		}
		if copyOutput {
			text, err := report.Export("", s, time.Now())
			if err != nil {
				return err
			}
			copyToClipboard(cmd, text)
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a session through a mustache template",
	Long: `Export a session as text.

The template comes from EXPORT_TEMPLATE (or export.template in the config
file); the built-in template lists each row's tasks and the memo.

Examples:
  timesheet export
  timesheet export --date yesterday --copy`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openSheet(cmd.Context())
		if err != nil {
			return err
		}
		defer closeSheet(a)
		s, err := pickSession(a, sessionDate)
		if err != nil {
			return err
		}
		tmpl, err := a.ExportTemplate()
		if err != nil {
			return err
		}
		text, err := report.Export(tmpl, s, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), text)
		if copyOutput {
			copyToClipboard(cmd, text)
		}
		return nil
	},
}

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Start the session of a date",
	Long: `Start the session of a date (today by default).

An existing session for that date is opened instead of creating a
duplicate.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openSheet(cmd.Context())
		if err != nil {
			return err
		}
		defer closeSheet(a)
		date, err := timecalc.ParseDateInput(sessionDate, time.Now())
		if err != nil {
			return err
		}
		if existing, ok := a.FindSession(date); ok {
			fmt.Fprintf(cmd.OutOrStdout(), "Session for %s already exists (%s)\n", timecalc.DisplayFormat(date), existing.ID)
			return nil
		}
		s, ok := a.Reconciler().StartNewSession(cmd.Context(), date)
		if !ok {
			return fmt.Errorf("session for %s could not be saved", date)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Started %s (%s)\n", timecalc.DisplayFormat(s.SessionDate), s.ID)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a stored session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openSheet(cmd.Context())
		if err != nil {
			return err
		}
		defer closeSheet(a)
		if err := a.DeleteSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

// pickSession returns the session of input, or today's current session when
// input is empty or names today.
func pickSession(a *app.App, input string) (domain.Session, error) {
	date, err := timecalc.ParseDateInput(input, time.Now())
	if err != nil {
		return domain.Session{}, err
	}
	if cur := a.Reconciler().Current(); cur.SessionDate == date {
		return cur, nil
	}
	s, ok := a.FindSession(date)
	if !ok {
		return domain.Session{}, fmt.Errorf("no session for %s", timecalc.DisplayFormat(date))
	}
	return s, nil
}

func copyToClipboard(cmd *cobra.Command, text string) {
	if err := clipboard.WriteAll(text); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not copy to clipboard: %v\n", err)
		return
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "Copied to clipboard")
}

func closeSheet(a *app.App) {
	if err := a.Close(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

func init() {
	rootCmd.AddCommand(sessionsCmd, showCmd, exportCmd, newCmd, deleteCmd)
	for _, c := range []*cobra.Command{showCmd, exportCmd, newCmd} {
		c.Flags().StringVar(&sessionDate, "date", "", `Session date: YYYY-MM-DD, "yesterday", "last monday" (default: today)`)
	}
	showCmd.Flags().BoolVar(&copyOutput, "copy", false, "Copy the text export to the clipboard")
	exportCmd.Flags().BoolVar(&copyOutput, "copy", false, "Copy the export to the clipboard")
}
