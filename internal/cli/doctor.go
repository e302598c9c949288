package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fluxr/fluxr/internal/attach"
	"github.com/fluxr/fluxr/internal/cli/appctx"
	"github.com/fluxr/fluxr/internal/db"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check database health",
	Long: `Checks for pending migrations, friendly-ID sequences that fell behind
the stored IDs, and item images missing from the image directory.
--fix applies migrations and realigns sequences.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.Options{NeedsDB: true, SkipMigrationCheck: true}, runDoctor),
}

var (
	doctorFix     bool
	doctorVerbose bool
)

type checkResult struct {
	Name    string   `json:"name" yaml:"name"`
	Status  string   `json:"status" yaml:"status"` // "ok", "warning", "error"
	Message string   `json:"message,omitempty" yaml:"message,omitempty"`
	Details []string `json:"details,omitempty" yaml:"details,omitempty"`
	Fixed   bool     `json:"fixed,omitempty" yaml:"fixed,omitempty"`
}

type doctorReport struct {
	DBPath        string        `json:"db_path" yaml:"db_path"`
	Checks        []checkResult `json:"checks" yaml:"checks"`
	Warnings      int           `json:"warnings" yaml:"warnings"`
	Errors        int           `json:"errors" yaml:"errors"`
	OverallStatus string        `json:"overall_status" yaml:"overall_status"`
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "Repair what can be repaired")
	doctorCmd.Flags().BoolVarP(&doctorVerbose, "verbose", "v", false, "Show details")
}

func runDoctor(app *appctx.App, cmd *cobra.Command, args []string) error {
	report := &doctorReport{DBPath: app.Config.DBPath}

	migrations := checkMigrations(app.DB, doctorFix)
	report.Checks = append(report.Checks, migrations)
	if migrations.Status == "ok" || migrations.Fixed {
		report.Checks = append(report.Checks, checkSequences(app.DB, doctorFix))
		report.Checks = append(report.Checks, checkImages(app.DB, app.Config.ImageDir))
	}

	report.OverallStatus = "ok"
	for _, c := range report.Checks {
		if c.Fixed {
			continue
		}
		switch c.Status {
		case "warning":
			report.Warnings++
		case "error":
			report.Errors++
		}
	}
	if report.Errors > 0 {
		report.OverallStatus = "error"
	} else if report.Warnings > 0 {
		report.OverallStatus = "warning"
	}

	if app.Renderer.Structured() {
		if err := app.Renderer.Render(report); err != nil {
			return err
		}
	} else {
		printDoctorReport(cmd, report)
	}

	if report.Errors > 0 {
		return fmt.Errorf("doctor found %d error(s)", report.Errors)
	}
	return nil
}

func checkMigrations(database *db.DB, fix bool) checkResult {
	_, pending, err := database.MigrationStatus()
	if err != nil {
		return checkResult{Name: "migrations", Status: "error", Message: fmt.Sprintf("Failed to read migration status: %v", err)}
	}
	if len(pending) == 0 {
		return checkResult{Name: "migrations", Status: "ok", Message: "Schema is up to date"}
	}

	res := checkResult{
		Name:    "migrations",
		Status:  "error",
		Message: fmt.Sprintf("%d pending migration(s)", len(pending)),
		Details: pending,
	}
	if fix {
		if _, err := database.MigrateWithInfo(); err != nil {
			res.Details = append(res.Details, fmt.Sprintf("fix failed: %v", err))
			return res
		}
		res.Fixed = true
		res.Message = fmt.Sprintf("Applied %d pending migration(s)", len(pending))
	}
	return res
}

func checkSequences(database *db.DB, fix bool) checkResult {
	specs := db.DefaultSequenceSpecs()
	drifts, err := db.SequenceDrifts(database, specs)
	if err != nil {
		return checkResult{Name: "sequences", Status: "error", Message: err.Error()}
	}
	if len(drifts) == 0 {
		return checkResult{Name: "sequences", Status: "ok", Message: "Friendly-ID sequences are in sync"}
	}

	res := checkResult{
		Name:    "sequences",
		Status:  "warning",
		Message: fmt.Sprintf("%d sequence(s) behind stored IDs", len(drifts)),
	}
	for _, d := range drifts {
		res.Details = append(res.Details, d.String())
	}
	if fix {
		if _, err := db.FixSequenceDrifts(database, specs); err != nil {
			res.Details = append(res.Details, fmt.Sprintf("fix failed: %v", err))
			return res
		}
		res.Fixed = true
		res.Message = fmt.Sprintf("Realigned %d sequence(s)", len(drifts))
	}
	return res
}

func checkImages(database *db.DB, imageDir string) checkResult {
	rows, err := database.Query(`
		SELECT id, image_path FROM features WHERE image_path IS NOT NULL
		UNION ALL
		SELECT id, image_path FROM bugs WHERE image_path IS NOT NULL
	`)
	if err != nil {
		return checkResult{Name: "images", Status: "error", Message: fmt.Sprintf("Failed to query images: %v", err)}
	}
	defer rows.Close()

	var total int
	var missing []string
	for rows.Next() {
		var id, rel string
		if err := rows.Scan(&id, &rel); err != nil {
			return checkResult{Name: "images", Status: "error", Message: err.Error()}
		}
		total++
		if _, err := os.Stat(attach.AbsolutePath(imageDir, rel)); err != nil {
			missing = append(missing, fmt.Sprintf("%s: %s", id, rel))
		}
	}
	if err := rows.Err(); err != nil {
		return checkResult{Name: "images", Status: "error", Message: err.Error()}
	}

	if len(missing) > 0 {
		return checkResult{
			Name:    "images",
			Status:  "warning",
			Message: fmt.Sprintf("%d of %d image(s) missing from %s", len(missing), total, imageDir),
			Details: missing,
		}
	}
	return checkResult{Name: "images", Status: "ok", Message: fmt.Sprintf("%d image(s) present", total)}
}

func printDoctorReport(cmd *cobra.Command, report *doctorReport) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Database: %s\n\n", report.DBPath)
	for _, check := range report.Checks {
		icon := "✓"
		switch {
		case check.Fixed:
			icon = "↻"
		case check.Status == "warning":
			icon = "⚠"
		case check.Status == "error":
			icon = "✗"
		}
		fmt.Fprintf(w, "  %s %s\n", icon, check.Message)
		if doctorVerbose || check.Status != "ok" {
			for _, detail := range check.Details {
				fmt.Fprintf(w, "      %s\n", detail)
			}
		}
	}
	fmt.Fprintf(w, "\nStatus: %s\n", report.OverallStatus)
}
