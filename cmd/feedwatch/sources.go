package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/feedwatch/internal/collect"
	"github.com/TobiSchelling/feedwatch/internal/database"
	"github.com/TobiSchelling/feedwatch/internal/extract"
)

// --- sources command ---

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage monitored sources",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		sources, err := db.ListSources(database.SourceFilter{})
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			fmt.Println("No sources defined. Add one with: feedwatch sources add")
			return nil
		}

		for _, s := range sources {
			icon := " "
			if s.IsActive {
				icon = "*"
			}
			fmt.Printf("  [%d] %s %s  %s\n", s.ID, icon, s.Name, s.Route)
			last, err := db.LatestOutcome(s.ID)
			if errors.Is(err, database.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			fmt.Printf("        last check: %s, %d items, quality %d\n", last.Status, last.ItemCount, last.QualityScore)
		}
		return nil
	},
}

var (
	addName        string
	addRoute       string
	addURL         string
	addSelectors   string
	addCategory    string
	addDescription string
	addNoValidate  bool
)

var sourcesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a feed route or a scraped page",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := extract.ParseHints(addSelectors); err != nil {
			return fmt.Errorf("invalid --selectors: %w", err)
		}
		if collect.IsCustomRoute(addRoute) && addURL == "" {
			return fmt.Errorf("--url is required for %s routes", collect.CustomRoutePrefix)
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if !addNoValidate {
			pipe, closeLocks, err := newPipeline(cmd.Context(), db)
			if err != nil {
				return err
			}
			ok, msg := pipe.Validate(cmd.Context(), addRoute)
			closeLocks()
			if !ok {
				return fmt.Errorf("route validation failed: %s", msg)
			}
			fmt.Println(msg)
		}

		id, err := db.InsertSource(database.Source{
			Name:            addName,
			Route:           addRoute,
			OriginalURL:     addURL,
			CustomSelectors: addSelectors,
			Category:        addCategory,
			Description:     addDescription,
			IsActive:        true,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Added source [%d]: %s\n", id, addName)
		return nil
	},
}

func init() {
	f := sourcesAddCmd.Flags()
	f.StringVar(&addName, "name", "", "Display name")
	f.StringVar(&addRoute, "route", "", "RSSHub route, or custom/<name> for scraped pages")
	f.StringVar(&addURL, "url", "", "Page URL for custom routes")
	f.StringVar(&addSelectors, "selectors", "", `Extraction hints as JSON, e.g. {"content":"article"}`)
	f.StringVar(&addCategory, "category", "", "Category")
	f.StringVar(&addDescription, "description", "", "Description")
	f.BoolVar(&addNoValidate, "no-validate", false, "Skip the live route check")
	_ = sourcesAddCmd.MarkFlagRequired("name")
	_ = sourcesAddCmd.MarkFlagRequired("route")
}

var (
	editName      string
	editRoute     string
	editURL       string
	editSelectors string
	editCategory  string
	editFrequency int
)

var sourcesEditCmd = &cobra.Command{
	Use:   "edit [id]",
	Short: "Change a source's settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		src, err := sourceArg(db, args[0])
		if err != nil {
			return err
		}

		f := cmd.Flags()
		if f.Changed("route") && editRoute != src.Route {
			pipe, closeLocks, err := newPipeline(cmd.Context(), db)
			if err != nil {
				return err
			}
			ok, msg := pipe.Validate(cmd.Context(), editRoute)
			closeLocks()
			if !ok {
				return fmt.Errorf("route validation failed: %s", msg)
			}
			src.Route = editRoute
		}
		if f.Changed("selectors") {
			if _, err := extract.ParseHints(editSelectors); err != nil {
				return fmt.Errorf("invalid --selectors: %w", err)
			}
			src.CustomSelectors = editSelectors
		}
		if f.Changed("name") {
			src.Name = editName
		}
		if f.Changed("url") {
			src.OriginalURL = editURL
		}
		if f.Changed("category") {
			src.Category = editCategory
		}
		if f.Changed("frequency") {
			src.CheckFrequency = editFrequency
		}

		if err := db.UpdateSource(*src); err != nil {
			return err
		}
		fmt.Printf("Updated source [%d]: %s\n", src.ID, src.Name)
		return nil
	},
}

func init() {
	f := sourcesEditCmd.Flags()
	f.StringVar(&editName, "name", "", "Display name")
	f.StringVar(&editRoute, "route", "", "RSSHub route, or custom/<name> for scraped pages")
	f.StringVar(&editURL, "url", "", "Page URL for custom routes")
	f.StringVar(&editSelectors, "selectors", "", "Extraction hints as JSON")
	f.StringVar(&editCategory, "category", "", "Category")
	f.IntVar(&editFrequency, "frequency", database.DefaultCheckFrequency, "Check frequency in minutes")
}

var sourcesRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove a source with its items and history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		src, err := sourceArg(db, args[0])
		if err != nil {
			return err
		}
		if err := db.DeleteSource(src.ID); err != nil {
			return err
		}
		fmt.Printf("Removed source [%d]: %s\n", src.ID, src.Name)
		return nil
	},
}

var sourcesToggleCmd = &cobra.Command{
	Use:   "toggle [id]",
	Short: "Toggle a source's active state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		src, err := sourceArg(db, args[0])
		if err != nil {
			return err
		}
		active, err := db.ToggleSource(src.ID)
		if err != nil {
			return err
		}
		newState := "disabled"
		if active {
			newState = "enabled"
		}
		fmt.Printf("Source [%d] %s: %s\n", src.ID, src.Name, newState)
		return nil
	},
}

func init() {
	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesAddCmd)
	sourcesCmd.AddCommand(sourcesEditCmd)
	sourcesCmd.AddCommand(sourcesRemoveCmd)
	sourcesCmd.AddCommand(sourcesToggleCmd)
}

// --- alerts command ---

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List and acknowledge alerts",
}

var (
	alertsUnread bool
	alertsLimit  int
)

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts, unread first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		alerts, err := db.ListAlerts(database.AlertFilter{UnreadOnly: alertsUnread, Limit: uint64(alertsLimit)})
		if err != nil {
			return err
		}
		if len(alerts) == 0 {
			fmt.Println("No alerts.")
			return nil
		}
		for _, a := range alerts {
			mark := " "
			if !a.IsRead {
				mark = "!"
			}
			fmt.Printf("  [%d] %s %-7s %s  %s\n", a.ID, mark, a.Level, a.CreatedAt.Format("2006-01-02 15:04"), a.Message)
		}
		return nil
	},
}

var alertsReadAll bool

var alertsReadCmd = &cobra.Command{
	Use:   "read [id]",
	Short: "Mark an alert, or all with --all, as read",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if alertsReadAll == (len(args) == 1) {
			return fmt.Errorf("pass either an alert ID or --all")
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if alertsReadAll {
			n, err := db.MarkAllAlertsRead()
			if err != nil {
				return err
			}
			fmt.Printf("Marked %d alert(s) as read\n", n)
			return nil
		}

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid alert ID: %s", args[0])
		}
		if err := db.MarkAlertRead(id); err != nil {
			return fmt.Errorf("alert %d: %w", id, err)
		}
		fmt.Printf("Alert [%d] marked as read\n", id)
		return nil
	},
}

func init() {
	alertsListCmd.Flags().BoolVar(&alertsUnread, "unread", false, "Only unread alerts")
	alertsListCmd.Flags().IntVarP(&alertsLimit, "limit", "n", 50, "Maximum number of alerts")
	alertsReadCmd.Flags().BoolVar(&alertsReadAll, "all", false, "Mark every alert as read")

	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsReadCmd)
}
