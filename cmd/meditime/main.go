package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/stellarlinkco/meditime/internal/clock"
	"github.com/stellarlinkco/meditime/internal/config"
	"github.com/stellarlinkco/meditime/internal/gateway"
	"github.com/stellarlinkco/meditime/internal/history"
	"github.com/stellarlinkco/meditime/internal/schedule"
)

var rootCmd = &cobra.Command{
	Use:   "meditime",
	Short: "meditime - medication reminder gateway",
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the reminder gateway (scheduler + channels)",
	RunE:  runGateway,
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Schedule a medication reminder",
	Long: `Schedule a medication reminder against the local store.

A running gateway keeps its own copy of the store and rewrites it as
reminders fire, so edits made here are picked up on its next restart.
While the gateway runs, prefer the /add chat command.`,
	RunE: runAdd,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending reminders",
	RunE:  runList,
}

var removeCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Cancel a reminder",
	Long: `Cancel a pending reminder in the local store.

A running gateway keeps its own copy of the store; use the /remove chat
command instead while it runs.`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded doses",
	RunE:  runHistory,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and data directories",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show meditime status",
	RunE:  runStatus,
}

var (
	medicineFlag string
	doseFlag     string
	timeFlag     string
	repeatFlag   string
	dateFlag     string
	imageFlag    string

	historyLimitFlag  int
	historyClearFlag  bool
	historyDeleteFlag []string
)

func init() {
	addCmd.Flags().StringVarP(&medicineFlag, "medicine", "m", "", "Medicine name (required)")
	addCmd.Flags().StringVarP(&doseFlag, "dose", "d", config.DefaultDose, "Dose, e.g. \"20 mg\"")
	addCmd.Flags().StringVarP(&timeFlag, "time", "t", "", "Wall time, e.g. \"08:30 am\" (required)")
	addCmd.Flags().StringVarP(&repeatFlag, "repeat", "r", "once", "once, everyday, or date")
	addCmd.Flags().StringVar(&dateFlag, "date", "", "Explicit date yyyy-mm-dd (repeat=date)")
	addCmd.Flags().StringVar(&imageFlag, "image", "", "Pill image reference shown while ringing")

	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "n", 10, "Number of entries to show")
	historyCmd.Flags().BoolVar(&historyClearFlag, "clear", false, "Delete the whole history")
	historyCmd.Flags().StringSliceVar(&historyDeleteFlag, "delete", nil, "Delete entries by id")

	rootCmd.AddCommand(gatewayCmd, addCmd, listCmd, removeCmd, historyCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func reminderStorePath() string {
	return filepath.Join(config.DataDir(), "reminders.json")
}

func historyDBPath(cfg *config.Config) string {
	if p := strings.TrimSpace(cfg.History.DBPath); p != "" {
		return p
	}
	return filepath.Join(config.DataDir(), "history.db")
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

func runAdd(cmd *cobra.Command, args []string) error {
	req, err := buildRequest(medicineFlag, doseFlag, timeFlag, repeatFlag, dateFlag, imageFlag)
	if err != nil {
		return err
	}
	return addReminder(reminderStorePath(), req, cmd.OutOrStdout())
}

// buildRequest turns the add flags into a schedule request.
func buildRequest(medicine, dose, at, repeat, date, image string) (schedule.Request, error) {
	fields := strings.Fields(at)
	if len(fields) != 2 {
		return schedule.Request{}, fmt.Errorf("--time must look like \"08:30 am\"")
	}
	wall, err := clock.ParseWallTime(fields[0], fields[1])
	if err != nil {
		return schedule.Request{}, err
	}

	req := schedule.Request{
		Medicine: medicine,
		Dose:     dose,
		Image:    image,
		Time:     wall,
		Repeat:   schedule.RepeatKind(strings.ToLower(strings.TrimSpace(repeat))),
	}
	if req.Repeat == schedule.RepeatDate {
		if strings.TrimSpace(date) == "" {
			return schedule.Request{}, fmt.Errorf("--date is required when repeat is date")
		}
		d, err := clock.ParseDate(date)
		if err != nil {
			return schedule.Request{}, err
		}
		req.Date = &d
	}
	return req, nil
}

func addReminder(storePath string, req schedule.Request, out io.Writer) error {
	svc := schedule.NewService(storePath)
	if err := svc.Load(); err != nil {
		return fmt.Errorf("load reminders: %w", err)
	}
	r, err := svc.Add(req)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Reminder set: %s, %s at %s (%s)\n", r.Medicine, r.Dose, r.TriggerAt().Format("Mon Jan 2 15:04"), r.Repeat)
	fmt.Fprintf(out, "Id: %s\n", r.ID)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	return listReminders(reminderStorePath(), cmd.OutOrStdout())
}

func listReminders(storePath string, out io.Writer) error {
	svc := schedule.NewService(storePath)
	if err := svc.Load(); err != nil {
		return fmt.Errorf("load reminders: %w", err)
	}
	rs := svc.List()
	if len(rs) == 0 {
		fmt.Fprintln(out, "No reminders scheduled.")
		return nil
	}
	for _, r := range rs {
		state := ""
		if !r.Enabled {
			state = " (paused)"
		}
		fmt.Fprintf(out, "%s  %s %s at %s, %s%s\n", r.ID, r.Medicine, r.Dose, r.TriggerAt().Format("Mon Jan 2 15:04"), r.Repeat, state)
	}
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	return removeReminder(reminderStorePath(), args[0], cmd.OutOrStdout())
}

func removeReminder(storePath, id string, out io.Writer) error {
	svc := schedule.NewService(storePath)
	if err := svc.Load(); err != nil {
		return fmt.Errorf("load reminders: %w", err)
	}
	if !svc.Remove(id) {
		return fmt.Errorf("no reminder with id %s", id)
	}
	fmt.Fprintln(out, "Reminder removed.")
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return showHistory(historyDBPath(cfg), historyLimitFlag, historyClearFlag, historyDeleteFlag, cmd.OutOrStdout())
}

func showHistory(dbPath string, limit int, clear bool, deleteIDs []string, out io.Writer) error {
	ledger, err := history.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer ledger.Close()

	if clear {
		n, err := ledger.Clear()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d entries.\n", n)
		return nil
	}

	if len(deleteIDs) > 0 {
		n, err := ledger.Delete(deleteIDs...)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d entries.\n", n)
		return nil
	}

	entries, err := ledger.List(limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No doses recorded yet.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s  %s %s — %s\n", e.ID, e.Medicine, e.Dose, e.TakenAt.Format("Mon Jan 2 15:04"))
	}
	return nil
}

func runOnboard(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(config.DataDir(), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		data, _ := json.MarshalIndent(cfg, "", "  ")
		if err := os.WriteFile(cfgPath, data, 0644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(out, "Created config: %s\n", cfgPath)
	} else {
		fmt.Fprintf(out, "Config already exists: %s\n", cfgPath)
	}

	fmt.Fprintf(out, "Data directory ready: %s\n", filepath.Join(cfgDir, "data"))
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintf(out, "  1. Edit %s to set the patient name and language\n", cfgPath)
	fmt.Fprintln(out, "  2. Run 'meditime gateway' and open the web page it serves")
	fmt.Fprintf(out, "  3. Try 'meditime add -m Aspirin -t \"08:30 am\" -r everyday'\n")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(out, "Config: error (%v)\n", err)
		return nil
	}

	fmt.Fprintf(out, "Config: %s\n", config.ConfigPath())
	fmt.Fprintf(out, "Patient: %s\n", patientDisplay(cfg.Patient.Name))
	fmt.Fprintf(out, "Language: %s\n", cfg.Patient.Language)
	fmt.Fprintf(out, "Gateway: %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	fmt.Fprintf(out, "Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)
	fmt.Fprintf(out, "WhatsApp: enabled=%v\n", cfg.Channels.WhatsApp.Enabled)
	fmt.Fprintf(out, "WebUI: enabled=%v\n", cfg.Channels.WebUI.Enabled)

	svc := schedule.NewService(reminderStorePath())
	if err := svc.Load(); err == nil {
		fmt.Fprintf(out, "Reminders: %d pending\n", len(svc.List()))
	}

	if ledger, err := history.Open(historyDBPath(cfg)); err == nil {
		if n, err := ledger.Count(); err == nil {
			fmt.Fprintf(out, "Doses recorded: %s\n", strconv.Itoa(n))
		}
		_ = ledger.Close()
	}

	return nil
}

func patientDisplay(name string) string {
	if strings.TrimSpace(name) == "" {
		return "(not set)"
	}
	return name
}
