// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// usage_cmd.go - The "usage" command: daily credits.
//
// Subcommands:
//   show (default)      Credits used today against the plan limit
//   history [--days n]  Credits per day
//   plans               Known plans and their daily limits
//   reset --confirm     Clear today's usage
package cli

import (
	"fmt"
	"strings"

	"github.com/jeranaias/vibecode/internal/config"
	"github.com/jeranaias/vibecode/internal/usage"
)

const defaultHistoryDays = 7

// PlanData is one row of "usage plans".
type PlanData struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DailyLimit int    `json:"daily_limit"`
	Current    bool   `json:"current,omitempty"`
}

// HandleUsage handles the "usage" command.
func HandleUsage(args Args) error {
	p := NewArgParser(args.Raw, askBoolFlags...)

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	switch args.Subcommand {
	case "plans":
		return handleUsagePlans(cfg, args)
	case "", "show", "history", "reset":
	default:
		return NewValidationErrorWithExample("usage subcommand", args.Subcommand,
			"unknown subcommand", "vibe usage show|history|plans|reset")
	}

	l, persisted, closeLedger := openLedger(cfg)
	defer closeLedger()

	switch args.Subcommand {
	case "history":
		days := defaultHistoryDays
		if p.HasFlag("days") {
			if days, err = ParseIntWithValidation(p.Flag("days"), "days"); err != nil {
				return NewValidationError("days", p.Flag("days"), err.Error())
			}
			if days > 366 {
				days = 366
			}
		}
		return handleUsageHistory(cfg, l, persisted, days, args)
	case "reset":
		if !p.BoolFlag("confirm") {
			return NewValidationErrorWithExample("confirm", "", "reset clears today's credits", "vibe usage reset --confirm")
		}
		if err := l.Reset(); err != nil {
			return WrapError(err, "failed to reset usage")
		}
		if args.JSON {
			return NewJSONResponse("usage reset", usageData(cfg, l, persisted)).Print()
		}
		fmt.Fprintf(stdout, "%s Today's usage cleared\n", SuccessStyle.Render("[OK]"))
		return nil
	}

	data := usageData(cfg, l, persisted)
	if args.JSON {
		return NewJSONResponse("usage", data).Print()
	}
	printUsage(data)
	return nil
}

// openLedger opens the SQLite ledger, falling back to an empty in-memory
// one when the database cannot be opened.
func openLedger(cfg *config.Config) (ledger, bool, func()) {
	if path, err := cfg.UsageDBPath(); err == nil {
		if l, err := usage.OpenSQLite(path, cfg.DailyLimit()); err == nil {
			return l, true, func() { _ = l.Close() }
		}
	}
	return usage.NewMemoryLedger(cfg.DailyLimit()), false, func() {}
}

func usageData(cfg *config.Config, l ledger, persisted bool) UsageData {
	info, err := l.Info(0)
	if err != nil {
		info = usage.Info{Limit: cfg.DailyLimit()}
	}
	return UsageData{
		Plan:      cfg.Usage.Plan,
		Used:      info.Used,
		Limit:     info.Limit,
		Remaining: info.Remaining,
		Persisted: persisted,
	}
}

func printUsage(data UsageData) {
	name := data.Plan
	if p, err := usage.LookupPlan(data.Plan); err == nil {
		name = p.Name
	}
	fmt.Fprintln(stdout, TitleStyle.Render("Daily Credits"))
	fmt.Fprintf(stdout, "  %s%s\n", RenderLabel("Plan:"), ValueStyle.Render(name))
	fmt.Fprintf(stdout, "  %s%s\n", RenderLabel("Used today:"), ValueStyle.Render(fmt.Sprintf("%d / %d", data.Used, data.Limit)))
	remaining := fmt.Sprint(data.Remaining)
	if data.Remaining == 0 {
		remaining = ErrorStyle.Render(remaining + " (limit reached, resets at midnight)")
	} else {
		remaining = SuccessStyle.Render(remaining)
	}
	fmt.Fprintf(stdout, "  %s%s\n", RenderLabel("Remaining:"), remaining)
	fmt.Fprintf(stdout, "  %s%s\n", RenderLabel("Meter:"), usageBar(data.Used, data.Limit, 20))
	if !data.Persisted {
		fmt.Fprintln(stdout, DimStyle.Render("  usage database unavailable, counts are not kept between runs"))
	}
}

func handleUsageHistory(cfg *config.Config, l ledger, persisted bool, days int, args Args) error {
	var history []usage.Day
	if h, ok := l.(historyLedger); ok {
		var err error
		history, err = h.History(days)
		if err != nil {
			return WrapError(err, "failed to read usage history")
		}
	}

	data := usageData(cfg, l, persisted)
	data.History = history
	if args.JSON {
		return NewJSONResponse("usage history", data).Print()
	}

	fmt.Fprintln(stdout, TitleStyle.Render(fmt.Sprintf("Credits, last %d days", days)))
	if len(history) == 0 {
		fmt.Fprintln(stdout, DimStyle.Render("  no history recorded"))
		return nil
	}
	total := 0
	for _, d := range history {
		total += d.Credits
		fmt.Fprintf(stdout, "  %s %s %3d\n", d.Date, usageBar(d.Credits, data.Limit, 20), d.Credits)
	}
	fmt.Fprintln(stdout, DimStyle.Render(fmt.Sprintf("  total %d, daily limit %d", total, data.Limit)))
	return nil
}

func handleUsagePlans(cfg *config.Config, args Args) error {
	ids := usage.PlanIDs()
	plans := make([]PlanData, 0, len(ids))
	for _, id := range ids {
		p := usage.Plans[id]
		plans = append(plans, PlanData{ID: p.ID, Name: p.Name, DailyLimit: p.DailyLimit, Current: id == cfg.Usage.Plan})
	}
	if args.JSON {
		return NewJSONResponse("usage plans", plans).Print()
	}
	for _, p := range plans {
		marker := "  "
		if p.Current {
			marker = HighlightStyle.Render("* ")
		}
		fmt.Fprintf(stdout, "%s%s%s\n", marker, RenderLabel(p.Name), fmt.Sprintf("%d credits/day", p.DailyLimit))
	}
	if cfg.Usage.DailyLimit > 0 {
		fmt.Fprintln(stdout, DimStyle.Render(fmt.Sprintf("daily_limit override: %d", cfg.Usage.DailyLimit)))
	}
	return nil
}

// usageBar draws a fixed-width meter of used against limit.
func usageBar(used, limit, width int) string {
	if limit <= 0 {
		return strings.Repeat(".", width)
	}
	filled := used * width / limit
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("#", filled) + strings.Repeat(".", width-filled)
	if used >= limit {
		return ErrorStyle.Render(bar)
	}
	return SuccessStyle.Render(bar)
}
