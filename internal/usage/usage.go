// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package usage tracks the daily credit budget. Every chargeable model call
// checks the ledger before any network activity and increments it once after
// a real (non-fallback) success.
package usage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// DayFormat keys the ledger by local calendar day.
const DayFormat = "2006-01-02"

// Info is a snapshot of today's budget for a prospective charge.
type Info struct {
	Used      int  `json:"used"`
	Limit     int  `json:"limit"`
	Needed    int  `json:"needed"`
	Remaining int  `json:"remaining"`
	CanAfford bool `json:"can_afford"`
}

// Ledger is the credit store consulted by the request executor.
type Ledger interface {
	// Info reports today's usage against the limit for a charge of cost.
	Info(cost int) (Info, error)
	// Increment charges cost credits to today.
	Increment(cost int) error
}

// Day is one row of usage history.
type Day struct {
	Date    string `json:"date"`
	Credits int    `json:"credits"`
}

// NormalizeCost clamps a charge to at least one credit.
func NormalizeCost(cost int) int {
	if cost < 1 {
		return 1
	}
	return cost
}

// CanAfford is a convenience wrapper around Ledger.Info.
func CanAfford(l Ledger, cost int) (bool, error) {
	info, err := l.Info(cost)
	if err != nil {
		return false, err
	}
	return info.CanAfford, nil
}

func newInfo(used, limit, cost int) Info {
	needed := NormalizeCost(cost)
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Info{
		Used:      used,
		Limit:     limit,
		Needed:    needed,
		Remaining: remaining,
		CanAfford: used+needed <= limit,
	}
}

// =============================================================================
// PLANS
// =============================================================================

// Plan is a subscription tier with a daily credit limit.
type Plan struct {
	ID         string
	Name       string
	DailyLimit int
}

// DefaultPlan applies when no plan is configured.
const DefaultPlan = "free"

// Plans are the known subscription tiers.
var Plans = map[string]Plan{
	"free":          {ID: "free", Name: "Free", DailyLimit: 5},
	"neo":           {ID: "neo", Name: "Neo", DailyLimit: 30},
	"plus":          {ID: "plus", Name: "Plus", DailyLimit: 50},
	"ultra":         {ID: "ultra", Name: "Ultra", DailyLimit: 100},
	"agentic-ultra": {ID: "agentic-ultra", Name: "Agentic Ultra", DailyLimit: 500},
}

// LookupPlan returns the plan for id, case-insensitively.
func LookupPlan(id string) (Plan, error) {
	p, ok := Plans[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Plan{}, fmt.Errorf("unknown plan %q", id)
	}
	return p, nil
}

// PlanIDs returns the plan ids ordered by limit.
func PlanIDs() []string {
	ids := make([]string, 0, len(Plans))
	for id := range Plans {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return Plans[ids[i]].DailyLimit < Plans[ids[j]].DailyLimit })
	return ids
}

// DailyLimit resolves the effective limit: a positive override wins,
// otherwise the plan's limit, otherwise the free plan's.
func DailyLimit(planID string, override int) int {
	if override > 0 {
		return override
	}
	if p, err := LookupPlan(planID); err == nil {
		return p.DailyLimit
	}
	return Plans[DefaultPlan].DailyLimit
}

// =============================================================================
// MEMORY LEDGER
// =============================================================================

// MemoryLedger is an in-process ledger. Usage is lost on exit.
type MemoryLedger struct {
	mu    sync.Mutex
	limit int
	now   func() time.Time
	days  map[string]int
}

// NewMemoryLedger returns a ledger with the given daily limit.
func NewMemoryLedger(limit int) *MemoryLedger {
	return &MemoryLedger{limit: limit, now: time.Now, days: make(map[string]int)}
}

// SetClock replaces the time source. Used by tests to cross midnight.
func (m *MemoryLedger) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Info implements Ledger.
func (m *MemoryLedger) Info(cost int) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newInfo(m.days[m.now().Format(DayFormat)], m.limit, cost), nil
}

// Increment implements Ledger.
func (m *MemoryLedger) Increment(cost int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.days[m.now().Format(DayFormat)] += NormalizeCost(cost)
	return nil
}

// Used returns today's credits.
func (m *MemoryLedger) Used() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.days[m.now().Format(DayFormat)]
}

// Reset clears today's usage.
func (m *MemoryLedger) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.days, m.now().Format(DayFormat))
	return nil
}
