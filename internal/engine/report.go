package engine

import (
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/talgya/heatsim/internal/agents"
	"github.com/talgya/heatsim/internal/heating"
)

// Report logs a periodic summary of s and the recent events.
func (m *Model) Report(s *Snapshot) {
	c := s.Counters
	replacements, changes := 0, 0
	for _, n := range c.Replacements {
		replacements += n
	}
	for _, n := range c.Changes {
		changes += n
	}
	eventCounts := make(map[string]int)
	events := m.Events()
	for _, e := range events {
		eventCounts[e.Category]++
	}

	slog.Info("yearly report",
		"tick", s.Tick,
		"time", SimTime(m.Env.Cfg.Run.StartYear, s.Tick),
		"idle", s.Stages[agents.Idle.String()],
		"deciding", len(s.Agents)-s.Stages[agents.Idle.String()],
		"replacements", replacements,
		"changes", changes,
		"spending", humanize.Comma(int64(c.Spending)),
		"subsidies", humanize.Comma(int64(c.Effort.Subsidies)),
		"loans", humanize.Comma(int64(c.Effort.Loans)),
		"heat_pumps", fmt.Sprintf("%d/%d", s.Installed(heating.HeatPump), len(s.Agents)),
		"optimality", fmt.Sprintf("%.3f", c.Optimality.Mean()),
		"events_scenario", eventCounts["scenario"],
		"events_market", eventCounts["market"],
	)

	recent := events
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	for _, e := range recent {
		if e.Tick > s.Tick-m.Env.Cfg.Run.ReportEvery {
			slog.Info("event", "category", e.Category, "description", e.Description)
		}
	}
}
