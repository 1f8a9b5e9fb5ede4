package commands

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/rslogger/rsaudio/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Modules           map[string]*ModuleStats
	Sessions          map[string]int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ModuleStats holds statistics for a single module.
type ModuleStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	Commands   int
	Rejected   int
	Recordings int

	// Latencies are the dispatch round trips seen by a controller.
	Latencies []time.Duration
}

// MaxLatency returns the slowest round trip, or zero.
func (m *ModuleStats) MaxLatency() time.Duration {
	if len(m.Latencies) == 0 {
		return 0
	}
	return slices.Max(m.Latencies)
}

// Collect reads every event in path.
func Collect(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Modules:           make(map[string]*ModuleStats),
		Sessions:          make(map[string]int),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
	return stats, nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++
	s.Sessions[event.SessionID]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	if event.Error != nil {
		s.Errors++
	}

	if event.ModuleID == "" {
		return
	}
	m, ok := s.Modules[event.ModuleID]
	if !ok {
		m = &ModuleStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Modules[event.ModuleID] = m
	}
	m.Events++
	if event.Timestamp.After(m.LastSeen) {
		m.LastSeen = event.Timestamp
	}

	msg := event.Message
	if msg == nil {
		return
	}
	switch event.Category {
	case log.CategoryCommand:
		m.Commands++
	case log.CategoryResponse:
		if msg.Status == "error" {
			m.Rejected++
		}
		if msg.Latency != nil {
			m.Latencies = append(m.Latencies, *msg.Latency)
		}
	case log.CategoryData:
		m.Recordings++
	}
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := Collect(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== rsaudio Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintf(w, "Sessions:     %d\n", len(stats.Sessions))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for c := log.CategoryCommand; c <= log.CategoryError; c++ {
		if count := stats.EventsByCategory[c]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", c.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut, log.DirectionNone} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Modules: %d\n", len(stats.Modules))
	ids := make([]string, 0, len(stats.Modules))
	for id := range stats.Modules {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		m := stats.Modules[id]
		fmt.Fprintf(w, "  %s: %d events, %d commands, %d rejected, %d recordings\n",
			id, m.Events, m.Commands, m.Rejected, m.Recordings)
		if slowest := m.MaxLatency(); slowest > 0 {
			fmt.Fprintf(w, "           max latency %s over %d responses\n", formatDuration(slowest), len(m.Latencies))
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
