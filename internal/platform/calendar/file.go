package calendar

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings are the flat configuration values a Policy is built from.
type Settings struct {
	Timezone        string
	GridStart       string
	GridEnd         string
	Interval        time.Duration
	BlockedWeekdays []string
	File            string
}

// fileSpec is the YAML layout of a calendar file. Fields left empty keep the
// value from Settings.
//
//	timezone: Africa/Algiers
//	blocked_weekdays: [friday, saturday]
//	grid:
//	  start: "08:00"
//	  end: "17:30"
//	  interval: 30m
//	times: ["08:00", "09:00"]
type fileSpec struct {
	Timezone        string   `yaml:"timezone"`
	BlockedWeekdays []string `yaml:"blocked_weekdays"`
	Grid            struct {
		Start    string `yaml:"start"`
		End      string `yaml:"end"`
		Interval string `yaml:"interval"`
	} `yaml:"grid"`
	Times []string `yaml:"times"`
}

// Load builds a Policy from settings, applying the YAML file if one is named.
func Load(s Settings) (Policy, error) {
	var explicit []string
	if s.File != "" {
		raw, err := os.ReadFile(s.File)
		if err != nil {
			return Policy{}, fmt.Errorf("read calendar file: %w", err)
		}
		var f fileSpec
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return Policy{}, fmt.Errorf("parse calendar file: %w", err)
		}
		if f.Timezone != "" {
			s.Timezone = f.Timezone
		}
		if len(f.BlockedWeekdays) > 0 {
			s.BlockedWeekdays = f.BlockedWeekdays
		}
		if f.Grid.Start != "" {
			s.GridStart = f.Grid.Start
		}
		if f.Grid.End != "" {
			s.GridEnd = f.Grid.End
		}
		if f.Grid.Interval != "" {
			d, err := time.ParseDuration(f.Grid.Interval)
			if err != nil {
				return Policy{}, fmt.Errorf("calendar file grid interval: %w", err)
			}
			s.Interval = d
		}
		explicit = f.Times
	}
	return s.policy(explicit)
}

func (s Settings) policy(explicit []string) (Policy, error) {
	p := DefaultPolicy()
	if s.Timezone != "" {
		loc, err := time.LoadLocation(s.Timezone)
		if err != nil {
			return Policy{}, fmt.Errorf("load timezone %q: %w", s.Timezone, err)
		}
		p.Location = loc
	}
	if len(s.BlockedWeekdays) > 0 {
		p.BlockedWeekdays = p.BlockedWeekdays[:0:0]
		for _, name := range s.BlockedWeekdays {
			d, err := ParseWeekday(name)
			if err != nil {
				return Policy{}, err
			}
			p.BlockedWeekdays = append(p.BlockedWeekdays, d)
		}
	}
	switch {
	case len(explicit) > 0:
		seen := make(map[string]bool, len(explicit))
		times := make([]string, 0, len(explicit))
		for _, t := range explicit {
			parsed, err := time.Parse(TimeLayout, strings.TrimSpace(t))
			if err != nil {
				return Policy{}, fmt.Errorf("calendar time %q: %w", t, ErrInvalidTime)
			}
			// InGrid binary-searches zero-padded HH:MM strings.
			hhmm := parsed.Format(TimeLayout)
			if !seen[hhmm] {
				seen[hhmm] = true
				times = append(times, hhmm)
			}
		}
		sort.Strings(times)
		p.Times = times
	case s.GridStart != "" || s.GridEnd != "" || s.Interval != 0:
		start, end, every := s.GridStart, s.GridEnd, s.Interval
		if start == "" {
			start = "08:00"
		}
		if end == "" {
			end = "15:30"
		}
		if every == 0 {
			every = 30 * time.Minute
		}
		times, err := NewGrid(start, end, every)
		if err != nil {
			return Policy{}, err
		}
		p.Times = times
	}
	return p, nil
}
