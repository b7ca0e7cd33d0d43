// Copyright 2026 The Pheromon Authors
// SPDX-License-Identifier: Apache-2.0

package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed cron expression bound to a location.
type Schedule struct {
	expression  string
	location    *time.Location
	minutes     bitset64
	hours       bitset64
	daysOfMonth bitset64
	months      bitset64
	daysOfWeek  bitset64
}

// bitset64 is a set of small integers (0-63).
type bitset64 uint64

func (b bitset64) has(value int) bool { return b&(1<<uint(value)) != 0 }
func (b *bitset64) set(value int)     { *b |= 1 << uint(value) }

// field describes one position of a cron expression.
type field struct {
	name     string
	minimum  int
	maximum  int
	assignTo func(*Schedule, bitset64)
}

var fields = [5]field{
	{"minute", 0, 59, func(s *Schedule, b bitset64) { s.minutes = b }},
	{"hour", 0, 23, func(s *Schedule, b bitset64) { s.hours = b }},
	{"day-of-month", 1, 31, func(s *Schedule, b bitset64) { s.daysOfMonth = b }},
	{"month", 1, 12, func(s *Schedule, b bitset64) { s.months = b }},
	{"day-of-week", 0, 6, func(s *Schedule, b bitset64) { s.daysOfWeek = b }},
}

// Parse parses a 5-field cron expression whose fields are interpreted
// in location. A nil location means time.Local.
func Parse(expression string, location *time.Location) (Schedule, error) {
	terms := strings.Fields(expression)
	if len(terms) != len(fields) {
		return Schedule{}, fmt.Errorf("cron: expected 5 fields, got %d", len(terms))
	}
	if location == nil {
		location = time.Local
	}

	schedule := Schedule{
		expression: strings.Join(terms, " "),
		location:   location,
	}
	for index, definition := range fields {
		bits, err := parseField(terms[index], definition.minimum, definition.maximum)
		if err != nil {
			return Schedule{}, fmt.Errorf("cron: %s field: %w", definition.name, err)
		}
		definition.assignTo(&schedule, bits)
	}
	return schedule, nil
}

// Daily returns the schedule "minute hour * * *" in location.
func Daily(hour, minute int, location *time.Location) (Schedule, error) {
	return Parse(fmt.Sprintf("%d %d * * *", minute, hour), location)
}

// String returns the normalized expression.
func (s Schedule) String() string { return s.expression }

// Location returns the location the schedule is evaluated in.
func (s Schedule) Location() *time.Location { return s.location }

// Next returns the earliest time strictly after t that matches the
// schedule's wall clock in its location. A wall-clock hour skipped by
// a daylight-saving transition does not match on that day.
//
// Returns an error when nothing matches within four years of t, which
// happens only for impossible dates such as "0 0 31 2 *".
func (s Schedule) Next(t time.Time) (time.Time, error) {
	location := s.location
	if location == nil {
		location = time.Local
	}
	t = t.In(location).Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(4, 0, 0)

	for t.Before(limit) {
		if !s.months.has(int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, location)
			continue
		}
		// Wildcards set every bit, so AND across both day fields
		// behaves like classic cron whenever one of them is "*".
		if !s.daysOfMonth.has(t.Day()) || !s.daysOfWeek.has(int(t.Weekday())) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, location)
			continue
		}
		if !s.hours.has(t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, location)
			continue
		}
		if !s.minutes.has(t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t, nil
	}

	return time.Time{}, fmt.Errorf("cron: no time matching %q within 4 years of %s",
		s.expression, t.Format(time.RFC3339))
}

// parseField ORs together the comma-separated terms of one field.
func parseField(text string, minimum, maximum int) (bitset64, error) {
	var result bitset64
	for _, term := range strings.Split(text, ",") {
		bits, err := parseTerm(term, minimum, maximum)
		if err != nil {
			return 0, err
		}
		result |= bits
	}
	if result == 0 {
		return 0, fmt.Errorf("field %q produces empty set", text)
	}
	return result, nil
}

// parseTerm parses *, */N, V, V-V, or V-V/N.
func parseTerm(term string, minimum, maximum int) (bitset64, error) {
	rangeText, stepText, hasStep := strings.Cut(term, "/")
	step := 1
	if hasStep {
		parsed, err := strconv.Atoi(stepText)
		if err != nil {
			return 0, fmt.Errorf("invalid step %q: %w", stepText, err)
		}
		if parsed <= 0 {
			return 0, fmt.Errorf("step must be positive, got %d", parsed)
		}
		step = parsed
	}

	start, end := minimum, maximum
	if rangeText != "*" {
		startText, endText, isRange := strings.Cut(rangeText, "-")
		var err error
		if start, err = strconv.Atoi(startText); err != nil {
			return 0, fmt.Errorf("invalid value %q: %w", startText, err)
		}
		end = start
		if isRange {
			if end, err = strconv.Atoi(endText); err != nil {
				return 0, fmt.Errorf("invalid range end %q: %w", endText, err)
			}
			if start > end {
				return 0, fmt.Errorf("range start %d > end %d", start, end)
			}
		}
	}

	if start < minimum || end > maximum {
		return 0, fmt.Errorf("value out of range [%d-%d]: got %d-%d", minimum, maximum, start, end)
	}

	var result bitset64
	for value := start; value <= end; value += step {
		result.set(value)
	}
	return result, nil
}
