// Package gamify holds the pure decision functions behind habitquest's game
// loop: when a habit can be completed, how streaks advance, how XP maps to
// levels, which badges a user qualifies for, and how competitors rank.
//
// Nothing here touches storage or the clock. Callers pass "now" explicitly,
// already converted to the time zone whose calendar days should count; every
// day comparison in this package uses the location of that argument.
package gamify
