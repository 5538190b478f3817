// Package guide runs the guide data subsystem: periodic background refresh
// of channel, group, and timer data from the fleet, paused while the
// registry changes fleet membership.
package guide
