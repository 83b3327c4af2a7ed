// Package anticheat evaluates heuristics over a check-in attempt and
// produces an advisory flag for coach review. Evaluation never blocks a
// check-in; the caller records the flag alongside a completed record.
package anticheat

import (
	"fmt"
	"strings"
)

// FlagType labels the heuristic that fired.
type FlagType string

const (
	// FlagTypeImplausibleAccuracy indicates a GPS-declared accuracy too
	// precise to be a genuine consumer-device reading.
	FlagTypeImplausibleAccuracy FlagType = "implausible_accuracy"
	// FlagTypeDistanceMismatch indicates a location proof inconsistent with
	// a simultaneously presented token's implied location.
	FlagTypeDistanceMismatch FlagType = "distance_mismatch"
	// FlagTypeKnownDevice indicates the device fingerprint was flagged on a
	// previous record.
	FlagTypeKnownDevice FlagType = "known_device"
)

// Flag details one heuristic finding.
type Flag struct {
	Type   FlagType
	Detail string
}

// Sample carries the observable inputs of a single check-in attempt.
// Pointer fields are nil when the attempt did not supply that input.
type Sample struct {
	// AccuracyMeters is the GPS-declared horizontal accuracy, if supplied.
	AccuracyMeters *float64
	// DistanceMeters is the verified distance from the event location, if a
	// location proof was supplied.
	DistanceMeters *float64
	// EventRadiusMeters is the event's configured check-in radius.
	EventRadiusMeters float64
	// TokenPresented reports whether a check-in token accompanied the
	// location proof.
	TokenPresented bool
	// FingerprintFlagged reports whether the device fingerprint appears on a
	// previously flagged record.
	FingerprintFlagged bool
}

// minPlausibleAccuracyMeters is below what consumer GPS hardware reports.
const minPlausibleAccuracyMeters = 1.0

// distanceMismatchFactor scales the event radius into the maximum distance
// considered consistent with scanning a token displayed at the venue.
const distanceMismatchFactor = 3.0

// Evaluate runs every heuristic against the sample and returns the flags
// that fired. An empty slice means the attempt looks clean.
func Evaluate(sample Sample) []Flag {
	var flags []Flag

	if sample.AccuracyMeters != nil && *sample.AccuracyMeters > 0 && *sample.AccuracyMeters < minPlausibleAccuracyMeters {
		flags = append(flags, Flag{
			Type:   FlagTypeImplausibleAccuracy,
			Detail: fmt.Sprintf("declared accuracy %.2fm below plausible minimum %.1fm", *sample.AccuracyMeters, minPlausibleAccuracyMeters),
		})
	}

	if sample.TokenPresented && sample.DistanceMeters != nil && sample.EventRadiusMeters > 0 {
		if limit := sample.EventRadiusMeters * distanceMismatchFactor; *sample.DistanceMeters > limit {
			flags = append(flags, Flag{
				Type:   FlagTypeDistanceMismatch,
				Detail: fmt.Sprintf("location %.0fm from venue while presenting an on-site token (limit %.0fm)", *sample.DistanceMeters, limit),
			})
		}
	}

	if sample.FingerprintFlagged {
		flags = append(flags, Flag{
			Type:   FlagTypeKnownDevice,
			Detail: "device fingerprint matches a previously flagged record",
		})
	}

	return flags
}

// Reason joins flag details into the single reason string stored on the
// attendance record.
func Reason(flags []Flag) string {
	if len(flags) == 0 {
		return ""
	}
	parts := make([]string, 0, len(flags))
	for _, flag := range flags {
		parts = append(parts, fmt.Sprintf("%s: %s", flag.Type, flag.Detail))
	}
	return strings.Join(parts, "; ")
}
