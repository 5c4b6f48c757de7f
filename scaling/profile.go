// Package scaling turns health-sample windows into pool resize decisions.
// Decisions require a sustained signal, never a single sample, so the pool
// does not flap between sizes.
package scaling

import "strings"

// Profile is the workload-class scaling policy. The four classes mirror the
// client populations the pool fronts: long-lived agent processes, serverless
// functions, edge functions and clients behind a dedicated pooler.
type Profile struct {
	Class string

	ScaleUpThreshold   float64 // percent utilization, exclusive
	ScaleDownThreshold float64 // percent utilization, exclusive
	ScaleUpSamples     int     // consecutive samples over threshold before growing
	ScaleDownSamples   int     // consecutive samples under threshold before shrinking; > ScaleUpSamples
	GrowthFactor       float64 // maxSize multiplier on scale up
	ShrinkFactor       float64 // maxSize multiplier on scale down
	FloorMax           int     // maxSize never shrinks below this
}

const (
	// ClassPersistent is for long-lived agent processes with steady load
	ClassPersistent = "persistent"
	// ClassServerless is for bursty short-lived function invocations
	ClassServerless = "serverless"
	// ClassEdge is for edge-function clients with moderate burstiness
	ClassEdge = "edge"
	// ClassDedicatedPooler is for clients already multiplexed by an external pooler
	ClassDedicatedPooler = "dedicated-pooler"
)

// ProfileFor returns the preset policy for a workload class. Unknown classes
// fall back to the persistent profile.
func ProfileFor(class string) Profile {
	switch strings.ToLower(strings.TrimSpace(class)) {
	case ClassServerless:
		// bursty: grow early and aggressively, shrink slowly
		return Profile{
			Class:              ClassServerless,
			ScaleUpThreshold:   70,
			ScaleDownThreshold: 40,
			ScaleUpSamples:     2,
			ScaleDownSamples:   8,
			GrowthFactor:       2.0,
			ShrinkFactor:       0.6,
			FloorMax:           2,
		}
	case ClassEdge:
		return Profile{
			Class:              ClassEdge,
			ScaleUpThreshold:   75,
			ScaleDownThreshold: 35,
			ScaleUpSamples:     2,
			ScaleDownSamples:   10,
			GrowthFactor:       1.5,
			ShrinkFactor:       0.8,
			FloorMax:           1,
		}
	case ClassDedicatedPooler:
		// external pooler already smooths demand; react conservatively
		return Profile{
			Class:              ClassDedicatedPooler,
			ScaleUpThreshold:   85,
			ScaleDownThreshold: 25,
			ScaleUpSamples:     4,
			ScaleDownSamples:   8,
			GrowthFactor:       1.25,
			ShrinkFactor:       0.8,
			FloorMax:           2,
		}
	default:
		return Profile{
			Class:              ClassPersistent,
			ScaleUpThreshold:   80,
			ScaleDownThreshold: 30,
			ScaleUpSamples:     3,
			ScaleDownSamples:   6,
			GrowthFactor:       1.5,
			ShrinkFactor:       0.7,
			FloorMax:           2,
		}
	}
}

// withDefaults repairs a hand-built profile so Decide always has sane
// sustained-signal parameters.
func (p Profile) withDefaults() Profile {
	base := ProfileFor(p.Class)
	if p.ScaleUpThreshold <= 0 {
		p.ScaleUpThreshold = base.ScaleUpThreshold
	}
	if p.ScaleDownThreshold <= 0 {
		p.ScaleDownThreshold = base.ScaleDownThreshold
	}
	if p.ScaleUpSamples <= 0 {
		p.ScaleUpSamples = base.ScaleUpSamples
	}
	if p.ScaleDownSamples <= p.ScaleUpSamples {
		p.ScaleDownSamples = p.ScaleUpSamples * 2
	}
	if p.GrowthFactor <= 1.0 {
		p.GrowthFactor = base.GrowthFactor
	}
	if p.ShrinkFactor <= 0 || p.ShrinkFactor >= 1.0 {
		p.ShrinkFactor = base.ShrinkFactor
	}
	if p.FloorMax <= 0 {
		p.FloorMax = base.FloorMax
	}
	return p
}
