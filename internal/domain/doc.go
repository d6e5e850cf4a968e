// Package domain reconciles climate-change projections for a region that were
// produced by independent pipelines.
//
// # Data Sources
//
// Sources disagree on four axes, and every one of them is normalised here
// before two sources are compared:
//
//   - Scenario taxonomy: one source names emission pathways "rcp45"/"rcp85",
//     another "ssp245"/"ssp585". Equivalence is never inferred from the names.
//     The caller supplies a [ScenarioTable] of declared pairs.
//   - Time-period convention: labels arrive as 30-year ranges ("2041-2070"),
//     single years ("2055"), dates ("2055-07-01") or date pairs
//     ("2041-01-01/2070-12-31"). [CanonicalModel.ResolvePeriod] maps each label
//     onto one of four canonical periods by range containment.
//   - Native resolution: gridded model output arrives on a coarse lattice
//     (0.25° for NEX-GDDP-CMIP6, 0.5° for CORDEX CAM-44). [BuildGrid] lays a
//     finer lattice over the region and [Sample] interpolates onto it.
//   - Sampling method: single point queries at the region centroid, spatial
//     grids, and dense yearly timeseries are all reduced to pooled
//     [PeriodStatistic] values by [Aggregate].
//
// # Canonical Periods
//
//	baseline   1981–2010 (configurable reference interval)
//	2011-2040  early century
//	2041-2070  mid century
//	2071-2100  end of century
//
// A label resolves only when it falls entirely inside one period. "2010-2011"
// straddles the baseline/early boundary and is rejected with
// [ErrUnresolvedPeriod]; the offending sample is skipped, not the run.
//
// # Missing Data
//
// Absent values are first-class ([Value] with Valid=false). They are never
// coerced to zero: the [Accumulator] skips them, a period with no present
// samples has Count=0, and any delta built on it is absent with a reason.
// A field lookup that errors is indistinguishable from one that has no data.
//
// # Agreement Tiers
//
// Differences are taken as delta(B) − delta(A) and classified on |diff| with
// inclusive upper bounds:
//
//	≤0.3 excellent | ≤0.5 good | ≤1.0 moderate (review) | >1.0 significant (investigate)
//
// A comparison with either delta absent is "incomparable" and never lands in a
// numeric tier.
//
// # Spatial Approximation
//
// Lattice inclusion is binary: a point counts when it lies inside the region
// polygon. Every sample carries a weight (1.0 today) so fractional coverage can
// be added later without changing the output contract.
package domain
