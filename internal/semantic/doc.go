// Package semantic implements the LLM-assisted second filtering pass.
//
// Findings that survive the hard rules are sent to a provider in batches,
// each with the redacted diff context of the files it references. The
// provider answers with one verdict per finding (keep or exclude, a 1..10
// confidence score and a reason). Batches run concurrently under a global
// in-flight cap and an optional request rate; each batch retries with
// exponential backoff, re-asking only for findings whose verdicts were
// missing.
//
// When the provider cannot be reached, or keeps returning unusable
// answers, the policy fails open by default: the finding is kept and
// annotated filter-unverified.
package semantic
