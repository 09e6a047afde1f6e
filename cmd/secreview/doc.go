// Secreview turns the raw output of LLM security review passes into a
// deduplicated, ordered list of findings with deterministic exit codes
// suitable for CI gating.
//
// Usage:
//
//	secreview scan --diff pr.diff --results pass1.txt   # filter one review pass
//	secreview scan --results a.txt --results b.txt      # merge several passes
//	secreview scan --baseline s3://ci/main.json.gz ...  # report only new findings
//	secreview rules show                                # print effective hard rules
//	secreview provider validate                         # check provider credentials
//	secreview config init                               # write a default config file
package main
