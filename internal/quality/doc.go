// Package quality scores generated answers before they are returned.
//
// Validate runs four checks on an answer: basic validity (length, "N/A",
// assistant boilerplate), hallucination indicators, vocabulary overlap with the
// retrieved sources, and certainty keywords. The combined quality score is
//
//	0.4*valid + {low:0.3, medium:0.15, high:0}[risk] + 0.2*consistency + {high:0.1, medium:0.05, low:0}[certainty]
//
// capped at 1. High hallucination risk halves the confidence and poor source
// coverage multiplies it by 0.7.
//
// RunSelfTest grades a list of cases, and RunSuite first answers one of the
// predefined suites (manufacturing, general, hallucination, accuracy) through an Asker.
package quality
