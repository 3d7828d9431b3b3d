// Package osascript builds and executes JavaScript for Automation (JXA)
// snippets through /usr/bin/osascript.
//
// The package has two halves. The construction half ([Escape], [Template])
// is the only code in this module allowed to touch raw, untrusted text that
// ends up inside an automation script: every caller-supplied value is routed
// through [Escape] exactly once, via [Template.Bind]. Already-built script
// fragments go through the separate [Template.BindCode] channel so legitimate
// punctuation is not escaped twice.
//
// The execution half ([Run], [RunWithRetry]) spawns one osascript subprocess
// per attempt, parses stdout as JSON when possible, and classifies failures
// by matching stderr against per-application pattern tables. Callers use
// [IsPermission] and [IsTransient] to branch on the classification.
package osascript
