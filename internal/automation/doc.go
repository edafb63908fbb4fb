// Package automation discovers and runs pluggable case automations.
//
// Each automation lives in its own directory under the extensions directory
// and pairs a manifest (manifest.yaml, manifest.yml or manifest.json with
// comments) with an executable. Discovery parses and validates the manifest,
// hashes the executable with BLAKE3 and only then admits the descriptor;
// anything malformed is logged and left out. The hash is checked again before
// every run so a swapped binary is refused.
//
// Automations are invoked out of process as
//
//	<executable> -i '{"target_path": ..., "local_target_path": ..., "options": {...}}'
//
// and report success through their exit status. The registry never
// interprets what an automation does beyond the post-run check of its kind.
package automation
