// Package syncdetect computes which files of a git-backed source need
// re-ingestion.
//
// A source's pipeline state records the commit it was last ingested at.
// Detection diffs that commit against HEAD with git name-status parsing:
// added, modified, and deleted paths come straight from the diff, renames
// split into a delete of the old path and an add of the new one.
//
// The first run of a source (no recorded commit) lists every tracked file.
// When the recorded commit cannot be diffed, for example after a history
// rewrite or on a shallow clone that dropped it, detection fails safe with
// ErrFullResyncRequired instead of guessing.
package syncdetect
