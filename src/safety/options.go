// Package safety carries the run-safety switches shared by every
// mutating command and the confirmation prompt that honors them.
package safety

// Options mirror the global CLI flags. They travel together because the
// prompt needs all of them to decide whether to ask at all.
type Options struct {
	// DryRun plans without mutating; prompts are never shown and always
	// treated as declined.
	DryRun bool
	// Yes answers every prompt affirmatively (non-interactive runs).
	Yes bool
	// Force permits overwriting existing destination volumes on restore.
	Force bool
}
