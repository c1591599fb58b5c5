package main

// Exit codes shared by the pipeline commands.
const (
	ExitSuccess = 0 // Success
	ExitError   = 1 // General error (invalid arguments, runtime failure)

	// Strict-mode merge outcomes
	ExitStrictUnmatched = 2 // Unmatched ratio above the strict threshold
	ExitStrictConflicts = 3 // DOI conflicts between documents and candidates

	// Gate exit codes
	ExitGateFail  = 1 // One or more ceilings exceeded
	ExitGateUsage = 2 // Missing or unreadable summary file
)
