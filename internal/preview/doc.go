// Package preview implements the link preview form controller.
//
// The controller owns a small state machine:
//
//	Idle --(non-empty input)--> Fetching --(status "success")--> Success
//	                                     \--(other status | error)--> Failed
//
// Success and Failed return to Fetching (or Idle for empty input) on the
// next input change. Every cycle clears the form fields and hides the
// preview synchronously, before the network call is made, so a slow or
// failed fetch never leaves stale content behind. Each cycle carries a
// generation number; a result whose generation is no longer current is
// dropped rather than applied.
//
// Rendering is split out: Render maps a State to Effects without side
// effects, and a View applies Effects to whatever UI hosts the form.
package preview
