// Package extract stages selected archive entries into a private work directory.
//
// Ownership boundary:
// - selection rules (scripting modules, server entry pair)
// - extraction plans and the root containment check
// - work directory creation inside the host temp area
package extract
