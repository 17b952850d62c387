// Package archive owns the packaged archive the launcher runs from.
//
// Ownership boundary:
// - self-location of the running archive (marker-checked)
// - immutable entry index over the ZIP central directory
// - the nested entry URI scheme ("jar:file:<container>!/<entry>")
package archive
