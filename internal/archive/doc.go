// Package archive reads and writes portable provenance archives.
//
// An archive is a gzip-compressed tar stream holding:
//
//	metadata.json        export version, creator, roots and counts
//	data.json            nodes, links and comments
//	repo/<uuid>/<name>   repository files of each node
//
// Entries are written in a fixed order with zeroed timestamps, so exporting
// the same graph twice yields identical bytes. Writes go through a temporary
// file in the target directory and a rename.
//
// Export does not rehash; callers rehash process records first.
package archive
