// Package consolidate folds raw playlist entries into channel aggregates.
//
// Entries are keyed by tvg-id when one is present and otherwise by a
// normalised title with quality tags and keywords removed, so that
// "ESPN [FHD]", "ESPN (HD)" and "ESPN HD" end up as variants of one channel.
package consolidate
