// Package tagging implements phase two: the source is encoded to MP3 (or
// copied when it already is one) and the result is tagged with ID3v2 title,
// artist, album, synchronised and plain lyrics, and cover art.
package tagging
