// Package fileutil holds small file helpers shared by the artifact writers.
package fileutil
