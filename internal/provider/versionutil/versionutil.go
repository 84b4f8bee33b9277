// Package versionutil compares the loosely formatted version strings that
// tools print ("Python 3.10.14", "3.10") using semantic version ordering.
package versionutil

import (
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

var versionPattern = regexp.MustCompile(`\d+(\.\d+){0,2}`)

// Canonical extracts the first dotted version from s and returns it in
// semver form ("v3.10.14"), or "" if s holds none.
func Canonical(s string) string {
	m := versionPattern.FindString(s)
	if m == "" {
		return ""
	}
	return semver.Canonical("v" + m)
}

// MajorMinor returns the "3.10" part of a version string, or "".
func MajorMinor(s string) string {
	c := Canonical(s)
	if c == "" {
		return ""
	}
	return strings.TrimPrefix(semver.MajorMinor(c), "v")
}

// SameMajorMinor reports whether two version strings agree on major and
// minor version.
func SameMajorMinor(a, b string) bool {
	ma, mb := MajorMinor(a), MajorMinor(b)
	return ma != "" && ma == mb
}
