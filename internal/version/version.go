// Package version holds the version of this application
package version

// VERSION holds the current version
const VERSION = "0.3.0"
