package fscrawl

// Version is the release version reported by --version. It is overridden
// at build time via -ldflags for tagged releases.
var Version = "0.0.0-dev"
