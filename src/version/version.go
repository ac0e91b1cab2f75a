package version

// Version is the pvtools release string. Overridden at build time via
// -ldflags "-X github.com/steplov/pvtools/src/version.Version=...".
var Version = "0.3.0-dev"
