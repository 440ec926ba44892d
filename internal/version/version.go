package version

// Version is the ocforge release string, semver with an optional
// letter suffix for respins of the same patch level.
const Version = "0.9.4"
