package chainflow

// Version is the current chainflow release.
const Version = "0.1.0"
