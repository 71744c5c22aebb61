package segfilter

// Version is the release version reported by the health endpoint and at startup.
const Version = "0.3.1"
