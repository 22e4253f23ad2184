package version

// Overridden at build time with -ldflags "-X github.com/throw-if-null/yolo/internal/version.Version=...".
var (
	Version = "dev"
	Commit  = "none"
)
