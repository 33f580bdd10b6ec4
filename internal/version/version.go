package version

import "fmt"

// Set at build time via -ldflags "-X ...".
var (
	Release   = "dev"
	Commit    = ""
	BuildTime = ""
)

// String renders the version line shown by --version. Unset build metadata
// is omitted rather than printed as a placeholder.
func String() string {
	s := Release
	if c := shortCommit(); c != "" {
		s = fmt.Sprintf("%s (%s)", s, c)
	}
	if BuildTime != "" {
		s = fmt.Sprintf("%s built %s", s, BuildTime)
	}
	return s
}

func shortCommit() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}
	return Commit
}
