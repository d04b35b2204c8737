package client

import (
	"fmt"
	"io"
	"os"
)

// TokenEnv is the environment variable that supplies a saved token.
const TokenEnv = "JWT"

// Session wraps a Client for the length of one command and prints the
// end-of-run report when closed.
type Session struct {
	*Client

	// PrintStats prints the number of API calls on Close.
	PrintStats bool

	// Getenv looks up TokenEnv. Defaults to os.Getenv.
	Getenv func(string) string
}

// NewSession returns a Session for c.
func NewSession(c *Client, stats bool) *Session {
	return &Session{Client: c, PrintStats: stats, Getenv: os.Getenv}
}

// WriteCallTotal prints the API call total line of the teardown report. It is
// exported for callers that end without a Session, such as after a failed
// login.
func WriteCallTotal(w io.Writer, calls int64) {
	fmt.Fprintf(w, "Total calls to Mender server API: %d\n", calls)
}

// Close writes the teardown report to w: the call statistics when PrintStats is
// set, and an export hint when the token came from a login and TokenEnv is
// not set. Call it once at the end of main.
func (s *Session) Close(w io.Writer) error {
	if s.PrintStats {
		WriteCallTotal(w, s.Calls())
		stats, err := s.Stats()
		if err != nil {
			return fmt.Errorf("gather stats: %w", err)
		}
		for _, st := range stats {
			fmt.Fprintf(w, "  %-4s %-40s %-5s %d\n", st.Method, st.Path, st.Status, st.Calls)
		}
	}

	getenv := s.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	token, origin := s.Token()
	if origin == TokenFromLogin && token != "" && getenv(TokenEnv) == "" {
		fmt.Fprintf(w, "Make sure to set the %s environment variable to avoid\n", TokenEnv)
		fmt.Fprintln(w, "reauthenticating to the Mender server for future command")
		fmt.Fprintln(w, "invocations")
		fmt.Fprintln(w)
		fmt.Fprintf(w, "export %s=%s\n", TokenEnv, token)
	}
	return nil
}
