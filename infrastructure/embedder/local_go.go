//go:build !ORT

package embedder

import "github.com/knights-analytics/hugot"

// newHugotSession opens hugot's pure-Go session. The pure-Go backend has
// no GPU execution provider, so gpuEnabled is accepted but ignored.
func newHugotSession(gpuEnabled bool) (*hugot.Session, []string, error) {
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, nil, err
	}
	return session, []string{"cpu"}, nil
}
