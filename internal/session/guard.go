package session

import (
	"net/url"
)

type Decision int

const (
	// Wait means the first provider notification has not arrived yet.
	Wait Decision = iota
	Allow
	Redirect
)

func (d Decision) String() string {
	switch d {
	case Wait:
		return "wait"
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	}
	return "unknown"
}

const ReasonUnauthenticated = "unauthenticated"

// Verdict is the guard's answer for one navigation.
type Verdict struct {
	Decision Decision
	// Set for Redirect only.
	Location string
	From     string
	Reason   string
}

// Guard decides whether path may render for s. Anonymous visitors are sent
// to entryPoint with the denied path and the reason attached as query
// parameters. It is a pure function of its arguments.
func Guard(s Session, path string, entryPoint string) Verdict {
	if s.Loading {
		return Verdict{Decision: Wait}
	}
	if s.Identity != nil {
		return Verdict{Decision: Allow}
	}
	q := url.Values{}
	q.Set("from", path)
	q.Set("reason", ReasonUnauthenticated)
	return Verdict{
		Decision: Redirect,
		Location: entryPoint + "?" + q.Encode(),
		From:     path,
		Reason:   ReasonUnauthenticated,
	}
}
