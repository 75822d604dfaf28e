package storekit

// CauseMessages returns the message of err and of every error beneath it in
// the unwrap tree, outermost first. Crypto decode failures often bury the
// real cause (a MAC check failure vs. a per-key unwrap failure) two or three
// levels deep; surfacing every level gives the operator all the symptoms at
// once. Duplicate messages are dropped.
func CauseMessages(err error) []string {
	var msgs []string
	seen := make(map[string]bool)
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if msg := e.Error(); !seen[msg] {
			seen[msg] = true
			msgs = append(msgs, msg)
		}
		switch u := e.(type) {
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		}
	}
	walk(err)
	return msgs
}

// CauseSummary joins the causal chain of err into a single string for
// single-field reporting.
func CauseSummary(err error) string {
	msgs := CauseMessages(err)
	if len(msgs) == 0 {
		return ""
	}
	out := msgs[0]
	for _, m := range msgs[1:] {
		out += "; " + m
	}
	return out
}
