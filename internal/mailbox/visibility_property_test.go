package mailbox

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestVisibilityPropertyMatchesPredicate checks visible() against the
// spec §4.8 predicate directly: visible iff "*" ∈ recipients OR reader ∈
// recipients OR reader == sender OR reader == "*".
func TestVisibilityPropertyMatchesPredicate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	actors := []string{"alice", "bob", "carol", "*"}
	actorGen := gen.OneConstOf(toInterfaceSlice(actors)...)

	properties.Property("visible matches the broadcast/recipient/sender/admin predicate", prop.ForAll(
		func(sender string, recipients []string, reader string) bool {
			m := Message{Sender: sender, Recipients: recipients}
			got := visible(m, reader)

			expected := reader == "*" || reader == sender
			if !expected {
				for _, r := range recipients {
					if r == "*" || r == reader {
						expected = true
						break
					}
				}
			}
			return got == expected
		},
		actorGen,
		gen.SliceOf(actorGen),
		actorGen,
	))

	properties.TestingRun(t)
}

func toInterfaceSlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
