package mailbox

// visible implements spec §4.8: for message m and reader r, visible iff
// "*" ∈ m.Recipients OR r ∈ m.Recipients OR r == m.Sender OR r == "*".
func visible(m Message, reader string) bool {
	if reader == "*" {
		return true
	}
	if reader == m.Sender {
		return true
	}
	for _, rcpt := range m.Recipients {
		if rcpt == "*" || rcpt == reader {
			return true
		}
	}
	return false
}

func hasRead(m Message, reader string) bool {
	for _, r := range m.ReadBy {
		if r == reader {
			return true
		}
	}
	return false
}
