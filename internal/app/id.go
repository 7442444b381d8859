package app

import "crypto/rand"

// newEventID produces a random hex identifier for an event. In deployments
// where the display surface assigns message identifiers, the adapter may
// substitute that identifier instead; the rest of the system treats event
// IDs as opaque unique keys.
func newEventID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	const hex = "0123456789abcdef"
	out := make([]byte, 32)
	for i, v := range b {
		out[i*2] = hex[v>>4]
		out[i*2+1] = hex[v&0x0f]
	}
	return string(out), nil
}
