package sandbox

import "os"

// signalGraceful is the signal sent to ask a sandboxed process to stop
// on its own before the grace deadline forces a kill.
func signalGraceful() os.Signal {
	return os.Interrupt
}
