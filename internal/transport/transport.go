package transport

// Transmitter submits one built wire frame to a link backend. The scheduler
// treats it as opaque pass/fail.
type Transmitter interface {
	Transmit(frame []byte) error
}

// TransmitterFunc adapts a function to the Transmitter interface.
type TransmitterFunc func([]byte) error

func (f TransmitterFunc) Transmit(frame []byte) error { return f(frame) }

// Compile-time assertion that *AsyncTx is a Transmitter.
var _ Transmitter = (*AsyncTx)(nil)
