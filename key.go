package nengodist

// Key is an opaque identifier assigned by the network builder. It is unique
// within a run and names base signals, probes and communication slots.
type Key uint64
