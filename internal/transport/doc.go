// Package transport owns the single TCP connection to a server process.
//
// One Transport multiplexes any number of outstanding requests over the
// connection. Replies are demultiplexed by request id into an accumulating
// reply map, so a wait on one id makes progress by shelving replies for
// other ids as their bytes arrive. Sessions share a Transport by reference.
package transport
