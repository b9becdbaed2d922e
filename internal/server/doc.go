// Package server is the coordinating side of the devicelink protocol.
//
// One Server accepts device connections and runs one worker per
// connection. Each receive is one tab-delimited message; the worker
// parses it, applies it to the device registry and writes back an ACK.
// Malformed input and message types the server does not handle are
// dropped without a reply.
//
// A connection starts AWAITING_IDENTITY. The first REGISTER or LOGIN
// that resolves a device binds the session to that name, and later
// messages with an empty name field apply to it. Closing a connection
// never logs the device off.
//
//	srv, err := server.New(server.Deps{Registry: registry, Logger: logger})
//	go srv.ListenAndServe(ctx, ":5000")
//	<-srv.Ready()
//	defer srv.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package server
