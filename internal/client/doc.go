// Package client is the device side of the devicelink protocol.
//
// A Client holds one TCP connection to the server and one UDP endpoint
// for peer traffic. Run drains both in an errgroup: server replies and
// pushed queries arrive on the first, peer QUERY, DATA and STATUS on the
// second. Everything received is delivered on Events with a one-line
// human-readable text.
//
//	c, err := client.Dial(ctx, client.Config{
//	    Name:       "alice",
//	    Passphrase: "pw1",
//	    ServerAddr: "127.0.0.1:5000",
//	})
//	go c.Run(ctx)
//	c.Register()
//	for ev := range c.Events() {
//	    fmt.Println(ev.Text)
//	}
//
// The client answers a sensor query with a fixed "Sensor Data" reading
// over the server connection, and a loopback query with "Test Data" over
// the peer endpoint.
package client
