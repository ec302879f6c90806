// Package tunnel implements the KNXnet/IP tunneling client: the
// connection state machine, the request/ack correlator, and the passive
// group address cache.
//
// # Architecture
//
// One Tunnel wraps one UDP socket and one gateway. A single dispatch
// loop consumes every inbound frame and routes it: control-plane
// responses to their waiters, acks to the correlator, bus telegrams to
// the cache, read waiters, and the callback pool. Because there is
// exactly one consumer, telegrams reach subscribers in network arrival
// order.
//
// # Reliability
//
// Tunneling requests carry a sequence number and must be acknowledged
// within the ack timeout. One retransmit of the identical frame is
// permitted; a second miss is fatal and moves the tunnel to
// Disconnected. A heartbeat probes the gateway once per interval, and a
// missed heartbeat is equally fatal. The tunnel never reconnects on its
// own: the application decides, typically from the state-change
// callback.
//
// # Cache
//
// The cache is populated passively from observed group writes and
// responses. It never expires entries by itself; instead every entry is
// marked stale when the connection drops, and readers bound acceptable
// age per call.
//
// # Usage
//
//	conn, _ := net.ListenUDP("udp4", nil)
//	gw := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 90), Port: 3671}
//
//	tun, err := tunnel.New(conn, gw, tunnel.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tun.Close()
//
//	if err := tun.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	ga := knx.GroupAddress{Main: 1, Middle: 2, Sub: 3}
//	err = tun.GroupWrite(ctx, ga, knx.EncodeDPT1(true))
package tunnel
