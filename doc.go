// Package mqtt3 provides an MQTT 3.1.1 client protocol engine.
//
// This package implements the client side of the MQTT Version 3.1.1 OASIS
// Standard:
// https://docs.oasis-open.org/mqtt/mqtt/v3.1.1/os/mqtt-v3.1.1-os.html
//
// # Features
//
//   - All 14 MQTT 3.1.1 control message types
//   - QoS 0, 1, 2 publish flows in both directions with retransmission
//   - Keep-alive with PINGREQ and a ping timeout
//   - Non-blocking stream decoder and encoder with partial reads and writes
//   - Transport: TCP, TLS, WebSocket, WSS, Unix socket, QUIC
//   - SOCKS5 and HTTP CONNECT proxies
//
// # Messages
//
// Message holds one control message as its fixed header flags and its
// variable header plus payload. Constructors and parsers exist for every
// message type:
//
//	msg, err := mqtt3.NewPublishMessage("sensors/temp", payload, mqtt3.QoS1, false, 7)
//	fields, ok := mqtt3.ParsePublish(msg)
//
// Use ReadMessage and Message.Encode for blocking I/O:
//
//	// Read a message
//	msg, n, err := mqtt3.ReadMessage(conn, maxSize)
//
//	// Write a message
//	n, err := msg.Encode(conn)
//
// # Sessions
//
// Session is the protocol state machine for a single connection. It never
// blocks: it reads from an InputStream and writes to an OutputStream when
// they report readiness, and keeps time through a Scheduler. All calls to
// a Session and all of its callbacks happen on one goroutine, usually a
// Loop:
//
//	loop := mqtt3.NewLoop()
//	in, out := mqtt3.NewConnStreams(conn, loop, logger)
//
//	loop.Post(func() {
//	    s, _ := mqtt3.NewSession(
//	        mqtt3.WithClientID("sensor-1"),
//	        mqtt3.WithScheduler(loop),
//	        mqtt3.OnEvent(func(s *mqtt3.Session, ev mqtt3.Event) { ... }),
//	        mqtt3.OnMessage(func(s *mqtt3.Session, topic string, payload []byte) { ... }),
//	    )
//	    s.Start(in, out)
//	})
//
// # Client
//
// Use the high-level Client API for connecting to MQTT brokers. It owns the
// loop, dials the server URL and can reconnect:
//
//	client, err := mqtt3.Dial(ctx,
//	    mqtt3.WithServer("tcp://localhost:1883"),
//	    mqtt3.WithClientID("my-client"),
//	    mqtt3.WithKeepAlive(60),
//	)
//	defer client.Close()
//
//	client.AddMessageListener(func(topic string, payload []byte) { ... })
//	client.Subscribe(ctx, "sensors/#", mqtt3.QoS1)
//	client.Publish(ctx, "sensors/temp", []byte("21.5"), mqtt3.QoS1, false)
//
// TLS connections:
//
//	client, err := mqtt3.Dial(ctx,
//	    mqtt3.WithServer("tls://localhost:8883"),
//	    mqtt3.WithTLS(&tls.Config{}),
//	)
//
// WebSocket connections:
//
//	client, err := mqtt3.Dial(ctx, mqtt3.WithServer("ws://localhost:8080/mqtt"))
//
// # Topic Matching
//
// Topic validation and matching support MQTT wildcards:
//
//	err := mqtt3.ValidateTopicName("sensors/temperature")
//	err = mqtt3.ValidateTopicFilter("sensors/+/status")
//
//	matched := mqtt3.TopicMatch("sensors/#", "sensors/room1/temp")
//
// # Metrics
//
// Sessions report counters and gauges through the Metrics interface:
//
//	metrics := mqtt3.NewMemoryMetrics()
//	client, err := mqtt3.Dial(ctx, mqtt3.WithMetrics(metrics))
//
// # Logging
//
// Implement the Logger interface for structured logging:
//
//	logger := mqtt3.NewStdLogger(os.Stdout, mqtt3.LogLevelInfo)
//	logger.Info("client connected", mqtt3.LogFields{"client_id": "test"})
package mqtt3
