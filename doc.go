// Package bayeux implements a client for the Bayeux protocol: the
// handshake/connect/disconnect session lifecycle, channel subscription with
// wildcard dispatch, and the long-polling transport CometD servers expect.
//
// Session is the low-level protocol state machine. Client wraps it with a
// channel-oriented API more convenient for application code:
//
//	client, err := bayeux.NewClient("https://example.com/cometd")
//	if err != nil {
//		// handle err
//	}
//	errs := client.Start(ctx)
//
//	recv := make(chan []bayeux.Message)
//	client.Subscribe("/example/channel", recv)
//
// Errors that occur asynchronously, including handshake and connect
// failures, are delivered on the channel returned by Start:
//
//	for {
//		select {
//		case err := <-errs:
//			log.Println(err)
//		case ms := <-recv:
//			for _, m := range ms {
//				log.Println(m.Channel(), m.Data())
//			}
//		}
//	}
//
// A custom http.RoundTripper can be installed with WithHTTPTransport, e.g.
// to inject authentication or point at a test double:
//
//	client, err := bayeux.NewClient(serverAddress, bayeux.WithHTTPTransport(transport))
//
// Extensions can observe or rewrite every outgoing and incoming message by
// implementing Extension and registering it on the Session:
//
//	type example struct{}
//	func (example) Send(m bayeux.Message) bayeux.Message    { return m }
//	func (example) Receive(m bayeux.Message) bayeux.Message { return m }
//	func (example) Register(s *bayeux.Session)              {}
//	func (example) Unregister()                             {}
//
//	client.Session().RegisterExtension(example{})
package bayeux
