// Package mt4ws implements the MetaTrader 4 Web Terminal WebSocket protocol:
// a length-prefixed, AES-256-CBC-encrypted binary frame format carrying
// fixed-offset order, order-update, and trade-request/response records.
//
// A typical session:
//
//	conn, _ := transport.Dial(ctx, wsURL, logger)
//	client, _ := mt4ws.New(conn, token, password, sessionKey, logger)
//	client.Connect(ctx)
//	for {
//	    ev, err := client.NextEvent(ctx)
//	    if err != nil {
//	        break
//	    }
//	    switch ev.Kind {
//	    case mt4ws.EventAuthenticated:
//	        client.Buy(ctx, "EURUSD", decimal.NewFromFloat(0.1), 0, 0)
//	    case mt4ws.EventOrderUpdate:
//	        // ev.Update
//	    }
//	}
//
// The token and session key are obtained out of band via the bootstrap HTTP
// call (internal/bootstrap); mt4ws itself never performs that call, only
// consumes its result.
package mt4ws
