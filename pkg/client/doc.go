// Package client is the Go SDK for the treasury posting engine's HTTP API.
//
// Originators submit transfers and dashboards follow their progress:
//
//	c, err := client.New("https://postingd.internal",
//	    client.WithBearerToken(operatorToken),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	t, err := c.Submit(ctx, client.SubmitRequest{
//	    SourceType:           "external",
//	    DestinationType:      "main_bank",
//	    SourceCurrency:       "ZAR",
//	    Amount:               decimal.NewFromInt(10000),
//	    TransferType:         "capital_injection",
//	    DestinationAccountID: &accountID,
//	})
//
// # Lifecycle calls
//
// Validate, Post and Reject drive a transfer forward. A call that loses a
// race returns an *APIError with StatusCode 409 whose Message names the
// operator who acted first; use IsConflict to test for it. Never retry Post
// blindly on a 409 or on a 500 carrying ReconciliationRequired.
//
// # Watching changes
//
// Watch opens the server-sent event stream and delivers events until the
// context is cancelled:
//
//	events, err := c.Watch(ctx, nil)
//	for ev := range events {
//	    fmt.Println(ev.Type, ev.TransferID)
//	}
package client
