// Package client is the Go SDK for the powchain HTTP API.
//
// It wraps the read-only chain endpoints and the authenticated append
// endpoint:
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithBearerToken(os.Getenv("POWCHAIN_TOKEN")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := c.Append(ctx, "Send Alice to Bob")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Record.Digest, res.Outcome)
//
// Verification is performed by the server; Report.Valid is false and
// Report.Error is set when the chain fails its integrity walk.
package client
