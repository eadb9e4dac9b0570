// Package gmail wraps the Gmail API users service for gmailvault.
//
// Client issues the read-only calls the MCP tools need (search, message,
// thread, attachment body and profile lookups). Every call is throttled by a
// token-bucket limiter, traced as a google.gmail.<operation> span and counted
// in google_api_operations_total.
//
// The package also models a message's MIME structure as an explicit Part
// tree and locates attachments in it:
//
//	msg, err := client.GetMessage(ctx, id, gmail.FormatFull)
//	if err != nil {
//	    return err
//	}
//	for _, a := range gmail.Locate(gmail.NewPartTree(msg.Payload)) {
//	    fmt.Println(a.PartID, a.Filename, a.SizeFormatted)
//	}
package gmail
