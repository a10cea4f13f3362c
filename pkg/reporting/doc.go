// Package reporting implements a query client for the GridPulse reporting
// service.
//
// # Architecture
//
// A query travels through several internal stages:
//   - plan: decomposes one logical query into protocol-level request plans
//     that fit within the service's batch limits
//   - stream: paginates each plan independently, retrying transient
//     transport failures per page
//   - merge: fans in the concurrent plan streams into one globally
//     time-ordered sequence
//   - transport: gRPC channel setup, API-key credentials, and error
//     classification
//
// The public surface is the Client with its two entry points and the lazy
// Samples sequence they return.
//
// Example Usage
//
//	client, err := reporting.NewClient(reporting.Config{
//	    ServerURL: "reporting.example.com:50051",
//	    APIKey:    key,
//	})
//	if err != nil { ... }
//	defer client.Close()
//
//	samples, err := client.ListSingleComponentData(ctx, reporting.SingleComponentQuery{
//	    MicrogridID: 1,
//	    ComponentID: 100,
//	    Metrics:     []metric.Metric{metric.ACActivePower},
//	    Start:       start,
//	    End:         end,
//	})
//	if err != nil { ... }
//	defer samples.Close()
//	for samples.Next() {
//	    fmt.Println(samples.Sample())
//	}
//	if err := samples.Err(); err != nil { ... }
package reporting
