// Package graphcall is a GraphQL client runtime with a normalized object cache
// and a raw transport cache between the caller and the network.
//
// A Client holds the shared collaborators (transport, record store, transport
// cache, dispatcher). Operations are parsed once with NewQuery or NewMutation
// and run through a Call obtained from Query or Mutate:
//
//	op, err := graphcall.NewQuery[*UserData](`query GetUser($id: ID!) { user(id: $id) { id name } }`, nil,
//		graphcall.WithVariable("id", 1))
//	resp, err := graphcall.Query(client, op).Execute(ctx)
//
// Every call runs a chain of three stages: the cache stage answers from the
// normalized store according to the CachePolicy, the parse stage decodes and
// normalizes network responses, and the transport stage performs the exchange
// according to the TransportCachePolicy. A Call executes at most once; use
// Clone to run the same operation again, or Watcher to keep receiving results
// as the records it depends on change.
package graphcall
