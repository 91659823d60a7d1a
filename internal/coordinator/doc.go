// Package coordinator drives a request from intake to a terminal state.
//
// A request moves through Received, Classified, Dispatching, and Merging
// before landing in Completed or Failed. Independent agents in the
// classified sequence run concurrently; the issue identifier and ticket
// agent form a dependent chain and run in order. Results always merge in
// sequence order. The first agent in the sequence is the primary: its
// failure fails the whole request, while any other failure downgrades
// the response to partial.
package coordinator
