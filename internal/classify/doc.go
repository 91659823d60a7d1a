// Package classify scores request text against a declarative rule table
// and produces the agent sequence for a request.
package classify
