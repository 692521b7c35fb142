// Package coordinator polls the heat pump for the registers entities have
// declared interest in and fans the results out to listeners.
//
// The coordinator owns three pieces of state:
//
//   - the interest set, which only grows while the entry is loaded
//   - the cached register snapshot, replaced wholesale on every successful
//     fetch and never mutated afterwards
//   - the outcome of the most recent fetch, which drives entity availability
//
// Fetches and writes are serialised against each other. Concurrent Refresh
// calls share the fetch that is already in flight.
package coordinator
