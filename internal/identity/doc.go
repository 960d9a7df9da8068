// Package identity decides which parts of a node contribute to its hash.
//
// A Strategy is chosen when a store is constructed and applies to every
// node that store hashes. Default hashes everything the runtime considers
// identity-relevant. Liberal drops execution environments, version stamps
// and configured volatile attributes so that archived results match freshly
// built requests on another machine or after an upgrade.
package identity
