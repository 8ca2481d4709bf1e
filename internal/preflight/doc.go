// Package preflight provides readiness checks for the filesystem paths and
// model endpoints narrator depends on.
//
// The doctor command and daemon startup run the same checks so an operator
// sees configuration problems before the first job fails on them.
package preflight
