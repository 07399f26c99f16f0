// Package geocsv merges payloads from a large CSV reference file into a
// stream of geotagged nodes, keyed by node id.
//
// The reference file does not have to fit in memory. A LookupCache keeps a
// window of records and refills it by scanning the file cyclically; a miss
// scans until the id is found or one full pass over the file proves it is
// absent. Matches can be checked against the node position with a
// MatchPolicy that warns about, rejects or audits distant records.
package geocsv
