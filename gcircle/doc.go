// Package gcircle contains the trust circle:
// the signed membership record that lets a group of devices
// agree on who belongs to a sync group, without a central server.
//
// A [Circle] holds three disjoint peer sets (peers, applicants, and rejected applicants),
// a monotonic [Generation], and signatures over the generation and peer set.
// Membership changes happen through methods on *Circle such as
// [*Circle.RequestAdmission] and [*Circle.AcceptRequest];
// changes to the peer set are committed with [*Circle.GenerationSign].
//
// [ConcordanceTrust] decides whether a circle received from an untrusted source
// may replace the locally known circle.
//
// Circle values are not safe for concurrent use.
// Callers must serialize mutations (see the gckeeper package),
// and may hand a [*Circle.Clone] to concurrent readers.
package gcircle
